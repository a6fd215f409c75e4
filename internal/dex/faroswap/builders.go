// =============================
// File: internal/dex/faroswap/builders.go
// =============================
package faroswap

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/pharos-bot/internal/blockchain/evm"
	"github.com/rovshanmuradov/pharos-bot/internal/transaction"
)

// DEX produces transaction builders for FaroSwap calls.
type DEX struct {
	config Config
	now    func() time.Time
}

func New(config Config) *DEX {
	return &DEX{config: config, now: time.Now}
}

func (d *DEX) Config() Config { return d.config }

func (d *DEX) deadline() *big.Int {
	return big.NewInt(d.now().Add(d.config.Deadline).Unix())
}

// Wrap deposits native PHRS into WPHRS.
func (d *DEX) Wrap(amount *big.Int) transaction.Builder {
	return func(context.Context, transaction.Params) (transaction.Call, error) {
		data, err := evm.PackDeposit()
		if err != nil {
			return transaction.Call{}, err
		}
		return transaction.Call{
			To:       d.config.WrappedNative,
			Data:     data,
			Value:    new(big.Int).Set(amount),
			GasLimit: d.config.WrapGas,
		}, nil
	}
}

// Unwrap withdraws WPHRS back to native PHRS.
func (d *DEX) Unwrap(amount *big.Int) transaction.Builder {
	return func(context.Context, transaction.Params) (transaction.Call, error) {
		data, err := evm.PackWithdraw(amount)
		if err != nil {
			return transaction.Call{}, err
		}
		return transaction.Call{To: d.config.WrappedNative, Data: data, GasLimit: d.config.WrapGas}, nil
	}
}

// SwapNative swaps native PHRS for tokenOut. The router wraps the attached
// value, so tokenIn is WPHRS.
func (d *DEX) SwapNative(tokenOut common.Address, amount *big.Int) transaction.Builder {
	return d.swap(d.config.WrappedNative, tokenOut, amount, true)
}

// SwapToken swaps an ERC-20 the account holds; the router must be approved.
func (d *DEX) SwapToken(tokenIn, tokenOut common.Address, amount *big.Int) transaction.Builder {
	return d.swap(tokenIn, tokenOut, amount, false)
}

func (d *DEX) swap(tokenIn, tokenOut common.Address, amount *big.Int, native bool) transaction.Builder {
	return func(_ context.Context, p transaction.Params) (transaction.Call, error) {
		data, err := evm.PackExactInputSingle(tokenIn, tokenOut, p.From, d.config.FeeTier, amount, d.deadline())
		if err != nil {
			return transaction.Call{}, err
		}
		call := transaction.Call{To: d.config.Router, Data: data, GasLimit: d.config.SwapGas}
		if native {
			call.Value = new(big.Int).Set(amount)
		}
		return call, nil
	}
}

// IncreaseLiquidity adds amount0/amount1 to an existing position.
func (d *DEX) IncreaseLiquidity(tokenID, amount0, amount1 *big.Int) transaction.Builder {
	return func(context.Context, transaction.Params) (transaction.Call, error) {
		data, err := evm.PackIncreaseLiquidity(tokenID, amount0, amount1, d.deadline())
		if err != nil {
			return transaction.Call{}, err
		}
		return transaction.Call{To: d.config.PositionManager, Data: data, GasLimit: d.config.LiquidityGas}, nil
	}
}
