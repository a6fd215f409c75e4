package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"remaining","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"success","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"constant":false,"inputs":[],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"},
{"constant":false,"inputs":[{"name":"wad","type":"uint256"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const routerABIJSON = `[
{"inputs":[{"components":[
 {"name":"tokenIn","type":"address"},
 {"name":"tokenOut","type":"address"},
 {"name":"fee","type":"uint24"},
 {"name":"recipient","type":"address"},
 {"name":"deadline","type":"uint256"},
 {"name":"amountIn","type":"uint256"},
 {"name":"amountOutMinimum","type":"uint256"},
 {"name":"sqrtPriceLimitX96","type":"uint160"}],
 "name":"params","type":"tuple"}],
 "name":"exactInputSingle","outputs":[{"name":"amountOut","type":"uint256"}],"stateMutability":"payable","type":"function"}
]`

const positionManagerABIJSON = `[
{"inputs":[{"components":[
 {"name":"tokenId","type":"uint256"},
 {"name":"amount0Desired","type":"uint256"},
 {"name":"amount1Desired","type":"uint256"},
 {"name":"amount0Min","type":"uint256"},
 {"name":"amount1Min","type":"uint256"},
 {"name":"deadline","type":"uint256"}],
 "name":"params","type":"tuple"}],
 "name":"increaseLiquidity","outputs":[{"name":"liquidity","type":"uint128"},{"name":"amount0","type":"uint256"},{"name":"amount1","type":"uint256"}],"stateMutability":"payable","type":"function"}
]`

var (
	erc20ABI           = mustParseABI(erc20ABIJSON)
	routerABI          = mustParseABI(routerABIJSON)
	positionManagerABI = mustParseABI(positionManagerABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded abi: %v", err))
	}
	return parsed
}

// ExactInputSingleParams mirrors the V3 router's single-hop swap struct.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// IncreaseLiquidityParams mirrors the position manager's increaseLiquidity struct.
type IncreaseLiquidityParams struct {
	TokenID        *big.Int `abi:"tokenId"`
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       *big.Int
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// PackDeposit encodes the wrap-token deposit().
func PackDeposit() ([]byte, error) {
	return erc20ABI.Pack("deposit")
}

// PackWithdraw encodes the wrap-token withdraw(amount).
func PackWithdraw(amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("withdraw", amount)
}

// PackExactInputSingle encodes a single-hop exact-input swap. Minimum out and
// the price limit are always zero.
func PackExactInputSingle(tokenIn, tokenOut, recipient common.Address, fee uint32, amountIn, deadline *big.Int) ([]byte, error) {
	return routerABI.Pack("exactInputSingle", ExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		Recipient:         recipient,
		Deadline:          deadline,
		AmountIn:          amountIn,
		AmountOutMinimum:  new(big.Int),
		SqrtPriceLimitX96: new(big.Int),
	})
}

// PackIncreaseLiquidity encodes increaseLiquidity with zero minimums.
func PackIncreaseLiquidity(tokenID, amount0, amount1, deadline *big.Int) ([]byte, error) {
	return positionManagerABI.Pack("increaseLiquidity", IncreaseLiquidityParams{
		TokenID:        tokenID,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Amount0Min:     new(big.Int),
		Amount1Min:     new(big.Int),
		Deadline:       deadline,
	})
}
