package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pharos-bot/internal/blockchain/evm"
	"github.com/rovshanmuradov/pharos-bot/internal/config"
	"github.com/rovshanmuradov/pharos-bot/internal/dex/faroswap"
)

func (r *runner) perform(ctx context.Context, k int, action string) {
	switch action {
	case config.ActionWrap:
		r.wrap(ctx, k)
	case config.ActionUnwrap:
		r.unwrap(ctx, k)
	case config.ActionSwap:
		r.swap(ctx, k)
	case config.ActionSwapBack:
		r.swapBack(ctx, k)
	default:
		r.record(action, k, StatusSkipped, "unknown action", nil)
	}
}

func (r *runner) wrap(ctx context.Context, k int) {
	amount := faroswap.ToWei(r.randomAmount(r.settings.WrapAmount), faroswap.NativeDecimals)
	r.submit(ctx, config.ActionWrap, k, r.deps.DEX.Wrap(amount))
}

func (r *runner) unwrap(ctx context.Context, k int) {
	wrapped := r.deps.DEX.Config().WrappedNative
	balance, err := r.tokenBalance(ctx, wrapped)
	if err != nil {
		r.record(config.ActionUnwrap, k, StatusFailed, "", err)
		return
	}
	if balance.Sign() == 0 {
		r.record(config.ActionUnwrap, k, StatusSkipped, "no wrapped balance", nil)
		return
	}
	amount := minBig(faroswap.ToWei(r.randomAmount(r.settings.WrapAmount), faroswap.NativeDecimals), balance)
	r.submit(ctx, config.ActionUnwrap, k, r.deps.DEX.Unwrap(amount))
}

func (r *runner) swap(ctx context.Context, k int) {
	amount := faroswap.ToWei(r.randomAmount(r.settings.SwapAmount), faroswap.NativeDecimals)
	r.submit(ctx, config.ActionSwap, k, r.deps.DEX.SwapNative(r.deps.DEX.Config().TargetToken, amount))
}

func (r *runner) swapBack(ctx context.Context, k int) {
	cfg := r.deps.DEX.Config()

	decimals, err := r.decimalsOfTarget(ctx)
	if err != nil {
		r.record(config.ActionSwapBack, k, StatusFailed, "", err)
		return
	}
	balance, err := r.tokenBalance(ctx, cfg.TargetToken)
	if err != nil {
		r.record(config.ActionSwapBack, k, StatusFailed, "", err)
		return
	}
	if balance.Sign() == 0 {
		r.record(config.ActionSwapBack, k, StatusSkipped, "no token balance", nil)
		return
	}
	amount := minBig(faroswap.ToWei(r.randomAmount(r.settings.SwapBackAmount), decimals), balance)

	if err := r.approve(ctx, StepSwapApprove, k, cfg.TargetToken, cfg.Router, amount); err != nil {
		return
	}
	r.submit(ctx, config.ActionSwapBack, k, r.deps.DEX.SwapToken(cfg.TargetToken, cfg.WrappedNative, amount))
}

// addLiquidity tops up both assets, approves them and increases the position.
// Any failing sub-step ends the phase.
func (r *runner) addLiquidity(ctx context.Context) error {
	cfg := r.deps.DEX.Config()
	token0, token1 := cfg.WrappedNative, cfg.TargetToken

	decimals1, err := r.decimalsOfTarget(ctx)
	if err != nil {
		r.record(StepLiqSwap, 0, StatusFailed, "", err)
		return err
	}
	amount0 := faroswap.ToWei(r.settings.Amount0, faroswap.NativeDecimals)
	amount1 := faroswap.ToWei(r.settings.Amount1, decimals1)

	balance0, err := r.tokenBalance(ctx, token0)
	if err != nil {
		r.record(StepLiqWrap, 0, StatusFailed, "", err)
		return err
	}
	if balance0.Cmp(amount0) < 0 {
		short := new(big.Int).Sub(amount0, balance0)
		if out := r.submit(ctx, StepLiqWrap, 0, r.deps.DEX.Wrap(short)); !out.OK() {
			return fmt.Errorf("wrap for liquidity: %w", out.Err)
		}
	}

	balance1, err := r.tokenBalance(ctx, token1)
	if err != nil {
		r.record(StepLiqSwap, 0, StatusFailed, "", err)
		return err
	}
	if balance1.Cmp(amount1) < 0 {
		native := faroswap.ToWei(r.randomAmount(r.settings.SwapAmount), faroswap.NativeDecimals)
		if out := r.submit(ctx, StepLiqSwap, 0, r.deps.DEX.SwapNative(token1, native)); !out.OK() {
			return fmt.Errorf("swap for liquidity: %w", out.Err)
		}
		if balance1, err = r.tokenBalance(ctx, token1); err != nil {
			r.record(StepLiqSwap, 0, StatusFailed, "", err)
			return err
		}
		if balance1.Sign() == 0 {
			err := errors.New("no second asset after swap")
			r.record(StepLiqSwap, 0, StatusFailed, "", err)
			return err
		}
		amount1 = minBig(amount1, balance1)
	}

	if err := r.approve(ctx, StepLiqApprove0, 0, token0, cfg.PositionManager, amount0); err != nil {
		return err
	}
	if err := r.approve(ctx, StepLiqApprove1, 0, token1, cfg.PositionManager, amount1); err != nil {
		return err
	}

	out := r.submit(ctx, StepLiqIncrease, 0, r.deps.DEX.IncreaseLiquidity(r.settings.PositionID, amount0, amount1))
	if !out.OK() {
		return fmt.Errorf("increase liquidity: %w", out.Err)
	}
	return nil
}

func (r *runner) approve(ctx context.Context, step string, k int, token, spender common.Address, amount *big.Int) error {
	ok, err := r.deps.Guard.EnsureAllowance(ctx, r.acct, token, spender, amount)
	if !ok {
		if err == nil {
			err = errors.New("allowance not granted")
		}
		r.record(step, k, StatusFailed, "", err)
		return err
	}
	r.record(step, k, StatusOK, "", nil)
	return nil
}

func (r *runner) tokenBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	return evm.NewToken(r.deps.Chain, token).BalanceOf(ctx, r.acct.Address)
}

func (r *runner) decimalsOfTarget(ctx context.Context) (int32, error) {
	if r.targetDecimals != nil {
		return *r.targetDecimals, nil
	}
	dec, err := evm.NewToken(r.deps.Chain, r.deps.DEX.Config().TargetToken).Decimals(ctx)
	if err != nil {
		return 0, err
	}
	v := int32(dec)
	r.targetDecimals = &v
	r.log.Debug("Target token decimals", zap.Int32("decimals", v))
	return v, nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
