// =============================
// File: internal/pipeline/pipeline.go
// =============================
package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pharos-bot/internal/blockchain/evm"
	"github.com/rovshanmuradov/pharos-bot/internal/dex/faroswap"
	"github.com/rovshanmuradov/pharos-bot/internal/events"
	"github.com/rovshanmuradov/pharos-bot/internal/logger"
	"github.com/rovshanmuradov/pharos-bot/internal/partner"
	"github.com/rovshanmuradov/pharos-bot/internal/transaction"
	"github.com/rovshanmuradov/pharos-bot/internal/wallet"
)

// Executor submits a single transaction and classifies it.
type Executor interface {
	Submit(ctx context.Context, acct *wallet.Account, label string, build transaction.Builder) transaction.Outcome
}

// AllowanceGuard approves a spender only when needed.
type AllowanceGuard interface {
	EnsureAllowance(ctx context.Context, acct *wallet.Account, token, spender common.Address, required *big.Int) (bool, error)
}

// Chain is the read side of the node the pipeline uses for balances.
type Chain interface {
	evm.Caller
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// PartnerAPI is the partner client bound to one account.
type PartnerAPI interface {
	Login(ctx context.Context, address string, sign partner.SignFunc) (string, error)
	SignIn(ctx context.Context, address, token string) (partner.Result, error)
	ClaimFaucet(ctx context.Context, address, token string) (partner.Result, error)
}

// Sleeper pauses for a jittered duration within bounds.
type Sleeper interface {
	Between(ctx context.Context, min, max time.Duration) (time.Duration, error)
}

// Range is an inclusive pause interval.
type Range struct {
	Min, Max time.Duration
}

// Settings are the per-sweep knobs, resolved from configuration once.
type Settings struct {
	LoopCount       int
	SignIn          bool
	Faucet          bool
	FaroSwapEnabled bool
	Actions         []string
	SwapAmount      decimal.Decimal
	SwapBackAmount  decimal.Decimal
	WrapAmount      decimal.Decimal

	LiquidityEnabled bool
	PositionID       *big.Int
	Amount0          decimal.Decimal
	Amount1          decimal.Decimal

	BetweenSwaps      Range
	BetweenIterations Range
	AfterFaroSwap     Range
}

// Deps are the shared collaborators. All of them are safe for concurrent use.
type Deps struct {
	Executor Executor
	Guard    AllowanceGuard
	Chain    Chain
	DEX      *faroswap.DEX
	Delays   Sleeper
	Events   events.Publisher
	Logger   *zap.Logger
	// IntN draws the amount jitter; it must return values in [0, n).
	IntN func(n int) int
}

// Job is one account's work for a sweep.
type Job struct {
	Index int
	Key   string
	API   PartnerAPI
}

// Pipeline runs the ordered step sequence for single accounts.
type Pipeline struct {
	deps     Deps
	settings Settings
}

func New(deps Deps, settings Settings) *Pipeline {
	if deps.Events == nil {
		deps.Events = events.Discard
	}
	if settings.LoopCount <= 0 {
		settings.LoopCount = 1
	}
	return &Pipeline{deps: deps, settings: settings}
}

// runner carries the state of one account's execution.
type runner struct {
	*Pipeline
	run  *Run
	acct *wallet.Account
	api  PartnerAPI
	log  *zap.Logger

	targetDecimals *int32
}

// Run executes the pipeline for job and always returns a Run in a terminal
// state. Only an invalid key, a failed login or ctx cancellation abort it.
func (p *Pipeline) Run(ctx context.Context, job Job) *Run {
	r := &runner{Pipeline: p, run: newRun(job.Index), api: job.API}
	defer func() { r.run.FinishedAt = time.Now() }()

	acct, err := wallet.NewAccount(job.Key)
	if err != nil {
		r.log = p.deps.Logger.With(zap.Int("account_index", job.Index))
		r.record(StepInit, 0, StatusFailed, "", err)
		r.abort(err)
		return r.run
	}
	r.acct = acct
	r.run.Address = acct.Address.Hex()
	r.log = p.deps.Logger.With(zap.String("account", logger.ShortAddress(r.run.Address)))

	token, ok := r.login(ctx)
	if !ok {
		return r.run
	}
	r.claimFaucet(ctx, token)

	if err := r.iterate(ctx); err != nil {
		r.abort(err)
		return r.run
	}

	if p.settings.LiquidityEnabled {
		r.run.State = StateAddingLiquidity
		if err := r.addLiquidity(ctx); err != nil {
			r.log.Warn("Liquidity phase abandoned", zap.Error(err))
		}
		if ctx.Err() != nil {
			r.abort(ctx.Err())
			return r.run
		}
	}

	r.run.State = StateDone
	r.log.Info("Account finished", zap.Int("failed_steps", r.run.Failures()))
	return r.run
}

func (r *runner) abort(err error) {
	r.run.State = StateAborted
	r.run.Err = err
	r.log.Error("Account aborted", zap.Error(err))
}

func (r *runner) login(ctx context.Context) (string, bool) {
	r.run.State = StateLoggingIn
	address := r.run.Address

	token, err := r.api.Login(ctx, address, r.acct.SignMessage)
	if err != nil {
		r.record(StepLogin, 0, StatusFailed, "", err)
		r.abort(fmt.Errorf("login: %w", err))
		return "", false
	}
	r.record(StepLogin, 0, StatusOK, "", nil)

	if r.settings.SignIn {
		res, err := r.api.SignIn(ctx, address, token)
		r.recordDaily(StepSignIn, res, err)
	}
	return token, true
}

func (r *runner) claimFaucet(ctx context.Context, token string) {
	if !r.settings.Faucet {
		return
	}
	r.run.State = StateClaimingFaucet
	res, err := r.api.ClaimFaucet(ctx, r.run.Address, token)
	r.recordDaily(StepFaucet, res, err)
}

func (r *runner) recordDaily(step string, res partner.Result, err error) {
	switch {
	case err != nil:
		r.record(step, 0, StatusFailed, res.Message, err)
	case res.AlreadyDone:
		r.record(step, 0, StatusAlreadyDone, res.Message, nil)
	default:
		r.record(step, 0, StatusOK, res.Message, nil)
	}
}

func (r *runner) iterate(ctx context.Context) error {
	r.run.State = StateIterating
	total := r.settings.LoopCount

	for k := 1; k <= total; k++ {
		r.run.Iteration = k
		r.log.Info("Iteration started", zap.Int("iteration", k), zap.Int("of", total))
		r.readBalances(ctx, k)

		if r.settings.FaroSwapEnabled {
			for i, action := range r.settings.Actions {
				if err := ctx.Err(); err != nil {
					return err
				}
				r.perform(ctx, k, action)
				if i < len(r.settings.Actions)-1 {
					if err := r.pause(ctx, r.settings.BetweenSwaps); err != nil {
						return err
					}
				}
			}
			if err := r.pause(ctx, r.settings.AfterFaroSwap); err != nil {
				return err
			}
		}

		if k < total {
			if err := r.pause(ctx, r.settings.BetweenIterations); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

func (r *runner) readBalances(ctx context.Context, k int) {
	native, err := r.deps.Chain.BalanceAt(ctx, r.acct.Address)
	if err != nil {
		r.record(StepBalances, k, StatusFailed, "", err)
		return
	}
	r.run.NativeBalance = native

	target := r.deps.DEX.Config().TargetToken
	tok, err := evm.NewToken(r.deps.Chain, target).BalanceOf(ctx, r.acct.Address)
	if err != nil {
		r.record(StepBalances, k, StatusFailed, "", err)
		return
	}
	r.run.TokenBalance = tok
	r.log.Debug("Balances",
		zap.String("native", faroswap.FromWei(native, faroswap.NativeDecimals).String()),
		zap.String("token", tok.String()))
}

func (r *runner) pause(ctx context.Context, rng Range) error {
	if r.deps.Delays == nil {
		return ctx.Err()
	}
	d, err := r.deps.Delays.Between(ctx, rng.Min, rng.Max)
	if err != nil {
		return err
	}
	if d > 0 {
		r.log.Debug("Paused", zap.Duration("delay", d))
	}
	return nil
}

// submit runs a transaction step and records its outcome.
func (r *runner) submit(ctx context.Context, step string, k int, build transaction.Builder) transaction.Outcome {
	out := r.deps.Executor.Submit(ctx, r.acct, step, build)
	res := StepResult{Step: step, Iteration: k, Status: out.Status.String(), Err: out.Err}
	if out.Hash != (common.Hash{}) {
		res.TxHash = out.Hash.Hex()
	}
	r.note(res)
	return out
}

func (r *runner) record(step string, k int, status, detail string, err error) {
	r.note(StepResult{Step: step, Iteration: k, Status: status, Detail: detail, Err: err})
}

func (r *runner) note(res StepResult) {
	res.At = time.Now()
	r.run.Steps = append(r.run.Steps, res)
	r.run.LastOutcome[res.Step] = res.Status

	fields := []zap.Field{zap.String("step", res.Step), zap.String("status", res.Status)}
	if res.Iteration > 0 {
		fields = append(fields, zap.Int("iteration", res.Iteration))
	}
	if res.Detail != "" {
		fields = append(fields, zap.String("detail", res.Detail))
	}
	if res.TxHash != "" {
		fields = append(fields, zap.String("tx_hash", res.TxHash))
	}
	switch {
	case res.Err != nil:
		r.log.Warn("Step failed", append(fields, zap.Error(res.Err))...)
	case res.Failed():
		r.log.Warn("Step failed", fields...)
	default:
		r.log.Info("Step completed", fields...)
	}

	_ = r.deps.Events.Publish(events.StepCompletedEvent{
		BaseEvent: events.NewBase(events.StepCompleted),
		Address:   r.run.Address,
		Step:      res.Step,
		Iteration: res.Iteration,
		Status:    res.Status,
		TxHash:    res.TxHash,
		Detail:    res.Detail,
		Err:       res.Err,
	})
}

func (r *runner) randomAmount(base decimal.Decimal) decimal.Decimal {
	intn := r.deps.IntN
	if intn == nil {
		return base
	}
	return faroswap.Randomize(base, intn)
}
