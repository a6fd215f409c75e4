// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pharos-bot/internal/approval"
	"github.com/rovshanmuradov/pharos-bot/internal/blockchain/evm"
	"github.com/rovshanmuradov/pharos-bot/internal/config"
	"github.com/rovshanmuradov/pharos-bot/internal/delay"
	"github.com/rovshanmuradov/pharos-bot/internal/dex/faroswap"
	"github.com/rovshanmuradov/pharos-bot/internal/events"
	"github.com/rovshanmuradov/pharos-bot/internal/export"
	"github.com/rovshanmuradov/pharos-bot/internal/partner"
	"github.com/rovshanmuradov/pharos-bot/internal/pipeline"
	"github.com/rovshanmuradov/pharos-bot/internal/proxy"
	"github.com/rovshanmuradov/pharos-bot/internal/transaction"
	"github.com/rovshanmuradov/pharos-bot/internal/wallet"
)

// RunOptions tune a single Runner.Run invocation.
type RunOptions struct {
	// Cycles bounds the number of sweeps; 0 runs until ctx is cancelled.
	Cycles int
	// Waiter replaces the default ticker countdown between sweeps.
	Waiter Waiter
}

// Runner assembles the application from configuration and drives the
// scheduler. Long-lived resources are released through its ShutdownHandler.
type Runner struct {
	logger   *zap.Logger
	config   *config.Config
	bus      *events.Bus
	shutdown *ShutdownHandler
}

func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		logger:   logger,
		config:   cfg,
		bus:      events.NewBus(logger, 1024),
		shutdown: NewShutdownHandler(logger, 10*time.Second),
	}
}

// Events exposes the bus so presenters can subscribe before Run.
func (r *Runner) Events() *events.Bus {
	return r.bus
}

// Close drains the event bus first so subscribers such as the journal see
// every event, then releases everything registered during Run.
func (r *Runner) Close(ctx context.Context) error {
	busErr := r.bus.Shutdown(ctx)
	return errors.Join(busErr, r.shutdown.Shutdown(ctx))
}

func (r *Runner) Run(ctx context.Context, opts RunOptions) error {
	cfg := r.config

	keys, err := wallet.LoadKeys(cfg.KeysFile)
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}
	proxies, err := proxy.Load(cfg.ProxyFile)
	if err != nil {
		return fmt.Errorf("load proxies: %w", err)
	}
	r.logger.Info(fmt.Sprintf("📋 Loaded %d accounts", len(keys)), zap.Int("proxies", proxies.Len()))

	if cfg.Report.Journal != "" {
		journal, err := export.OpenJournal(cfg.Report.Journal, time.Second, r.logger)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		r.bus.Subscribe(events.StepCompleted, journal)
		r.shutdown.Add("step journal", journal)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	if cfg.MetricsAddr != "" {
		srv := StartMetricsServer(cfg.MetricsAddr, registry, r.logger)
		r.shutdown.Add("metrics server", srv)
	}

	client, err := evm.Dial(ctx, evm.Config{
		RPCURL:    cfg.RPCURL,
		RateLimit: cfg.RPCRateLimit,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	r.shutdown.Add("rpc client", client)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	r.logger.Info("🔗 Connected to node", zap.String("rpc", cfg.RPCURL), zap.String("chain_id", chainID.String()))

	pipe, err := r.buildPipeline(client, transaction.NewMetrics(registry))
	if err != nil {
		return err
	}

	pool := NewWorkerPool(cfg.Workers, pipe, r.jobFactory(proxies), r.bus, r.logger)

	waiter := opts.Waiter
	if waiter == nil {
		waiter = TickerWaiter{Tick: time.Second, Events: r.bus}
	}

	var schedOpts []SchedulerOption
	if cfg.Report.Dir != "" {
		schedOpts = append(schedOpts, WithExporter(export.NewSweepExporter(r.logger), export.ExportOptions{
			Format:    export.ExportFormat(cfg.Report.Format),
			OutputDir: cfg.Report.Dir,
		}))
	}
	scheduler := NewScheduler(pool, keys, cfg.CycleInterval, waiter, r.logger, schedOpts...)

	err = scheduler.Run(ctx, opts.Cycles)
	if errors.Is(err, context.Canceled) {
		r.logger.Info("🛑 Stopped by signal")
		return nil
	}
	return err
}

func (r *Runner) buildPipeline(client *evm.Client, metrics *transaction.Metrics) (*pipeline.Pipeline, error) {
	cfg := r.config

	executor := transaction.NewExecutor(client, r.logger, transaction.Config{
		ReceiptTimeout: cfg.Transaction.ReceiptTimeout,
		PollInterval:   cfg.Transaction.PollInterval,
	}, metrics)
	guard := approval.NewGuard(approval.TokenAllowances{Caller: client}, executor, cfg.Transaction.Gas.Approve, r.logger)

	settings, err := Settings(cfg)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Deps{
		Executor: executor,
		Guard:    guard,
		Chain:    client,
		DEX:      faroswap.New(DEXConfig(cfg)),
		Delays:   delay.New(nil),
		Events:   r.bus,
		Logger:   r.logger,
		IntN:     rand.IntN,
	}, settings), nil
}

// jobFactory binds account i to proxy i modulo the pool size.
func (r *Runner) jobFactory(proxies *proxy.Rotator) JobFactory {
	cfg := r.config
	apiConfig := PartnerConfig(cfg)

	return func(index int, key string) (pipeline.Job, error) {
		httpClient := &http.Client{Timeout: cfg.API.RequestTimeout}
		if proxies.Len() > 0 {
			proxyURL, err := proxies.At(index)
			if err != nil {
				return pipeline.Job{}, err
			}
			httpClient, err = proxy.HTTPClient(proxyURL, cfg.API.RequestTimeout)
			if err != nil {
				return pipeline.Job{}, fmt.Errorf("proxy %s: %w", proxy.Mask(proxyURL), err)
			}
		}
		return pipeline.Job{
			Key: key,
			API: partner.NewClient(httpClient, apiConfig, r.logger),
		}, nil
	}
}

// PartnerConfig extracts the partner API settings.
func PartnerConfig(cfg *config.Config) partner.Config {
	return partner.Config{
		BaseURL:            cfg.API.BaseURL,
		InviteCode:         cfg.API.InviteCode,
		LoginMessage:       cfg.API.LoginMessage,
		UserAgent:          cfg.API.UserAgent,
		Referer:            cfg.API.Referer,
		LoginAttempts:      cfg.API.LoginAttempts,
		LoginDelay:         cfg.API.LoginDelay,
		RateLimitMarkers:   cfg.API.RateLimitMarkers,
		AlreadyDoneMarkers: cfg.API.AlreadyDoneMarkers,
	}
}

// DEXConfig extracts contract addresses and gas limits.
func DEXConfig(cfg *config.Config) faroswap.Config {
	return faroswap.Config{
		Router:          common.HexToAddress(cfg.FaroSwap.Router),
		WrappedNative:   common.HexToAddress(cfg.FaroSwap.WrappedNative),
		TargetToken:     common.HexToAddress(cfg.FaroSwap.TargetToken),
		PositionManager: common.HexToAddress(cfg.Liquidity.PositionManager),
		FeeTier:         cfg.FaroSwap.FeeTier,
		Deadline:        time.Duration(cfg.FaroSwap.DeadlineSec) * time.Second,
		WrapGas:         cfg.Transaction.Gas.Wrap,
		SwapGas:         cfg.Transaction.Gas.Swap,
		LiquidityGas:    cfg.Transaction.Gas.Liquidity,
	}
}

// Settings resolves pipeline settings, parsing decimal amounts.
func Settings(cfg *config.Config) (pipeline.Settings, error) {
	s := pipeline.Settings{
		LoopCount:         cfg.LoopCount,
		SignIn:            cfg.API.SignInEnabled,
		Faucet:            cfg.API.FaucetEnabled,
		FaroSwapEnabled:   cfg.FaroSwap.Enabled,
		Actions:           cfg.FaroSwap.Actions,
		LiquidityEnabled:  cfg.Liquidity.Enabled,
		PositionID:        new(big.Int),
		BetweenSwaps:      toRange(cfg.Delays.BetweenSwaps),
		BetweenIterations: toRange(cfg.Delays.BetweenIterations),
		AfterFaroSwap:     toRange(cfg.Delays.AfterFaroSwap),
	}

	var err error
	// the liquidity top-up swap spends faroswap.amount too
	if cfg.FaroSwap.Enabled || cfg.Liquidity.Enabled {
		if s.SwapAmount, err = parseAmount("faroswap.amount", cfg.FaroSwap.Amount); err != nil {
			return s, err
		}
	}
	if cfg.FaroSwap.Enabled {
		if s.SwapBackAmount, err = parseAmount("faroswap.swap_back_amount", cfg.FaroSwap.SwapBackAmount); err != nil {
			return s, err
		}
		if s.WrapAmount, err = parseAmount("faroswap.wrap_amount", cfg.FaroSwap.WrapAmount); err != nil {
			return s, err
		}
	}
	if cfg.Liquidity.Enabled {
		s.PositionID = cfg.Liquidity.PositionID()
		if s.Amount0, err = parseAmount("liquidity.amount0", cfg.Liquidity.Amount0); err != nil {
			return s, err
		}
		if s.Amount1, err = parseAmount("liquidity.amount1", cfg.Liquidity.Amount1); err != nil {
			return s, err
		}
	}
	return s, nil
}

func parseAmount(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return d, nil
}

func toRange(r config.Range) pipeline.Range {
	lo, hi := r.Bounds()
	return pipeline.Range{Min: lo, Max: hi}
}
