// internal/bot/scheduler.go
package bot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pharos-bot/internal/events"
	"github.com/rovshanmuradov/pharos-bot/internal/export"
)

// Waiter blocks for d or until ctx is done.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

// ReportExporter persists sweep reports.
type ReportExporter interface {
	Export(report export.Report, options export.ExportOptions) (string, error)
}

// Scheduler alternates full sweeps with a fixed pause.
type Scheduler struct {
	pool     *WorkerPool
	keys     []string
	interval time.Duration
	waiter   Waiter
	exporter ReportExporter
	options  export.ExportOptions
	logger   *zap.Logger
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithExporter writes a report after every sweep.
func WithExporter(exporter ReportExporter, options export.ExportOptions) SchedulerOption {
	return func(s *Scheduler) {
		s.exporter = exporter
		s.options = options
	}
}

func NewScheduler(pool *WorkerPool, keys []string, interval time.Duration, waiter Waiter, logger *zap.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		pool:     pool,
		keys:     keys,
		interval: interval,
		waiter:   waiter,
		logger:   logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunForever sweeps, waits and repeats until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) error {
	return s.Run(ctx, 0)
}

// Run performs cycles sweeps, or unlimited when cycles is 0. No pause
// follows the last of a bounded run.
func (s *Scheduler) Run(ctx context.Context, cycles int) error {
	for cycle := 1; cycles == 0 || cycle <= cycles; cycle++ {
		res := s.pool.RunSweep(ctx, s.keys)
		s.export(res)

		if err := ctx.Err(); err != nil {
			return err
		}
		if cycles != 0 && cycle == cycles {
			return nil
		}

		s.logger.Info("Cycle complete, sleeping",
			zap.Int("cycle", cycle),
			zap.Duration("interval", s.interval),
			zap.Time("next_sweep", time.Now().Add(s.interval)))
		if err := s.waiter.Wait(ctx, s.interval); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) export(res *SweepResult) {
	if s.exporter == nil {
		return
	}
	if _, err := s.exporter.Export(res.Report(), s.options); err != nil {
		s.logger.Warn("Failed to export sweep report", zap.Error(err))
	}
}

// TickerWaiter sleeps while publishing a countdown tick every Tick.
type TickerWaiter struct {
	Tick   time.Duration
	Events events.Publisher
}

func (w TickerWaiter) Wait(ctx context.Context, d time.Duration) error {
	tick := w.Tick
	if tick <= 0 {
		tick = time.Second
	}
	pub := w.Events
	if pub == nil {
		pub = events.Discard
	}

	deadline := time.Now().Add(d)
	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-ticker.C:
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			_ = pub.Publish(events.CountdownTickEvent{
				BaseEvent: events.NewBase(events.CountdownTick),
				Remaining: remaining,
				Total:     d,
			})
		}
	}
}
