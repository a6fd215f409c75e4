// internal/bot/worker.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/pharos-bot/internal/events"
	"github.com/rovshanmuradov/pharos-bot/internal/export"
	"github.com/rovshanmuradov/pharos-bot/internal/pipeline"
)

// ErrPipelinePanic marks runs that ended in a recovered panic.
var ErrPipelinePanic = errors.New("account pipeline panicked")

// AccountRunner executes one account's pipeline to a terminal state.
type AccountRunner interface {
	Run(ctx context.Context, job pipeline.Job) *pipeline.Run
}

// JobFactory prepares the per-account job, binding its proxy and API client.
// index is zero-based.
type JobFactory func(index int, key string) (pipeline.Job, error)

// SweepResult aggregates the terminal runs of one sweep, in roster order.
type SweepResult struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Runs       []*pipeline.Run
}

// SweepCounts summarizes terminal states.
type SweepCounts struct {
	Done     int
	Aborted  int
	Panicked int
}

func (s *SweepResult) Counts() SweepCounts {
	var c SweepCounts
	for _, run := range s.Runs {
		if run == nil {
			continue
		}
		switch run.State {
		case pipeline.StateDone:
			c.Done++
		case pipeline.StateAborted:
			c.Aborted++
		}
		if errors.Is(run.Err, ErrPipelinePanic) {
			c.Panicked++
		}
	}
	return c
}

// Report converts the sweep into an exportable report.
func (s *SweepResult) Report() export.Report {
	return export.NewReport(s.ID, s.StartedAt, s.FinishedAt, s.Runs)
}

// WorkerPool runs account pipelines with at most capacity in flight.
type WorkerPool struct {
	capacity int
	runner   AccountRunner
	jobs     JobFactory
	eventBus events.Publisher
	logger   *zap.Logger
}

func NewWorkerPool(capacity int, runner AccountRunner, jobs JobFactory, eventBus events.Publisher, logger *zap.Logger) *WorkerPool {
	if capacity <= 0 {
		capacity = 1
	}
	if eventBus == nil {
		eventBus = events.Discard
	}
	return &WorkerPool{
		capacity: capacity,
		runner:   runner,
		jobs:     jobs,
		eventBus: eventBus,
		logger:   logger.Named("workers"),
	}
}

// RunSweep runs every key once and returns after all of them reached a
// terminal state. A failing or panicking account never affects the others.
func (wp *WorkerPool) RunSweep(ctx context.Context, keys []string) *SweepResult {
	res := &SweepResult{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Runs:      make([]*pipeline.Run, len(keys)),
	}
	log := wp.logger.With(zap.String("sweep_id", res.ID))

	workers := wp.capacity
	if workers > len(keys) {
		workers = len(keys)
	}
	log.Info("Sweep started", zap.Int("accounts", len(keys)), zap.Int("workers", workers))
	_ = wp.eventBus.Publish(events.SweepStartedEvent{
		BaseEvent: events.NewBase(events.SweepStarted),
		SweepID:   res.ID,
		Accounts:  len(keys),
		Workers:   workers,
	})

	queue := make(chan int, len(keys))
	for i := range keys {
		queue <- i
	}
	close(queue)

	var g errgroup.Group
	for w := 1; w <= workers; w++ {
		id := w
		g.Go(func() error {
			wlog := log.With(zap.Int("worker_id", id))
			for i := range queue {
				// each index is written by exactly one worker
				res.Runs[i] = wp.runAccount(ctx, wlog, res.ID, i, keys[i], len(keys))
			}
			return nil
		})
	}
	_ = g.Wait()

	res.FinishedAt = time.Now()
	counts := res.Counts()
	log.Info("Sweep finished",
		zap.Int("done", counts.Done),
		zap.Int("aborted", counts.Aborted),
		zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)))
	_ = wp.eventBus.Publish(events.SweepFinishedEvent{
		BaseEvent: events.NewBase(events.SweepFinished),
		SweepID:   res.ID,
		Done:      counts.Done,
		Aborted:   counts.Aborted,
		Panicked:  counts.Panicked,
		Duration:  res.FinishedAt.Sub(res.StartedAt),
	})
	return res
}

func (wp *WorkerPool) runAccount(ctx context.Context, log *zap.Logger, sweepID string, i int, key string, total int) (run *pipeline.Run) {
	index := i + 1
	_ = wp.eventBus.Publish(events.AccountStartedEvent{
		BaseEvent: events.NewBase(events.AccountStarted),
		SweepID:   sweepID,
		Index:     index,
		Total:     total,
	})

	defer func() {
		if p := recover(); p != nil {
			log.Error("Account pipeline panicked",
				zap.Int("account_index", index),
				zap.Any("panic", p),
				zap.Stack("stack"))
			run = &pipeline.Run{
				Index:      index,
				State:      pipeline.StateAborted,
				Err:        fmt.Errorf("%w: %v", ErrPipelinePanic, p),
				FinishedAt: time.Now(),
			}
		}
		_ = wp.eventBus.Publish(events.AccountFinishedEvent{
			BaseEvent: events.NewBase(events.AccountFinished),
			SweepID:   sweepID,
			Index:     index,
			Address:   run.Address,
			State:     string(run.State),
			Err:       run.Err,
		})
	}()

	job, err := wp.jobs(i, key)
	if err != nil {
		log.Error("Failed to prepare account", zap.Int("account_index", index), zap.Error(err))
		return &pipeline.Run{Index: index, State: pipeline.StateAborted, Err: err, FinishedAt: time.Now()}
	}
	job.Index = index

	return wp.runner.Run(ctx, job)
}
