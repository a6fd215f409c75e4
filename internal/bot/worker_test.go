package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/pharos-bot/internal/events"
	"github.com/rovshanmuradov/pharos-bot/internal/pipeline"
)

type runnerFunc func(ctx context.Context, job pipeline.Job) *pipeline.Run

func (f runnerFunc) Run(ctx context.Context, job pipeline.Job) *pipeline.Run { return f(ctx, job) }

func keyJobs(index int, key string) (pipeline.Job, error) {
	return pipeline.Job{Key: key}, nil
}

func doneRun(job pipeline.Job) *pipeline.Run {
	return &pipeline.Run{Index: job.Index, Address: job.Key, State: pipeline.StateDone}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count(t events.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type() == t {
			n++
		}
	}
	return n
}

func makeKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}
	return keys
}

func TestRunSweepStartsAllAccountsConcurrently(t *testing.T) {
	const accounts = 5
	var started sync.WaitGroup
	started.Add(accounts)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	runner := runnerFunc(func(ctx context.Context, job pipeline.Job) *pipeline.Run {
		started.Done()
		select {
		case <-allStarted:
		case <-time.After(5 * time.Second):
			return &pipeline.Run{Index: job.Index, State: pipeline.StateAborted, Err: errors.New("not concurrent")}
		}
		return doneRun(job)
	})

	pool := NewWorkerPool(accounts, runner, keyJobs, nil, zaptest.NewLogger(t))
	res := pool.RunSweep(context.Background(), makeKeys(accounts))

	require.Len(t, res.Runs, accounts)
	for i, run := range res.Runs {
		require.NotNil(t, run, "run %d", i)
		assert.Equal(t, pipeline.StateDone, run.State, "run %d", i)
		assert.Equal(t, i+1, run.Index)
		assert.Equal(t, fmt.Sprintf("key-%d", i), run.Address)
	}
	assert.Equal(t, SweepCounts{Done: accounts}, res.Counts())
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestRunSweepBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	runner := runnerFunc(func(ctx context.Context, job pipeline.Job) *pipeline.Run {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return doneRun(job)
	})

	pool := NewWorkerPool(2, runner, keyJobs, nil, zaptest.NewLogger(t))
	res := pool.RunSweep(context.Background(), makeKeys(6))

	assert.Equal(t, 6, res.Counts().Done)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(0), inFlight.Load())
}

func TestRunSweepIsolatesPanicsAndErrors(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, job pipeline.Job) *pipeline.Run {
		switch job.Key {
		case "key-1":
			panic("boom")
		case "key-2":
			return &pipeline.Run{Index: job.Index, State: pipeline.StateAborted, Err: errors.New("login failed")}
		}
		return doneRun(job)
	})
	jobs := func(index int, key string) (pipeline.Job, error) {
		if key == "key-3" {
			return pipeline.Job{}, errors.New("bad proxy")
		}
		return pipeline.Job{Key: key}, nil
	}

	pub := &recordingPublisher{}
	pool := NewWorkerPool(3, runner, jobs, pub, zaptest.NewLogger(t))
	res := pool.RunSweep(context.Background(), makeKeys(5))

	require.Len(t, res.Runs, 5)
	assert.Equal(t, pipeline.StateDone, res.Runs[0].State)
	assert.Equal(t, pipeline.StateAborted, res.Runs[1].State)
	assert.ErrorIs(t, res.Runs[1].Err, ErrPipelinePanic)
	assert.Equal(t, 2, res.Runs[1].Index)
	assert.EqualError(t, res.Runs[2].Err, "login failed")
	assert.EqualError(t, res.Runs[3].Err, "bad proxy")
	assert.Equal(t, 4, res.Runs[3].Index)
	assert.Equal(t, pipeline.StateDone, res.Runs[4].State)

	assert.Equal(t, SweepCounts{Done: 2, Aborted: 3, Panicked: 1}, res.Counts())

	assert.Equal(t, 1, pub.count(events.SweepStarted))
	assert.Equal(t, 5, pub.count(events.AccountStarted))
	assert.Equal(t, 5, pub.count(events.AccountFinished))
	assert.Equal(t, 1, pub.count(events.SweepFinished))

	pub.mu.Lock()
	last := pub.events[len(pub.events)-1]
	pub.mu.Unlock()
	finished, ok := last.(events.SweepFinishedEvent)
	require.True(t, ok)
	assert.Equal(t, res.ID, finished.SweepID)
	assert.Equal(t, 1, finished.Panicked)
}

func TestRunSweepEmptyRoster(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, job pipeline.Job) *pipeline.Run {
		t.Fatal("runner must not be called")
		return nil
	})
	pool := NewWorkerPool(4, runner, keyJobs, nil, zaptest.NewLogger(t))
	res := pool.RunSweep(context.Background(), nil)
	assert.Empty(t, res.Runs)
	assert.Equal(t, SweepCounts{}, res.Counts())
}

func TestSweepReport(t *testing.T) {
	res := &SweepResult{
		ID:        "sweep-1",
		StartedAt: time.Now(),
		Runs: []*pipeline.Run{
			{Index: 1, State: pipeline.StateDone},
			{Index: 2, State: pipeline.StateAborted, Err: errors.New("x")},
		},
	}
	report := res.Report()
	assert.Equal(t, "sweep-1", report.SweepID)
	assert.Equal(t, 1, report.Summary.Done)
	assert.Equal(t, 1, report.Summary.Aborted)
}
