// Package delay produces randomized pauses between on-chain actions.
package delay

import (
	"context"
	"math/rand/v2"
	"time"
)

// Source yields integers in [0, n). *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Policy picks jittered durations. The zero value uses the global generator.
type Policy struct {
	src Source
}

// New returns a Policy backed by src; nil means the global generator.
func New(src Source) *Policy {
	if src == nil {
		src = globalSource{}
	}
	return &Policy{src: src}
}

// Jitter returns a duration uniformly distributed over [min, max], bounds
// included, at millisecond resolution. If max <= min, min is returned.
func (p *Policy) Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	src := p.src
	if src == nil {
		src = globalSource{}
	}
	spanMS := int((max - min) / time.Millisecond)
	if spanMS <= 0 {
		return min
	}
	return min + time.Duration(src.IntN(spanMS+1))*time.Millisecond
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in that case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Between sleeps for a jittered duration drawn from [min, max].
func (p *Policy) Between(ctx context.Context, min, max time.Duration) (time.Duration, error) {
	d := p.Jitter(min, max)
	return d, Sleep(ctx, d)
}
