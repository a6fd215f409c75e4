// internal/ui/presenter.go
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rovshanmuradov/pharos-bot/internal/events"
	"github.com/rovshanmuradov/pharos-bot/internal/logger"
	"github.com/rovshanmuradov/pharos-bot/internal/ui/style"
)

// Presenter renders bus events as colored console lines. Rendering only
// reads event values, so it never touches pipeline state.
type Presenter struct {
	mu      sync.Mutex
	out     io.Writer
	palette style.Palette

	// CountdownEvery throttles countdown lines; 0 prints every tick.
	CountdownEvery time.Duration
	lastBucket     time.Duration
}

func NewPresenter(out io.Writer) *Presenter {
	return &Presenter{
		out:            out,
		palette:        style.DefaultPalette(),
		CountdownEvery: time.Minute,
		lastBucket:     -1,
	}
}

// Attach subscribes the presenter to every event on bus.
func (p *Presenter) Attach(bus *events.Bus) events.Subscription {
	return bus.SubscribeAll(p)
}

// Handle implements events.Handler.
func (p *Presenter) Handle(_ context.Context, event events.Event) error {
	line := p.render(event)
	if line == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.out, line)
	return err
}

func (p *Presenter) render(event events.Event) string {
	ts := p.palette.Muted().Render(event.Timestamp().Format("15:04:05"))

	switch e := event.(type) {
	case events.SweepStartedEvent:
		return ts + " " + p.palette.Header().Render(
			fmt.Sprintf("▶ Sweep %s: %d accounts, %d workers", shortID(e.SweepID), e.Accounts, e.Workers))

	case events.SweepFinishedEvent:
		summary := fmt.Sprintf("■ Sweep %s finished in %s: %s done, %s aborted",
			shortID(e.SweepID),
			e.Duration.Round(time.Second),
			p.palette.Status("done").Render(fmt.Sprint(e.Done)),
			p.palette.Status("aborted").Render(fmt.Sprint(e.Aborted)))
		if e.Panicked > 0 {
			summary += fmt.Sprintf(" (%d crashed)", e.Panicked)
		}
		return ts + " " + summary

	case events.AccountStartedEvent:
		return fmt.Sprintf("%s [%d/%d] starting", ts, e.Index, e.Total)

	case events.AccountFinishedEvent:
		line := fmt.Sprintf("%s [%d] %s %s", ts, e.Index, logger.ShortAddress(e.Address), p.palette.Status(e.State).Render(e.State))
		if e.Err != nil {
			line += " " + p.palette.Muted().Render(e.Err.Error())
		}
		return line

	case events.StepCompletedEvent:
		var b strings.Builder
		b.WriteString(ts)
		b.WriteString(" ")
		b.WriteString(logger.ShortAddress(e.Address))
		b.WriteString(" ")
		b.WriteString(e.Step)
		if e.Iteration > 0 {
			fmt.Fprintf(&b, " #%d", e.Iteration)
		}
		b.WriteString(" ")
		b.WriteString(p.palette.Status(e.Status).Render(e.Status))
		if e.TxHash != "" {
			b.WriteString(" ")
			b.WriteString(p.palette.Muted().Render(e.TxHash))
		}
		if e.Detail != "" {
			b.WriteString(" ")
			b.WriteString(e.Detail)
		}
		if e.Err != nil {
			b.WriteString(" ")
			b.WriteString(p.palette.Muted().Render(e.Err.Error()))
		}
		return b.String()

	case events.CountdownTickEvent:
		return p.countdown(ts, e)
	}
	return ""
}

func (p *Presenter) countdown(ts string, e events.CountdownTickEvent) string {
	remaining := e.Remaining.Round(time.Second)

	p.mu.Lock()
	if p.CountdownEvery > 0 {
		bucket := remaining / p.CountdownEvery
		if bucket == p.lastBucket {
			p.mu.Unlock()
			return ""
		}
		p.lastBucket = bucket
	}
	p.mu.Unlock()

	return fmt.Sprintf("%s ⏳ next sweep in %s", ts, FormatRemaining(remaining))
}

// FormatRemaining prints d as HH:MM:SS.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
