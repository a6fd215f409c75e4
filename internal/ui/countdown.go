// internal/ui/countdown.go
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/timer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/pharos-bot/internal/ui/style"
)

// ErrInterrupted is returned when the user quits the countdown. It wraps
// context.Canceled so callers treat it as a regular stop.
var ErrInterrupted = fmt.Errorf("countdown interrupted: %w", context.Canceled)

const maxBarWidth = 60

type countdownModel struct {
	timer       timer.Model
	bar         progress.Model
	total       time.Duration
	palette     style.Palette
	interrupted bool
}

func newCountdownModel(total time.Duration) countdownModel {
	return countdownModel{
		timer:   timer.NewWithInterval(total, time.Second),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		total:   total,
		palette: style.DefaultPalette(),
	}
}

func (m countdownModel) Init() tea.Cmd {
	return m.timer.Init()
}

func (m countdownModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case timer.TickMsg, timer.StartStopMsg:
		var cmd tea.Cmd
		m.timer, cmd = m.timer.Update(msg)
		return m, cmd

	case timer.TimeoutMsg:
		if msg.ID == m.timer.ID() {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-4, maxBarWidth)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.interrupted = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m countdownModel) elapsed() float64 {
	if m.total <= 0 {
		return 1
	}
	done := 1 - float64(m.timer.Timeout)/float64(m.total)
	return max(0, min(1, done))
}

func (m countdownModel) View() string {
	var b strings.Builder
	b.WriteString(m.palette.Header().Render("⏳ Next sweep in " + FormatRemaining(m.timer.Timeout)))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.elapsed()))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(m.palette.TextMuted).Render("q: quit"))
	b.WriteString("\n")
	return b.String()
}

// CountdownWaiter renders a live countdown between sweeps.
type CountdownWaiter struct {
	Input  io.Reader
	Output io.Writer
}

func (w CountdownWaiter) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if w.Input != nil {
		opts = append(opts, tea.WithInput(w.Input))
	}
	if w.Output != nil {
		opts = append(opts, tea.WithOutput(w.Output))
	}

	final, err := tea.NewProgram(newCountdownModel(d), opts...).Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("countdown: %w", err)
	}
	if m, ok := final.(countdownModel); ok && m.interrupted {
		return ErrInterrupted
	}
	return nil
}
