package style

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Cyan    = lipgloss.Color("#00E5FF")
	Magenta = lipgloss.Color("#FF1B6B")
	Yellow  = lipgloss.Color("#FFB500")
	Green   = lipgloss.Color("#2AFFAA")
	Red     = lipgloss.Color("#FF5555")
	Blue    = lipgloss.Color("#3B82F6")

	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text
)

// Palette provides a centralized color management
type Palette struct {
	Primary   lipgloss.Color
	Accent    lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Info      lipgloss.Color
	Text      lipgloss.Color
	TextMuted lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Accent:    Magenta,
		Success:   Green,
		Error:     Red,
		Warning:   Yellow,
		Info:      Blue,
		Text:      Base2,
		TextMuted: Base01,
	}
}

// Status picks the style for a step status or terminal state.
func (p Palette) Status(status string) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch status {
	case "confirmed", "ok", "done":
		return s.Foreground(p.Success)
	case "already_done", "skipped":
		return s.Foreground(p.Info)
	case "timed_out", "not_found":
		return s.Foreground(p.Warning)
	case "reverted", "submit_error", "failed", "aborted":
		return s.Foreground(p.Error)
	default:
		return s.Foreground(p.Text)
	}
}

// Muted is the style for secondary details.
func (p Palette) Muted() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(p.TextMuted)
}

// Header is the style for sweep banners.
func (p Palette) Header() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(p.Primary)
}
