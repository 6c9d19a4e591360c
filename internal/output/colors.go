package output

import (
	"io"
	"os"

	"github.com/fatih/color"
)

// ColorScheme defines the colors used by the live display.
type ColorScheme struct {
	Title     *color.Color
	Frame     *color.Color
	Value     *color.Color
	Dim       *color.Color
	Good      *color.Color
	Warn      *color.Color
	Bad       *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	s := &ColorScheme{
		Title:     color.New(color.Bold),
		Frame:     color.New(color.FgCyan),
		Value:     color.New(color.FgCyan),
		Dim:       color.New(color.Faint),
		Good:      color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow),
		Bad:       color.New(color.FgRed, color.Bold),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
	for _, c := range s.all() {
		c.EnableColor()
	}
	return s
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	s := DefaultColorScheme()
	for _, c := range s.all() {
		c.DisableColor()
	}
	return s
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Frame, s.Value, s.Dim, s.Good, s.Warn, s.Bad, s.Highlight}
}

// ErrorColor picks a color for an error ratio (0..1).
func (s *ColorScheme) ErrorColor(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return s.Bad
	case rate > 0.01:
		return s.Warn
	default:
		return s.Good
	}
}

// UseColor decides whether output written to w should be colored.
// NO_COLOR disables and FORCE_COLOR enables color regardless of w.
func UseColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if term := os.Getenv("TERM"); term == "dumb" {
		return false
	}
	return IsTerminal(w)
}
