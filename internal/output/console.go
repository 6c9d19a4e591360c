// Package output renders live progress of a load test on the console.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/infraload/internal/loadtest/metrics"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

// Box drawing and progress bar characters
const (
	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"

	boxWidth = 60
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Elapsed   time.Duration
	TimeLimit time.Duration // zero when the run has no fixed end
	State     string
	Step      int // current ramp step, zero without a step shape

	Users       int
	TargetUsers int

	TotalRequests int64
	Failures      int64
	ErrorRate     float64 // 0.0 to 1.0
	RPS           float64
	P95           time.Duration

	ObserveSuccess  int
	ObserveFailures int
	OutageOpen      bool
}

// Progress returns elapsed/limit clamped to [0,1], or -1 when the run
// has no time limit.
func (s *LiveStats) Progress() float64 {
	if s.TimeLimit <= 0 {
		return -1
	}
	p := float64(s.Elapsed) / float64(s.TimeLimit)
	return max(0, min(1, p))
}

// StatsFromSnapshot fills the engine-wide fields of LiveStats.
func StatsFromSnapshot(snap *metrics.Snapshot, timeLimit time.Duration) *LiveStats {
	if snap == nil {
		return &LiveStats{TimeLimit: timeLimit, State: "initializing"}
	}
	return &LiveStats{
		Elapsed:       snap.Elapsed,
		TimeLimit:     timeLimit,
		Users:         snap.ActiveUsers,
		TotalRequests: snap.TotalRequests,
		Failures:      snap.FailedRequests,
		ErrorRate:     snap.ErrorRate,
		RPS:           snap.RPS,
		P95:           snap.Latency.P95,
	}
}

// Console manages live console output during a run. On a terminal the
// status box is redrawn in place; otherwise one status line is
// printed per update.
type Console struct {
	title    string
	writer   io.Writer
	interval time.Duration
	isTTY    bool
	quiet    bool
	colors   *ColorScheme

	mu          sync.Mutex
	linesOutput int
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Title    string
	Writer   io.Writer
	Interval time.Duration
	Quiet    bool
	ForceTTY bool

	// Colors overrides the automatic color decision
	Colors *ColorScheme
}

// NewConsole creates a console.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	colors := cfg.Colors
	if colors == nil {
		if UseColor(cfg.Writer) {
			colors = DefaultColorScheme()
		} else {
			colors = NoColorScheme()
		}
	}

	return &Console{
		title:    cfg.Title,
		writer:   cfg.Writer,
		interval: cfg.Interval,
		isTTY:    cfg.ForceTTY || IsTerminal(cfg.Writer),
		quiet:    cfg.Quiet,
		colors:   colors,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run banner.
func (c *Console) PrintHeader(target string) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, boxWidth)
	c.writeln(c.colors.Frame.Sprint(line))
	c.writeln(c.colors.Title.Sprintf("%s - Running", c.title))
	c.writeln(fmt.Sprintf("Target: %s", c.colors.Value.Sprint(target)))
	c.writeln(c.colors.Frame.Sprint(line))
}

// Update shows stats, redrawing in place on a terminal.
func (c *Console) Update(stats *LiveStats) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTTY {
		c.writeln(c.statusLine(stats))
		return
	}

	c.clearLocked()
	lines := c.renderLiveStats(stats)
	for _, line := range lines {
		c.writeln(line)
	}
	c.linesOutput = len(lines)
}

// Clear erases the live display.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Run calls source every interval and shows the result until ctx ends.
func (c *Console) Run(ctx context.Context, source func() *LiveStats) {
	if c.quiet {
		return
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Clear()
			return
		case <-ticker.C:
			c.Update(source())
		}
	}
}

// Passthrough returns a writer for other output sharing the terminal.
// Each write first erases the live display, which the next Update
// draws again below the written text.
func (c *Console) Passthrough() io.Writer {
	return passthrough{c}
}

type passthrough struct{ c *Console }

func (p passthrough) Write(b []byte) (int, error) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.c.clearLocked()
	return p.c.writer.Write(b)
}

func (c *Console) clearLocked() {
	if !c.isTTY || c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// statusLine is the single-line form used when not on a terminal.
func (c *Console) statusLine(s *LiveStats) string {
	line := fmt.Sprintf("[%s] %s", formatDuration(s.Elapsed), s.State)
	if s.Step > 0 {
		line += fmt.Sprintf(" step=%d", s.Step)
	}
	line += fmt.Sprintf(" | Users: %d/%d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s | OBSERVE ok/fail: %d/%d",
		s.Users, s.TargetUsers,
		s.TotalRequests, s.RPS,
		s.Failures, s.ErrorRate*100,
		formatDurationShort(s.P95),
		s.ObserveSuccess, s.ObserveFailures)
	if s.OutageOpen {
		line += " | OUTAGE"
	}
	return line
}

// renderLiveStats renders the live statistics box.
func (c *Console) renderLiveStats(s *LiveStats) []string {
	var lines []string

	timeInfo := formatDuration(s.Elapsed)
	if p := s.Progress(); p >= 0 {
		timeInfo = fmt.Sprintf("%s %s | %s / %s",
			c.colors.Good.Sprint(renderProgressBar(p, 30)),
			c.colors.Title.Sprintf("%.0f%%", p*100),
			formatDuration(s.Elapsed), formatDuration(s.TimeLimit))
	}
	lines = append(lines, "Progress: "+timeInfo)

	phase := s.State
	if s.Step > 0 {
		phase = fmt.Sprintf("%s (step %d)", s.State, s.Step)
	}
	lines = append(lines, "State:    "+c.colors.Highlight.Sprint(phase))

	lines = append(lines, c.colors.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	errColor := c.colors.ErrorColor(s.ErrorRate)
	lines = append(lines,
		c.formatBoxRow(
			fmt.Sprintf("Users:   %s / %d", c.colors.Value.Sprint(s.Users), s.TargetUsers),
			fmt.Sprintf("Requests: %s", c.colors.Value.Sprint(formatNumber(s.TotalRequests))),
		),
		c.formatBoxRow(
			fmt.Sprintf("RPS:     %s", c.colors.Good.Sprintf("%.1f", s.RPS)),
			fmt.Sprintf("Errors:   %s", errColor.Sprintf("%d (%.1f%%)", s.Failures, s.ErrorRate*100)),
		),
	)

	outage := c.colors.Good.Sprint("no")
	if s.OutageOpen {
		outage = c.colors.Bad.Sprint("OPEN")
	}
	lines = append(lines,
		c.formatBoxRow(
			fmt.Sprintf("P95:     %s", c.colors.Value.Sprint(formatDurationShort(s.P95))),
			fmt.Sprintf("Outage:   %s", outage),
		),
		c.formatBoxRow(
			fmt.Sprintf("Observe: %s", c.colors.Good.Sprint(formatNumber(int64(s.ObserveSuccess)))),
			fmt.Sprintf("Failed:   %s", c.colors.ErrorColor(failRatio(s)).Sprint(formatNumber(int64(s.ObserveFailures)))),
		),
	)

	lines = append(lines, c.colors.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))
	return lines
}

func failRatio(s *LiveStats) float64 {
	total := s.ObserveSuccess + s.ObserveFailures
	if total == 0 {
		return 0
	}
	return float64(s.ObserveFailures) / float64(total)
}

// formatBoxRow formats a two-column row inside the stats box.
func (c *Console) formatBoxRow(left, right string) string {
	// two borders, a separator and three spaces
	colWidth := (boxWidth - 6) / 2
	leftPadding := max(0, colWidth-visibleLen(left))
	rightPadding := max(0, colWidth-visibleLen(right))
	border := c.colors.Dim.Sprint(boxVertical)

	return fmt.Sprintf("%s %s%s%s %s%s %s",
		border,
		left, strings.Repeat(" ", leftPadding),
		border,
		right, strings.Repeat(" ", rightPadding),
		border)
}

func renderProgressBar(progress float64, width int) string {
	progress = max(0, min(1, progress))
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return "0ms"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if n < 0 || len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

// visibleLen counts the runes of s outside ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		if r == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		n++
	}
	return n
}
