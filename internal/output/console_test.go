package output

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/infraload/internal/loadtest/metrics"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDurationShort(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDurationShort(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatNumber(tt.number)
			if result != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.number, result, tt.expected)
			}
		})
	}
}

func TestVisibleLen(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"hello", 5},
		{"\033[32mgreen\033[0m", 5},
		{"\033[1m\033[34mbold blue\033[0m", 9},
		{"│ ░█", 4},
	}

	for _, tt := range tests {
		if got := visibleLen(tt.input); got != tt.expected {
			t.Errorf("visibleLen(%q) = %d, want %d", tt.input, got, tt.expected)
		}
	}
}

func TestProgressBar(t *testing.T) {
	for _, p := range []float64{-1, 0, 0.5, 1, 2} {
		result := renderProgressBar(p, 20)
		if !strings.HasPrefix(result, "[") || !strings.HasSuffix(result, "]") {
			t.Errorf("progress bar should be wrapped in brackets: %q", result)
		}
		if n := len([]rune(result)); n != 22 {
			t.Errorf("progress bar rune count = %d, want 22", n)
		}
	}
}

func TestLiveStatsProgress(t *testing.T) {
	s := &LiveStats{Elapsed: 30 * time.Second, TimeLimit: time.Minute}
	if p := s.Progress(); p != 0.5 {
		t.Errorf("Progress() = %f, want 0.5", p)
	}
	s.Elapsed = 2 * time.Minute
	if p := s.Progress(); p != 1 {
		t.Errorf("Progress() = %f, want 1", p)
	}
	s.TimeLimit = 0
	if p := s.Progress(); p != -1 {
		t.Errorf("Progress() without limit = %f, want -1", p)
	}
}

func TestNonTTYStatusLine(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Title: "infraload", Writer: &buf, Colors: NoColorScheme()})
	if c.IsTTY() {
		t.Fatal("expected non-TTY when writing to buffer")
	}

	c.Update(&LiveStats{
		Elapsed:         90 * time.Second,
		State:           "running",
		Step:            2,
		Users:           100,
		TargetUsers:     100,
		TotalRequests:   1500,
		Failures:        15,
		ErrorRate:       0.01,
		RPS:             25,
		P95:             120 * time.Millisecond,
		ObserveSuccess:  1190,
		ObserveFailures: 10,
		OutageOpen:      true,
	})

	want := "[1m 30s] running step=2 | Users: 100/100 | Reqs: 1500 | RPS: 25.0 | Errors: 15 (1.0%) | P95: 120ms | OBSERVE ok/fail: 1190/10 | OUTAGE\n"
	if buf.String() != want {
		t.Errorf("status line = %q, want %q", buf.String(), want)
	}
}

func TestTTYRedraw(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, ForceTTY: true, Colors: NoColorScheme()})

	stats := &LiveStats{Elapsed: time.Second, TimeLimit: 10 * time.Second, State: "spawning", Users: 3, TargetUsers: 10}
	c.Update(stats)
	first := buf.String()
	if !strings.Contains(first, "Progress: [") || !strings.Contains(first, "10%") {
		t.Errorf("expected progress bar, got %q", first)
	}
	if strings.Contains(first, "\033[") {
		t.Errorf("first draw should not move the cursor: %q", first)
	}

	for _, line := range strings.Split(strings.TrimRight(first, "\n"), "\n") {
		if strings.HasPrefix(line, boxVertical) && visibleLen(line) != boxWidth {
			t.Errorf("box row width = %d, want %d: %q", visibleLen(line), boxWidth, line)
		}
	}

	buf.Reset()
	c.Update(stats)
	if !strings.HasPrefix(buf.String(), "\033[") {
		t.Errorf("second draw should start by moving the cursor up: %q", buf.String())
	}
}

func TestPassthroughClearsDisplay(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, ForceTTY: true, Colors: NoColorScheme()})
	c.Update(&LiveStats{State: "running"})
	buf.Reset()

	if _, err := c.Passthrough().Write([]byte("[STEP RESULT] step=1\n")); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, clearLine) || !strings.HasSuffix(out, "[STEP RESULT] step=1\n") {
		t.Errorf("unexpected passthrough output %q", out)
	}

	buf.Reset()
	_, _ = c.Passthrough().Write([]byte("x\n"))
	if buf.String() != "x\n" {
		t.Errorf("nothing to clear, got %q", buf.String())
	}
}

func TestQuietMode(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, Quiet: true})

	c.PrintHeader("http://alb")
	c.Update(&LiveStats{State: "running"})
	c.Run(context.Background(), func() *LiveStats { return &LiveStats{} })

	if buf.Len() != 0 {
		t.Errorf("quiet console wrote %q", buf.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, Interval: 5 * time.Millisecond, Colors: NoColorScheme()})

	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 100)
	done := make(chan struct{})
	go func() {
		c.Run(ctx, func() *LiveStats {
			calls <- struct{}{}
			return &LiveStats{State: "running"}
		})
		close(done)
	}()

	<-calls
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStatsFromSnapshot(t *testing.T) {
	snap := &metrics.Snapshot{
		TotalRequests:  500,
		FailedRequests: 10,
		ErrorRate:      0.02,
		RPS:            50,
		ActiveUsers:    10,
		Elapsed:        30 * time.Second,
		Latency:        metrics.LatencyStats{P95: 50 * time.Millisecond},
	}

	stats := StatsFromSnapshot(snap, time.Minute)
	if stats.Users != 10 || stats.TotalRequests != 500 || stats.Failures != 10 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.P95 != 50*time.Millisecond {
		t.Errorf("P95 = %v, want 50ms", stats.P95)
	}
	if stats.Progress() != 0.5 {
		t.Errorf("Progress() = %f, want 0.5", stats.Progress())
	}

	if s := StatsFromSnapshot(nil, 0); s.State != "initializing" {
		t.Errorf("nil snapshot state = %q", s.State)
	}
}

func TestErrorColor(t *testing.T) {
	s := NoColorScheme()
	if s.ErrorColor(0) != s.Good || s.ErrorColor(0.02) != s.Warn || s.ErrorColor(0.5) != s.Bad {
		t.Error("unexpected error color thresholds")
	}
}

func TestUseColorHonorsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv("FORCE_COLOR", "1")
	if UseColor(&bytes.Buffer{}) {
		t.Error("NO_COLOR must disable color")
	}

	t.Setenv("NO_COLOR", "")
	if !UseColor(&bytes.Buffer{}) {
		t.Error("FORCE_COLOR must enable color")
	}

	t.Setenv("FORCE_COLOR", "")
	if UseColor(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}
