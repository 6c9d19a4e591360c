package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSummary() *Summary {
	return &Summary{
		RunID: "run-1",
		Config: ConfigEcho{
			TargetURL:      "http://alb.example.com",
			ObservePath:    "/",
			FaultEnabled:   true,
			FaultModeLabel: "SINGLE",
			SLAP95Ms:       500,
		},
		Reliability: Reliability{Latency: Latency{Fallback: true}},
	}
}

func render(t *testing.T, s *Summary) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewTextRenderer(false).Render(&buf, s))
	return buf.String()
}

func TestRender_EmptyRun(t *testing.T) {
	out := render(t, baseSummary())

	for _, want := range []string{
		"INFRA PERFORMANCE SUMMARY",
		"  Run ID: run-1",
		"  Target URL: http://alb.example.com",
		"  Fault Injection: Enabled (Mode: SINGLE)",
		"  Step SLA Stop: Disabled",
		"  Normal stop (time_limit/manual/other).",
		"  No host data collected via OBSERVE_PATH.",
		"    No OBSERVE data collected.",
		"    P95 Latency (ALL fallback): N/A",
		"    SLA Met (<500ms): N/A",
		"  No outage detected.",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Success Rate")
	assert.NotContains(t, out, "[HTTP Error Codes]")
	assert.NotContains(t, out, "[Scaling Activity]")
}

func TestRender_SectionOrder(t *testing.T) {
	out := render(t, baseSummary())

	order := []string{"[Configuration]", "[Stop Reason]", "[Load Balancing Status]", "[Reliability Metrics]", "[Service Outages]"}
	last := -1
	for _, section := range order {
		idx := strings.Index(out, section)
		require.Greater(t, idx, last, section)
		last = idx
	}
	assert.True(t, strings.HasSuffix(out, strings.Repeat("=", ruleWidth)+"\n\n"))
}

func TestRender_FullRun(t *testing.T) {
	s := baseSummary()
	s.Config.StepSLAStop = true
	s.StopReason = &SLAStop{Step: 3, Users: 150, P95Ms: 812.34, P99Ms: 950, FailRate: 1.5, ObservedTotal: 1200, ElapsedSec: 541.2}
	s.Servers = []ServerHits{{ID: "ip-10-0-1-5", Hits: 3, Ratio: 75}, {ID: "ip-10-0-2-9", Hits: 1, Ratio: 25}}
	s.TotalHits = 4
	s.Scaling = &Scaling{
		Initial: []string{"ip-10-0-1-5"},
		New:     []HostSighting{{ID: "ip-10-0-2-9", OffsetSec: 95.25, FirstSeen: time.Date(2026, 3, 1, 12, 1, 35, 0, time.UTC)}},
	}
	errDur := 4.25
	s.Reliability = Reliability{
		TotalRequests:    5000,
		TotalFailures:    12,
		ObserveRequests:  4,
		ObserveFailures:  1,
		ErrorDurationSec: &errDur,
		Latency:          Latency{Available: true, P95Ms: 420.5, P99Ms: 610, SLAMet: true},
		SuccessRate:      75,
		HTTPCodes:        []CodeCount{{Code: "503", Count: 8}, {Code: "502", Count: 2}},
		HTTPCodeTotal:    10,
		TopFailures:      []Failure{{Occurrences: 8, Method: "GET", Message: "503 Server Error: Service Unavailable for url: http://x/"}},
	}
	s.Outages = OutageSummary{
		Kind: OutageSignificant, MinSec: 0.1,
		RawCount: 3, RawTotal: 2.55, RawMax: 2,
		Count: 2, Total: 2.5, Max: 2, P50: 0.5, P95: 2, P99: 2,
		Longest: []float64{2, 0.5},
	}

	out := render(t, s)
	for _, want := range []string{
		"  Step SLA Stop: Enabled",
		"  Stopped early by STEP-SLA",
		"    - step      : 3",
		"    - users~    : 150",
		"    - step_p95  : 812.3ms  (SLA=500ms)",
		"    - fail%     : 1.50",
		"    - elapsed   : 541.2s",
		"  ip-10-0-1-5               | Hits:      3 | Ratio:  75.0%",
		"  Distinct Servers Detected: 2",
		"  Initial Hosts : [ip-10-0-1-5]",
		"    + ip-10-0-2-9 (detected at 95.2s | 12:01:35)",
		"  Total Requests (ALL) : 5000",
		"    Error Duration    : 4.2s",
		"    P95 Latency       : 420.5 ms",
		"    SLA Met (<500ms): YES",
		"    Success Rate      : 75.00%",
		"[HTTP Error Codes] (name=OBSERVE) 503:8, 502:2 (total=10)",
		"      8 | GET  | 503 Server Error",
		"  Outage summary (>= 0.100s)",
		"    - count      : 2  (raw=3)",
		"    - p50/p95/p99: 0.500s / 2.000s / 2.000s",
		"  Top 2 longest outages:",
		"    #01 2.000s",
		"    #02 0.500s",
	} {
		assert.Contains(t, out, want)
	}
}

func TestRender_MicroOutagesAndNoNewHosts(t *testing.T) {
	s := baseSummary()
	s.Servers = []ServerHits{{ID: "a", Hits: 1, Ratio: 100}}
	s.TotalHits = 1
	s.Scaling = &Scaling{Initial: []string{"a"}}
	s.Outages = OutageSummary{Kind: OutageMicroOnly, MinSec: 0.1, RawCount: 2, RawTotal: 0.09, RawMax: 0.05}

	out := render(t, s)
	assert.Contains(t, out, "  No new hosts detected during the test.")
	assert.Contains(t, out, "  Only micro-outages observed (<0.100s).")
	assert.Contains(t, out, "    - raw_count : 2")
	assert.Contains(t, out, "    - raw_max   : 0.050s")
}

func TestRender_SLANotMetFallback(t *testing.T) {
	s := baseSummary()
	s.Reliability.Latency = Latency{Available: true, Fallback: true, P95Ms: 900, P99Ms: 1200}

	out := render(t, s)
	assert.Contains(t, out, "    P95 Latency (ALL fallback): 900.0 ms")
	assert.Contains(t, out, "    SLA Met (<500ms): NO")
}

func TestRender_Color(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextRenderer(true).Render(&buf, baseSummary()))
	assert.Contains(t, buf.String(), "\x1b[")

	plain := render(t, baseSummary())
	assert.NotContains(t, plain, "\x1b[")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRender_WriteError(t *testing.T) {
	err := NewTextRenderer(false).Render(failingWriter{}, baseSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestNum(t *testing.T) {
	assert.Equal(t, "500", Num(500))
	assert.Equal(t, "0.5", Num(0.5))
	assert.Equal(t, "10", Num(10.0))
}
