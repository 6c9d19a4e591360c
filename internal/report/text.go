package report

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

const ruleWidth = 60

// TextRenderer prints the summary as the sectioned console report.
type TextRenderer struct {
	heading *color.Color
	good    *color.Color
	bad     *color.Color
}

// NewTextRenderer creates a renderer. Headings and verdicts are colored
// only when useColor is set.
func NewTextRenderer(useColor bool) *TextRenderer {
	r := &TextRenderer{
		heading: color.New(color.FgCyan, color.Bold),
		good:    color.New(color.FgGreen, color.Bold),
		bad:     color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{r.heading, r.good, r.bad} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Render writes the report sections in their fixed order.
func (r *TextRenderer) Render(w io.Writer, s *Summary) error {
	bw := bufio.NewWriter(w)
	p := &printer{w: bw}

	r.config(p, s)
	r.stopReason(p, s)
	r.loadBalancing(p, s)
	r.reliability(p, s)
	r.outages(p, s)
	p.line(strings.Repeat("=", ruleWidth) + "\n")

	if p.err != nil {
		return fmt.Errorf("failed to write report: %w", p.err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (r *TextRenderer) config(p *printer, s *Summary) {
	c := s.Config
	p.line("\n" + strings.Repeat("=", ruleWidth))
	p.line(r.heading.Sprint("INFRA PERFORMANCE SUMMARY"))
	p.line(strings.Repeat("-", ruleWidth))
	p.line(r.heading.Sprint("[Configuration]"))
	if s.RunID != "" {
		p.linef("  Run ID: %s", s.RunID)
	}
	p.linef("  Target URL: %s", c.TargetURL)
	p.linef("  Observe Path: %s", c.ObservePath)
	p.linef("  Fault Injection: %s (Mode: %s)", enabled(c.FaultEnabled), c.FaultModeLabel)
	p.linef("  Step SLA Stop: %s", enabled(c.StepSLAStop))
}

func (r *TextRenderer) stopReason(p *printer, s *Summary) {
	p.line("\n" + r.heading.Sprint("[Stop Reason]"))
	stop := s.StopReason
	if stop == nil {
		p.line("  Normal stop (time_limit/manual/other).")
		return
	}

	p.line("  " + r.bad.Sprint("Stopped early by STEP-SLA"))
	p.linef("    - step      : %d", stop.Step)
	p.linef("    - users~    : %d", stop.Users)
	p.linef("    - step_p95  : %.1fms  (SLA=%sms)", stop.P95Ms, Num(s.Config.SLAP95Ms))
	p.linef("    - step_p99  : %.1fms", stop.P99Ms)
	p.linef("    - fail%%     : %.2f", stop.FailRate)
	p.linef("    - obs_total : %d", stop.ObservedTotal)
	p.linef("    - elapsed   : %.1fs", stop.ElapsedSec)
	p.line("  Note: Summary SLA below is computed over the entire test window.")
}

func (r *TextRenderer) loadBalancing(p *printer, s *Summary) {
	p.line("\n" + r.heading.Sprint("[Load Balancing Status] (OBSERVE-based)"))
	if s.TotalHits == 0 {
		p.line("  No host data collected via OBSERVE_PATH.")
		p.line("  Ensure the server response includes 'Host' or 'Hostname'.")
		return
	}

	for _, h := range s.Servers {
		p.linef("  %-25s | Hits: %6d | Ratio: %5.1f%%", h.ID, h.Hits, h.Ratio)
	}
	p.linef("  Distinct Servers Detected: %d", len(s.Servers))

	if s.Scaling == nil {
		return
	}
	p.line("\n" + r.heading.Sprint("[Scaling Activity] (OBSERVE-based)"))
	p.linef("  Initial Hosts : [%s]", strings.Join(s.Scaling.Initial, ", "))
	if len(s.Scaling.New) == 0 {
		p.line("  No new hosts detected during the test.")
		return
	}
	p.line("  New Hosts Detected (scale-out or replacement):")
	for _, h := range s.Scaling.New {
		p.linef("    + %s (detected at %.1fs | %s)", h.ID, h.OffsetSec, h.FirstSeen.Format("15:04:05"))
	}
}

func (r *TextRenderer) reliability(p *printer, s *Summary) {
	rel := s.Reliability
	sla := Num(s.Config.SLAP95Ms)

	p.line("\n" + r.heading.Sprint("[Reliability Metrics]"))
	p.linef("  Total Requests (ALL) : %d", rel.TotalRequests)
	p.linef("  Failed Requests(ALL) : %d", rel.TotalFailures)

	p.line("\n  [Client View = OBSERVE]")
	if rel.ObserveRequests == 0 {
		p.line("    No OBSERVE data collected.")
	}
	p.linef("    OBSERVE Requests  : %d", rel.ObserveRequests)
	p.linef("    OBSERVE Failures  : %d", rel.ObserveFailures)
	if rel.ErrorDurationSec != nil {
		p.linef("    Error Duration    : %.1fs", *rel.ErrorDurationSec)
	}

	lat := rel.Latency
	suffix := "       "
	if lat.Fallback {
		suffix = " (ALL fallback)"
	}
	switch {
	case !lat.Available:
		p.linef("    P95 Latency%s: N/A", suffix)
		p.linef("    P99 Latency%s: N/A", suffix)
		p.linef("    SLA Met (<%sms): N/A", sla)
	default:
		p.linef("    P95 Latency%s: %.1f ms", suffix, lat.P95Ms)
		p.linef("    P99 Latency%s: %.1f ms", suffix, lat.P99Ms)
		verdict := r.bad.Sprint("NO")
		if lat.SLAMet {
			verdict = r.good.Sprint("YES")
		}
		p.linef("    SLA Met (<%sms): %s", sla, verdict)
	}

	if rel.ObserveRequests > 0 {
		p.linef("    Success Rate      : %.2f%%", rel.SuccessRate)
	}

	if rel.HTTPCodeTotal > 0 {
		parts := make([]string, len(rel.HTTPCodes))
		for i, c := range rel.HTTPCodes {
			parts[i] = fmt.Sprintf("%s:%d", c.Code, c.Count)
		}
		p.linef("\n%s (name=OBSERVE) %s (total=%d)", r.heading.Sprint("[HTTP Error Codes]"), strings.Join(parts, ", "), rel.HTTPCodeTotal)
	}

	if len(rel.TopFailures) > 0 {
		p.linef("\n%s (name=OBSERVE)", r.heading.Sprint("[Top Failure Reasons]"))
		for _, f := range rel.TopFailures {
			p.linef("  %5d | %-4s | %s", f.Occurrences, f.Method, f.Message)
		}
	}
}

func (r *TextRenderer) outages(p *printer, s *Summary) {
	o := s.Outages
	p.line("\n" + r.heading.Sprint("[Service Outages] (OBSERVE consecutive failures)"))

	switch o.Kind {
	case OutageNone:
		p.line("  No outage detected.")
	case OutageMicroOnly:
		p.linef("  Only micro-outages observed (<%.3fs).", o.MinSec)
		p.linef("    - raw_count : %d", o.RawCount)
		p.linef("    - raw_total : %.3fs", o.RawTotal)
		p.linef("    - raw_max   : %.3fs", o.RawMax)
	case OutageSignificant:
		p.linef("  Outage summary (>= %.3fs)", o.MinSec)
		p.linef("    - count      : %d  (raw=%d)", o.Count, o.RawCount)
		p.linef("    - total_time : %.3fs  (raw_total=%.3fs)", o.Total, o.RawTotal)
		p.linef("    - max        : %.3fs  (raw_max=%.3fs)", o.Max, o.RawMax)
		p.linef("    - p50/p95/p99: %.3fs / %.3fs / %.3fs", o.P50, o.P95, o.P99)
		p.linef("  Top %d longest outages:", len(o.Longest))
		for i, d := range o.Longest {
			p.linef("    #%02d %.3fs", i+1, d)
		}
	}
}

// Num formats a configured number without trailing zeros.
func Num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func enabled(b bool) string {
	if b {
		return "Enabled"
	}
	return "Disabled"
}

// printer remembers the first write error so rendering code stays flat.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(s string) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintln(p.w, s)
}

func (p *printer) linef(format string, args ...any) {
	p.line(fmt.Sprintf(format, args...))
}
