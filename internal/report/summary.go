// Package report holds the end-of-run summary model, its text rendering
// and file export.
package report

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/wesleyorama2/infraload/internal/loadtest/metrics"
)

// Summary is everything the end-of-run report shows.
type Summary struct {
	RunID     string    `json:"runId" yaml:"runId"`
	StartTime time.Time `json:"startTime" yaml:"startTime"`
	EndTime   time.Time `json:"endTime" yaml:"endTime"`

	Config ConfigEcho `json:"config" yaml:"config"`

	// StopReason is nil for a normal stop
	StopReason *SLAStop `json:"slaStop,omitempty" yaml:"slaStop,omitempty"`

	Servers   []ServerHits `json:"servers" yaml:"servers"`
	TotalHits int          `json:"totalHits" yaml:"totalHits"`

	// Scaling is nil when the run never started
	Scaling *Scaling `json:"scaling,omitempty" yaml:"scaling,omitempty"`

	Reliability Reliability   `json:"reliability" yaml:"reliability"`
	Outages     OutageSummary `json:"outages" yaml:"outages"`
}

// ConfigEcho repeats the settings the run was started with.
type ConfigEcho struct {
	TargetURL      string  `json:"targetUrl" yaml:"targetUrl"`
	ObservePath    string  `json:"observePath" yaml:"observePath"`
	FaultEnabled   bool    `json:"faultEnabled" yaml:"faultEnabled"`
	FaultModeLabel string  `json:"faultMode" yaml:"faultMode"`
	StepSLAStop    bool    `json:"stepSlaStop" yaml:"stepSlaStop"`
	SLAP95Ms       float64 `json:"slaP95Ms" yaml:"slaP95Ms"`
}

// SLAStop is the snapshot taken when a step breached the SLA.
type SLAStop struct {
	Step          int       `json:"step" yaml:"step"`
	Users         int       `json:"users" yaml:"users"`
	P95Ms         float64   `json:"p95Ms" yaml:"p95Ms"`
	P99Ms         float64   `json:"p99Ms" yaml:"p99Ms"`
	FailRate      float64   `json:"failRate" yaml:"failRate"`
	ObservedTotal int       `json:"observedTotal" yaml:"observedTotal"`
	ElapsedSec    float64   `json:"elapsedSec" yaml:"elapsedSec"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
}

// ServerHits is one backend's share of successful observe traffic.
type ServerHits struct {
	ID    string  `json:"id" yaml:"id"`
	Hits  int     `json:"hits" yaml:"hits"`
	Ratio float64 `json:"ratio" yaml:"ratio"`
}

// HostSighting is a backend first seen after the initial window.
type HostSighting struct {
	ID        string    `json:"id" yaml:"id"`
	FirstSeen time.Time `json:"firstSeen" yaml:"firstSeen"`
	OffsetSec float64   `json:"offsetSec" yaml:"offsetSec"`
}

// Scaling splits backends into the initial fleet and later arrivals.
type Scaling struct {
	Initial []string       `json:"initial" yaml:"initial"`
	New     []HostSighting `json:"new" yaml:"new"`
}

// Latency is the observe latency over the whole run.
type Latency struct {
	// Available is false when no request was recorded at all
	Available bool `json:"available" yaml:"available"`

	// Fallback is true when the figures cover all traffic because no
	// observe request was recorded
	Fallback bool    `json:"fallback" yaml:"fallback"`
	P95Ms    float64 `json:"p95Ms" yaml:"p95Ms"`
	P99Ms    float64 `json:"p99Ms" yaml:"p99Ms"`
	SLAMet   bool    `json:"slaMet" yaml:"slaMet"`
}

// CodeCount is one HTTP status code in the error tally.
type CodeCount struct {
	Code  string `json:"code" yaml:"code"`
	Count int64  `json:"count" yaml:"count"`
}

// Failure is one row of the top failure reasons.
type Failure struct {
	Occurrences int64  `json:"occurrences" yaml:"occurrences"`
	Method      string `json:"method" yaml:"method"`
	Message     string `json:"message" yaml:"message"`
}

// Reliability holds request counts, latency and failure breakdowns.
type Reliability struct {
	TotalRequests int64 `json:"totalRequests" yaml:"totalRequests"`
	TotalFailures int64 `json:"totalFailures" yaml:"totalFailures"`

	ObserveRequests int `json:"observeRequests" yaml:"observeRequests"`
	ObserveFailures int `json:"observeFailures" yaml:"observeFailures"`

	// ErrorDurationSec spans the first to the last observe failure;
	// nil when fewer than one failure was seen
	ErrorDurationSec *float64 `json:"errorDurationSec,omitempty" yaml:"errorDurationSec,omitempty"`

	Latency Latency `json:"latency" yaml:"latency"`

	// SuccessRate is a percentage, meaningful when ObserveRequests > 0
	SuccessRate float64 `json:"successRate" yaml:"successRate"`

	HTTPCodes     []CodeCount `json:"httpCodes,omitempty" yaml:"httpCodes,omitempty"`
	HTTPCodeTotal int64       `json:"httpCodeTotal" yaml:"httpCodeTotal"`
	TopFailures   []Failure   `json:"topFailures,omitempty" yaml:"topFailures,omitempty"`
}

// OutageKind tells which outage section applies.
type OutageKind int

const (
	// OutageNone means no outage was recorded.
	OutageNone OutageKind = iota
	// OutageMicroOnly means every outage was shorter than the floor.
	OutageMicroOnly
	// OutageSignificant means at least one outage reached the floor.
	OutageSignificant
)

func (k OutageKind) String() string {
	switch k {
	case OutageNone:
		return "none"
	case OutageMicroOnly:
		return "micro_only"
	case OutageSignificant:
		return "significant"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k OutageKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *OutageKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*k = OutageNone
	case "micro_only":
		*k = OutageMicroOnly
	case "significant":
		*k = OutageSignificant
	default:
		return fmt.Errorf("unknown outage kind: %q", text)
	}
	return nil
}

// OutageSummary describes consecutive-failure windows in seconds.
type OutageSummary struct {
	Kind   OutageKind `json:"kind" yaml:"kind"`
	MinSec float64    `json:"minSec" yaml:"minSec"`

	RawCount int     `json:"rawCount" yaml:"rawCount"`
	RawTotal float64 `json:"rawTotal" yaml:"rawTotal"`
	RawMax   float64 `json:"rawMax" yaml:"rawMax"`

	Count   int       `json:"count" yaml:"count"`
	Total   float64   `json:"total" yaml:"total"`
	Max     float64   `json:"max" yaml:"max"`
	P50     float64   `json:"p50" yaml:"p50"`
	P95     float64   `json:"p95" yaml:"p95"`
	P99     float64   `json:"p99" yaml:"p99"`
	Longest []float64 `json:"longest,omitempty" yaml:"longest,omitempty"`
}

var httpCodeRe = regexp.MustCompile(`\b([1-5]\d{2})\b`)

// HTTPCodeTally counts status codes found in the error messages of
// requests named name, weighted by occurrences. Codes are ordered by
// count descending then code ascending.
func HTTPCodeTally(errs []metrics.ErrorEntry, name string) ([]CodeCount, int64) {
	counts := make(map[string]int64)
	var total int64

	for _, e := range errs {
		if e.Name != name {
			continue
		}
		m := httpCodeRe.FindStringSubmatch(e.Message)
		if m == nil {
			continue
		}
		counts[m[1]] += e.Occurrences
		total += e.Occurrences
	}
	if total == 0 {
		return nil, 0
	}

	out := make([]CodeCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, CodeCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	return out, total
}

// TopFailures returns up to n failure reasons of requests named name,
// most frequent first.
func TopFailures(errs []metrics.ErrorEntry, name string, n int) []Failure {
	var out []Failure
	for _, e := range errs {
		if e.Name != name {
			continue
		}
		out = append(out, Failure{Occurrences: e.Occurrences, Method: e.Method, Message: e.Message})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Occurrences > out[j].Occurrences })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
