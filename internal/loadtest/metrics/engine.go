// Package metrics keeps the load engine's built-in per-endpoint statistics.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Engine aggregates request statistics for every endpoint the load
// engine calls, regardless of traffic class.
//
// Requests are grouped by (name, method). A synthetic "Aggregated" entry
// tracks all traffic. Failed requests additionally land in an error
// registry keyed by method, name and error message.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Each entry guards its histogram
// with its own mutex; the entry and error maps use RW locks.
type Engine struct {
	config EngineConfig

	total *Entry

	entries   map[entryKey]*Entry
	entriesMu sync.RWMutex

	errors   map[errorKey]*ErrorEntry
	errorsMu sync.Mutex

	activeUsers atomic.Int32
	startTime   time.Time
	startMu     sync.RWMutex
}

// EngineConfig contains histogram bounds for the metrics engine.
type EngineConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

// AggregatedName is the name of the entry that tracks all traffic.
const AggregatedName = "Aggregated"

type entryKey struct {
	name   string
	method string
}

type errorKey struct {
	method  string
	name    string
	message string
}

// NewEngine creates a metrics engine with the default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a metrics engine with custom histogram bounds.
func NewEngineWithConfig(config EngineConfig) *Engine {
	e := &Engine{
		config:    config,
		entries:   make(map[entryKey]*Entry),
		errors:    make(map[errorKey]*ErrorEntry),
		startTime: time.Now(),
	}
	e.total = e.newEntry(AggregatedName, "")
	return e
}

func (e *Engine) newEntry(name, method string) *Entry {
	return &Entry{
		Name:   name,
		Method: method,
		hist:   hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs),
		min:    e.config.HistogramMin,
		max:    e.config.HistogramMax,
	}
}

// Record records one completed request.
//
// A non-nil err marks the request as failed and adds it to the error
// registry under err.Error().
func (e *Engine) Record(method, name string, duration time.Duration, bytes int64, err error) {
	entry := e.entry(name, method)
	entry.record(duration, bytes, err != nil)
	e.total.record(duration, bytes, err != nil)

	if err != nil {
		e.recordError(method, name, err.Error())
	}
}

func (e *Engine) entry(name, method string) *Entry {
	key := entryKey{name: name, method: method}

	e.entriesMu.RLock()
	entry, ok := e.entries[key]
	e.entriesMu.RUnlock()
	if ok {
		return entry
	}

	e.entriesMu.Lock()
	defer e.entriesMu.Unlock()
	if entry, ok = e.entries[key]; ok {
		return entry
	}
	entry = e.newEntry(name, method)
	e.entries[key] = entry
	return entry
}

func (e *Engine) recordError(method, name, message string) {
	key := errorKey{method: method, name: name, message: message}

	e.errorsMu.Lock()
	defer e.errorsMu.Unlock()

	entry, ok := e.errors[key]
	if !ok {
		entry = &ErrorEntry{Method: method, Name: name, Message: message}
		e.errors[key] = entry
	}
	entry.Occurrences++
}

// Total returns the entry aggregating all requests.
func (e *Engine) Total() *Entry {
	return e.total
}

// Get returns the entry for a request name and method.
func (e *Engine) Get(name, method string) (*Entry, bool) {
	e.entriesMu.RLock()
	defer e.entriesMu.RUnlock()
	entry, ok := e.entries[entryKey{name: name, method: method}]
	return entry, ok
}

// Entries returns all per-endpoint entries sorted by name then method.
func (e *Engine) Entries() []*Entry {
	e.entriesMu.RLock()
	result := make([]*Entry, 0, len(e.entries))
	for _, entry := range e.entries {
		result = append(result, entry)
	}
	e.entriesMu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Method < result[j].Method
	})
	return result
}

// Errors returns a copy of the error registry, most frequent first.
func (e *Engine) Errors() []ErrorEntry {
	e.errorsMu.Lock()
	result := make([]ErrorEntry, 0, len(e.errors))
	for _, entry := range e.errors {
		result = append(result, *entry)
	}
	e.errorsMu.Unlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Occurrences != result[j].Occurrences {
			return result[i].Occurrences > result[j].Occurrences
		}
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Message < result[j].Message
	})
	return result
}

// SetActiveUsers updates the active user count.
func (e *Engine) SetActiveUsers(count int) {
	e.activeUsers.Store(int32(count))
}

// ActiveUsers returns the current active user count.
func (e *Engine) ActiveUsers() int {
	return int(e.activeUsers.Load())
}

// Snapshot returns a point-in-time view of the aggregated traffic.
func (e *Engine) Snapshot() *Snapshot {
	e.startMu.RLock()
	start := e.startTime
	e.startMu.RUnlock()

	elapsed := time.Since(start)
	latency := e.total.Latency()

	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(latency.Count) / elapsed.Seconds()
	}

	failures := e.total.NumFailures()
	errorRate := 0.0
	if latency.Count > 0 {
		errorRate = float64(failures) / float64(latency.Count)
	}

	return &Snapshot{
		TotalRequests:  e.total.NumRequests(),
		FailedRequests: failures,
		TotalBytes:     e.total.TotalBytes(),
		Latency:        latency,
		RPS:            rps,
		ErrorRate:      errorRate,
		ActiveUsers:    e.ActiveUsers(),
		Elapsed:        elapsed,
		StartTime:      start,
		Timestamp:      time.Now(),
	}
}

// Reset clears all statistics and restarts the clock.
func (e *Engine) Reset() {
	e.entriesMu.Lock()
	e.entries = make(map[entryKey]*Entry)
	e.entriesMu.Unlock()

	e.errorsMu.Lock()
	e.errors = make(map[errorKey]*ErrorEntry)
	e.errorsMu.Unlock()

	e.total.reset()
	e.activeUsers.Store(0)

	e.startMu.Lock()
	e.startTime = time.Now()
	e.startMu.Unlock()
}

// Entry holds statistics for one endpoint.
type Entry struct {
	Name   string
	Method string

	// NOTE: hdrhistogram is not thread-safe, every access holds mu.
	mu          sync.Mutex
	hist        *hdrhistogram.Histogram
	numRequests int64
	numFailures int64
	totalBytes  int64
	min, max    int64
}

func (en *Entry) record(duration time.Duration, bytes int64, failed bool) {
	micros := duration.Microseconds()
	if micros < en.min {
		micros = en.min
	}
	if micros > en.max {
		micros = en.max
	}

	en.mu.Lock()
	defer en.mu.Unlock()

	_ = en.hist.RecordValue(micros)
	en.numRequests++
	en.totalBytes += bytes
	if failed {
		en.numFailures++
	}
}

func (en *Entry) reset() {
	en.mu.Lock()
	defer en.mu.Unlock()
	en.hist.Reset()
	en.numRequests = 0
	en.numFailures = 0
	en.totalBytes = 0
}

// NumRequests returns how many requests were recorded.
func (en *Entry) NumRequests() int64 {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.numRequests
}

// NumFailures returns how many recorded requests failed.
func (en *Entry) NumFailures() int64 {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.numFailures
}

// TotalBytes returns the sum of response lengths.
func (en *Entry) TotalBytes() int64 {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.totalBytes
}

// Percentile returns the response time at quantile q (0 < q <= 1).
// It returns zero when nothing has been recorded.
func (en *Entry) Percentile(q float64) time.Duration {
	en.mu.Lock()
	defer en.mu.Unlock()
	if en.numRequests == 0 {
		return 0
	}
	return time.Duration(en.hist.ValueAtQuantile(q*100)) * time.Microsecond
}

// Latency returns the full latency distribution summary.
func (en *Entry) Latency() LatencyStats {
	en.mu.Lock()
	defer en.mu.Unlock()

	if en.numRequests == 0 {
		return LatencyStats{}
	}

	return LatencyStats{
		Min:    time.Duration(en.hist.Min()) * time.Microsecond,
		Max:    time.Duration(en.hist.Max()) * time.Microsecond,
		Mean:   time.Duration(en.hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(en.hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(en.hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(en.hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(en.hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(en.hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  en.hist.TotalCount(),
	}
}

// ErrorEntry is one row of the error registry.
type ErrorEntry struct {
	Method      string `json:"method" yaml:"method"`
	Name        string `json:"name" yaml:"name"`
	Message     string `json:"message" yaml:"message"`
	Occurrences int64  `json:"occurrences" yaml:"occurrences"`
}

// Snapshot contains a point-in-time view of all traffic.
type Snapshot struct {
	TotalRequests  int64         `json:"totalRequests"`
	FailedRequests int64         `json:"failedRequests"`
	TotalBytes     int64         `json:"totalBytes"`
	Latency        LatencyStats  `json:"latency"`
	RPS            float64       `json:"rps"`
	ErrorRate      float64       `json:"errorRate"`
	ActiveUsers    int           `json:"activeUsers"`
	Elapsed        time.Duration `json:"elapsed"`
	StartTime      time.Time     `json:"startTime"`
	Timestamp      time.Time     `json:"timestamp"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}
