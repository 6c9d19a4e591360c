// Package tracker aggregates client-perceived ("observe") request
// results during a load test: success and failure totals, which backend
// served each response, outage windows and per-step latency. It prints
// the end-of-run report when the engine quits.
package tracker

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wesleyorama2/infraload/internal/config"
	"github.com/wesleyorama2/infraload/internal/loadtest"
	"github.com/wesleyorama2/infraload/internal/report"
)

// ObserveName is the request name whose results are aggregated.
const ObserveName = "OBSERVE"

const uploadTimeout = 30 * time.Second

// Uploader stores the end-of-run summary remotely and returns where.
type Uploader interface {
	Upload(ctx context.Context, s *report.Summary) (string, error)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Tracker) { t.log = log.With().Str("component", "tracker").Logger() }
}

// WithOutput sets where step results and the report are printed.
func WithOutput(w io.Writer) Option {
	return func(t *Tracker) { t.out = w }
}

// WithColor enables colored report headings.
func WithColor(enabled bool) Option {
	return func(t *Tracker) { t.renderer = report.NewTextRenderer(enabled) }
}

// WithUploader uploads the summary when the run quits.
func WithUploader(u Uploader) Option {
	return func(t *Tracker) { t.uploader = u }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker is the observer of one load test process. Attach it with
// Register; all state is reset when a run starts.
type Tracker struct {
	cfg      *config.Config
	log      zerolog.Logger
	out      io.Writer
	renderer *report.TextRenderer
	now      func() time.Time
	metrics  *Metrics
	uploader Uploader

	mu  sync.Mutex
	env *loadtest.Environment

	runID     string
	startTime time.Time

	successCount   int
	failureCount   int
	firstErrorTime time.Time
	lastErrorTime  time.Time

	hits      map[string]int
	firstSeen map[string]time.Time

	// outageStart is zero when no outage is open
	outageStart time.Time
	outages     []float64

	window  stepWindow
	slaStop *report.SLAStop

	monitorMu     sync.Mutex
	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

// New creates a tracker for cfg.
func New(cfg *config.Config, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:       cfg,
		log:       zerolog.Nop(),
		out:       os.Stdout,
		renderer:  report.NewTextRenderer(false),
		now:       time.Now,
		hits:      make(map[string]int),
		firstSeen: make(map[string]time.Time),
		window:    newStepWindow(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetMetrics mirrors observe results into m. Call it before the run
// starts.
func (t *Tracker) SetMetrics(m *Metrics) {
	t.metrics = m
}

// Register subscribes the tracker to the engine's lifecycle events.
func (t *Tracker) Register(events *loadtest.Events) {
	events.TestStart.Add(t.OnTestStart)
	events.Request.Add(t.OnRequest)
	events.Quitting.Add(t.OnQuitting)
}

// OnTestStart resets all state and starts the step SLA monitor when
// enabled.
func (t *Tracker) OnTestStart(env *loadtest.Environment) {
	t.stopMonitor()

	t.mu.Lock()
	t.env = env
	t.runID = uuid.NewString()
	t.startTime = t.now()
	t.successCount = 0
	t.failureCount = 0
	t.firstErrorTime = time.Time{}
	t.lastErrorTime = time.Time{}
	t.hits = make(map[string]int)
	t.firstSeen = make(map[string]time.Time)
	t.outageStart = time.Time{}
	t.outages = nil
	t.window = newStepWindow()
	t.slaStop = nil
	runID := t.runID
	t.mu.Unlock()

	t.metrics.reset()
	t.log.Info().Str("runId", runID).Msg("test started")

	if t.cfg.StepSLAStopActive() {
		t.startMonitor(env)
		t.log.Info().
			Float64("slaP95Ms", t.cfg.SLAP95Ms).
			Dur("stepTime", t.cfg.StepTime).
			Msg("Step SLA monitor enabled.")
	}
}

// OnRequest aggregates one completed request. Only observe requests
// are counted.
func (t *Tracker) OnRequest(ev *loadtest.RequestEvent) {
	if ev.Name != ObserveName {
		return
	}

	failed := IsFailure(ev.Exception, ev.Response)
	var serverID string
	var hasID bool
	if !failed {
		serverID, hasID = ExtractServerID(ev.Response)
	}

	t.mu.Lock()
	now := t.now()
	if failed {
		t.failureCount++
		t.window.failure()
		if t.firstErrorTime.IsZero() {
			t.firstErrorTime = now
		}
		t.lastErrorTime = now
		if t.outageStart.IsZero() {
			t.outageStart = now
		}
		t.mu.Unlock()

		t.metrics.observeFailure()
		return
	}

	t.successCount++
	t.window.success(ev.ResponseTimeMillis())

	outage := -1.0
	if !t.outageStart.IsZero() {
		outage = now.Sub(t.outageStart).Seconds()
		t.outages = append(t.outages, outage)
		t.outageStart = time.Time{}
	}

	if hasID {
		t.hits[serverID]++
		if _, seen := t.firstSeen[serverID]; !seen {
			t.firstSeen[serverID] = now
		}
	}
	t.mu.Unlock()

	t.metrics.observeSuccess(ev.ResponseTime, serverID, outage)
}

// OnQuitting stops the monitor, closes any open outage and prints the
// report. The summary is also exported when a summary file is set.
func (t *Tracker) OnQuitting(env *loadtest.Environment) {
	t.stopMonitor()

	t.mu.Lock()
	started := t.env != nil
	if started && !t.outageStart.IsZero() {
		t.outages = append(t.outages, t.now().Sub(t.outageStart).Seconds())
		t.outageStart = time.Time{}
	}
	t.mu.Unlock()

	if !started {
		t.log.Warn().Msg("quitting before any test started, no summary")
		return
	}

	summary := t.Summary(env)
	if err := t.renderer.Render(t.out, summary); err != nil {
		t.log.Error().Err(err).Msg("failed to print summary")
	}

	if t.cfg.SummaryFile != "" {
		if err := report.WriteFile(t.cfg.SummaryFile, summary); err != nil {
			t.log.Error().Err(err).Str("file", t.cfg.SummaryFile).Msg("failed to export summary")
		} else {
			t.log.Info().Str("file", t.cfg.SummaryFile).Msg("summary exported")
		}
	}

	if t.uploader != nil {
		ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		defer cancel()
		if loc, err := t.uploader.Upload(ctx, summary); err != nil {
			t.log.Error().Err(err).Msg("failed to upload summary")
		} else {
			t.log.Info().Str("location", loc).Msg("summary uploaded")
		}
	}
}

// RunID returns the id of the current run, empty before the first run.
func (t *Tracker) RunID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runID
}

// SLAStop returns the SLA stop record, or nil if the run was not
// stopped by the step monitor.
func (t *Tracker) SLAStop() *report.SLAStop {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slaStop == nil {
		return nil
	}
	stop := *t.slaStop
	return &stop
}

// Counts returns the observe success and failure totals.
func (t *Tracker) Counts() (successes, failures int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.successCount, t.failureCount
}

// Outages returns closed outage durations in seconds and whether an
// outage is currently open.
func (t *Tracker) Outages() (closed []float64, open bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]float64(nil), t.outages...), !t.outageStart.IsZero()
}

// Summary builds the report model. env supplies the engine's built-in
// statistics and may be nil.
func (t *Tracker) Summary(env *loadtest.Environment) *report.Summary {
	t.mu.Lock()
	s := &report.Summary{
		RunID:     t.runID,
		StartTime: t.startTime,
		EndTime:   t.now(),
		Config: report.ConfigEcho{
			TargetURL:      t.cfg.ALBURL,
			ObservePath:    t.cfg.ObservePath,
			FaultEnabled:   t.cfg.EnableFault,
			FaultModeLabel: t.cfg.FaultModeLabel(),
			StepSLAStop:    t.cfg.StepSLAStopActive(),
			SLAP95Ms:       t.cfg.SLAP95Ms,
		},
	}
	if t.slaStop != nil {
		stop := *t.slaStop
		s.StopReason = &stop
	}

	s.Servers, s.TotalHits = serverHits(t.hits)
	if !t.startTime.IsZero() {
		s.Scaling = scaling(t.firstSeen, t.startTime, t.cfg.InitialHostWindow)
	}

	observed := t.successCount + t.failureCount
	rel := report.Reliability{
		ObserveRequests: observed,
		ObserveFailures: t.failureCount,
	}
	if t.failureCount > 0 {
		d := t.lastErrorTime.Sub(t.firstErrorTime).Seconds()
		rel.ErrorDurationSec = &d
	}
	if observed > 0 {
		rel.SuccessRate = float64(t.successCount) / float64(observed) * 100
	}

	outages := append([]float64(nil), t.outages...)
	t.mu.Unlock()

	s.Outages = Summarize(outages, t.cfg.OutageMinSec, t.cfg.OutageTopN)

	if env != nil && env.Stats != nil {
		total := env.Stats.Total()
		rel.TotalRequests = total.NumRequests()
		rel.TotalFailures = total.NumFailures()

		entry := total
		rel.Latency.Fallback = true
		if obs, ok := env.Stats.Get(ObserveName, "GET"); ok && obs.NumRequests() > 0 {
			entry = obs
			rel.Latency.Fallback = false
		}
		if entry.NumRequests() > 0 {
			rel.Latency.Available = true
			rel.Latency.P95Ms = millis(entry.Percentile(0.95))
			rel.Latency.P99Ms = millis(entry.Percentile(0.99))
			rel.Latency.SLAMet = rel.Latency.P95Ms < t.cfg.SLAP95Ms
		}

		errs := env.Stats.Errors()
		rel.HTTPCodes, rel.HTTPCodeTotal = report.HTTPCodeTally(errs, ObserveName)
		rel.TopFailures = report.TopFailures(errs, ObserveName, t.cfg.TopNFailures)
	} else {
		rel.Latency.Fallback = true
	}
	s.Reliability = rel

	return s
}

// serverHits orders backends by hits descending, ties by id.
func serverHits(hits map[string]int) ([]report.ServerHits, int) {
	total := 0
	for _, n := range hits {
		total += n
	}
	if total == 0 {
		return nil, 0
	}

	out := make([]report.ServerHits, 0, len(hits))
	for id, n := range hits {
		out = append(out, report.ServerHits{
			ID:    id,
			Hits:  n,
			Ratio: float64(n) / float64(total) * 100,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hits != out[j].Hits {
			return out[i].Hits > out[j].Hits
		}
		return out[i].ID < out[j].ID
	})
	return out, total
}

// scaling splits backends seen within window of start from later ones.
func scaling(firstSeen map[string]time.Time, start time.Time, window time.Duration) *report.Scaling {
	cutoff := start.Add(window)
	sc := &report.Scaling{Initial: []string{}, New: []report.HostSighting{}}

	for id, ts := range firstSeen {
		if !ts.After(cutoff) {
			sc.Initial = append(sc.Initial, id)
			continue
		}
		sc.New = append(sc.New, report.HostSighting{
			ID:        id,
			FirstSeen: ts,
			OffsetSec: ts.Sub(start).Seconds(),
		})
	}

	sort.Strings(sc.Initial)
	sort.Slice(sc.New, func(i, j int) bool {
		if !sc.New[i].FirstSeen.Equal(sc.New[j].FirstSeen) {
			return sc.New[i].FirstSeen.Before(sc.New[j].FirstSeen)
		}
		return sc.New[i].ID < sc.New[j].ID
	})
	return sc
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
