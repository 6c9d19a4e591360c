package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/infraload/internal/config"
	"github.com/wesleyorama2/infraload/internal/loadtest"
	"github.com/wesleyorama2/infraload/internal/loadtest/shape"
	"github.com/wesleyorama2/infraload/internal/output"
	"github.com/wesleyorama2/infraload/internal/report"
	"github.com/wesleyorama2/infraload/internal/scenario"
	"github.com/wesleyorama2/infraload/internal/server"
	"github.com/wesleyorama2/infraload/internal/tracker"
)

type flagKind int

const (
	kindValue flagKind = iota
	kindSeconds
	kindWholeSeconds
)

// runFlags maps run command flags onto configuration keys.
var runFlags = []struct {
	name string
	key  string
	kind flagKind
}{
	{"target", config.KeyALBURL, kindValue},
	{"observe-path", config.KeyObservePath, kindValue},
	{"users", config.KeyUsers, kindValue},
	{"spawn-rate", config.KeySpawnRate, kindValue},
	{"run-time", config.KeyRunTime, kindSeconds},
	{"step", config.KeyUseStepShape, kindValue},
	{"step-time", config.KeyStepTime, kindWholeSeconds},
	{"step-users", config.KeyStepUsers, kindValue},
	{"time-limit", config.KeyTimeLimit, kindWholeSeconds},
	{"sla-p95-ms", config.KeySLAP95Ms, kindValue},
	{"sla-stop", config.KeyEnableStepSLAStop, kindValue},
	{"fault", config.KeyEnableFault, kindValue},
	{"fault-mode", config.KeyFaultMode, kindValue},
	{"scaling", config.KeyEnableScaling, kindValue},
	{"work-sec", config.KeyWorkSec, kindValue},
	{"summary-file", config.KeySummaryFile, kindValue},
	{"summary-s3", config.KeySummaryS3URI, kindValue},
	{"s3-endpoint", config.KeyS3Endpoint, kindValue},
	{"metrics-addr", config.KeyMetricsAddr, kindValue},
	{"log-level", config.KeyLogLevel, kindValue},
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test against the configured target",
		Long: `Run a load test. Observe users poll OBSERVE_PATH and are the client
view every report figure is based on. Scaling users call /work to
trigger autoscaling and a fault user can kill backends via /kill.

Fixed load:
  infraload run --target alb.example.com --users 20 --run-time 5m

Step ramp with SLA stop:
  infraload run --step --step-time 3m --step-users 50 --time-limit 12m \
    --sla-p95-ms 500 --sla-stop`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := collectOverrides(cmd)
			if err != nil {
				return err
			}
			envFile, _ := cmd.Flags().GetString("env-file")
			quiet, _ := cmd.Flags().GetBool("quiet")
			noColor, _ := cmd.Flags().GetBool("no-color")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runLoadTest(ctx, runOptions{
				load:    config.LoadOptions{EnvFile: envFile, Overrides: overrides},
				quiet:   quiet,
				noColor: noColor,
				stdout:  cmd.OutOrStdout(),
				stderr:  cmd.ErrOrStderr(),
			})
		},
	}

	f := cmd.Flags()
	f.String("target", "", "Load balancer URL or host (ALB_URL)")
	f.String("observe-path", "", "Path polled by observe users (OBSERVE_PATH)")
	f.Int("users", 0, "Users for a fixed load (USERS)")
	f.Float64("spawn-rate", 0, "Users started per second (SPAWN_RATE)")
	f.Duration("run-time", 0, "Duration of a fixed load (RUN_TIME)")
	f.Bool("step", false, "Use the step ramp shape (USE_STEP_SHAPE)")
	f.Duration("step-time", 0, "Length of each ramp step (STEP_TIME)")
	f.Int("step-users", 0, "Users added per ramp step (STEP_USERS)")
	f.Duration("time-limit", 0, "End of the step ramp (TIME_LIMIT)")
	f.Float64("sla-p95-ms", 0, "p95 latency SLA in milliseconds (SLA_P95_MS)")
	f.Bool("sla-stop", false, "Stop when a ramp step breaches the SLA (ENABLE_STEP_SLA_STOP)")
	f.Bool("fault", false, "Enable the fault injection user (ENABLE_FAULT)")
	f.String("fault-mode", "", "Fault mode: single or all (FAULT_MODE)")
	f.Bool("scaling", false, "Enable the /work scaling users (ENABLE_SCALING)")
	f.Float64("work-sec", 0, "Seconds of work per /work call (WORK_SEC)")
	f.String("summary-file", "", "Export the summary to a .json, .yaml, .yml or .html file (SUMMARY_FILE)")
	f.String("summary-s3", "", "Upload the JSON summary to s3://bucket/prefix (SUMMARY_S3_URI)")
	f.String("s3-endpoint", "", "Endpoint of an S3-compatible store (SUMMARY_S3_ENDPOINT)")
	f.String("metrics-addr", "", "Serve /metrics, /health and /stats on this address (METRICS_ADDR)")
	f.String("log-level", "", "Log level (LOG_LEVEL)")
	f.String("env-file", "", "Read this .env file instead of searching for one")
	f.BoolP("quiet", "q", false, "Disable live progress output")
	f.Bool("no-color", false, "Disable colored output")
	return cmd
}

// collectOverrides turns the flags set on the command line into
// configuration overrides.
func collectOverrides(cmd *cobra.Command) (map[string]string, error) {
	overrides := make(map[string]string)
	for _, rf := range runFlags {
		fl := cmd.Flags().Lookup(rf.name)
		if fl == nil || !fl.Changed {
			continue
		}
		value := fl.Value.String()

		if rf.kind != kindValue {
			d, err := time.ParseDuration(value)
			if err != nil {
				return nil, fmt.Errorf("invalid --%s: %w", rf.name, err)
			}
			if rf.kind == kindWholeSeconds {
				value = strconv.Itoa(int(d / time.Second))
			} else {
				value = strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
			}
		}
		overrides[rf.key] = value
	}
	return overrides, nil
}

type runOptions struct {
	load    config.LoadOptions
	quiet   bool
	noColor bool
	stdout  io.Writer
	stderr  io.Writer

	// runner and fault tune timing in tests
	runner *loadtest.RunnerOptions
	fault  *scenario.FaultOptions
}

// runLoadTest wires the engine, tracker and outputs and runs one load
// test until its shape ends, the SLA monitor stops it or ctx ends.
func runLoadTest(ctx context.Context, opts runOptions) error {
	cfg, err := config.Load(opts.load)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	loadShape, timeLimit, err := buildShape(cfg)
	if err != nil {
		return fmt.Errorf("invalid load shape: %w", err)
	}

	useColor := !opts.noColor && output.UseColor(opts.stdout)
	colors := output.NoColorScheme()
	if !opts.noColor && output.UseColor(opts.stderr) {
		colors = output.DefaultColorScheme()
	}
	console := output.NewConsole(output.ConsoleConfig{
		Title:  "infraload",
		Writer: opts.stderr,
		Quiet:  opts.quiet,
		Colors: colors,
	})

	// on a terminal the live box owns stderr, so logs and step lines go
	// through it
	logOut, reportOut := opts.stderr, opts.stdout
	if console.IsTTY() && !opts.quiet {
		logOut = console.Passthrough()
		if output.IsTerminal(opts.stdout) {
			reportOut = console.Passthrough()
		}
	}

	log, err := setupLogging(cfg.LogLevel, logOut)
	if err != nil {
		return err
	}

	env := loadtest.NewEnvironment(cfg.Host())
	trackerOpts := []tracker.Option{
		tracker.WithLogger(log),
		tracker.WithOutput(reportOut),
		tracker.WithColor(useColor),
	}
	if cfg.SummaryS3URI != "" {
		uploader, err := report.NewS3Uploader(ctx, cfg.SummaryS3URI, cfg.S3Endpoint)
		if err != nil {
			log.Error().Err(err).Str("uri", cfg.SummaryS3URI).Msg("summary upload disabled")
		} else {
			trackerOpts = append(trackerOpts, tracker.WithUploader(uploader))
		}
	}
	tr := tracker.New(cfg, trackerOpts...)
	metrics := tracker.NewMetrics(tr, env)
	tr.SetMetrics(metrics)
	tr.Register(env.Events)

	faultOpts := scenario.DefaultFaultOptions()
	if opts.fault != nil {
		faultOpts = *opts.fault
	}
	runnerOpts := loadtest.DefaultRunnerOptions()
	if opts.runner != nil {
		runnerOpts = *opts.runner
	}
	runnerOpts.Logger = log
	runner := loadtest.NewRunner(env, scenario.Classes(cfg, faultOpts), runnerOpts)

	logStart(log, cfg, loadShape)

	auxCtx, stopAux := context.WithCancel(ctx)
	defer stopAux()

	serverDone := make(chan struct{})
	if cfg.MetricsAddr != "" {
		srv := server.New(env, metrics.Registry(), tr.RunID, log)
		go func() {
			defer close(serverDone)
			if err := srv.ListenAndServe(auxCtx, cfg.MetricsAddr); err != nil {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server failed")
			}
		}()
	} else {
		close(serverDone)
	}

	console.PrintHeader(cfg.Host())
	consoleDone := make(chan struct{})
	go func() {
		defer close(consoleDone)
		console.Run(auxCtx, func() *output.LiveStats {
			return liveStats(env, runner, tr, cfg, timeLimit)
		})
	}()

	runErr := runner.Run(ctx, loadShape)

	// the live display must be gone before the report prints
	stopAux()
	<-consoleDone

	env.Events.Quitting.Fire(env)
	<-serverDone

	if runErr != nil {
		return fmt.Errorf("load test failed: %w", runErr)
	}
	if stop := tr.SLAStop(); stop != nil {
		log.Warn().Int("step", stop.Step).Float64("p95Ms", stop.P95Ms).Msg("run stopped by step SLA")
	}
	return nil
}

// buildShape picks the step ramp or the fixed load and returns the
// planned run length (zero when open-ended).
func buildShape(cfg *config.Config) (shape.Shape, time.Duration, error) {
	if cfg.UseStepShape {
		step := &shape.Step{
			StepDuration: cfg.StepTime,
			StepUsers:    cfg.StepUsers,
			SpawnRate:    cfg.SpawnRate,
			TimeLimit:    cfg.TimeLimit,
		}
		if err := step.Validate(); err != nil {
			return nil, 0, err
		}
		return step, cfg.TimeLimit, nil
	}
	return &shape.Fixed{
		Users:     cfg.Users,
		SpawnRate: cfg.SpawnRate,
		RunTime:   cfg.RunTime,
	}, cfg.RunTime, nil
}

func logStart(log zerolog.Logger, cfg *config.Config, loadShape shape.Shape) {
	ev := log.Info().
		Str("target", cfg.Host()).
		Str("observePath", cfg.ObservePath).
		Bool("fault", cfg.EnableFault).
		Str("faultMode", cfg.FaultModeLabel()).
		Bool("scaling", cfg.EnableScaling)
	if step, ok := loadShape.(*shape.Step); ok {
		ev = ev.Int("steps", step.Steps()).
			Dur("stepTime", cfg.StepTime).
			Int("stepUsers", cfg.StepUsers).
			Dur("timeLimit", cfg.TimeLimit).
			Bool("slaStop", cfg.StepSLAStopActive())
	} else {
		ev = ev.Int("users", cfg.Users).Dur("runTime", cfg.RunTime)
	}
	ev.Float64("spawnRate", cfg.SpawnRate).Msg("starting load test")
}

func liveStats(env *loadtest.Environment, runner loadtest.Controller, tr *tracker.Tracker, cfg *config.Config, timeLimit time.Duration) *output.LiveStats {
	stats := output.StatsFromSnapshot(env.Stats.Snapshot(), timeLimit)
	stats.Elapsed = runner.RunTime()
	stats.State = runner.State().String()
	stats.Users = runner.UserCount()
	stats.TargetUsers = runner.TargetUserCount()
	if cfg.UseStepShape {
		stats.Step = shape.StepIndex(stats.Elapsed, cfg.StepTime)
	}
	stats.ObserveSuccess, stats.ObserveFailures = tr.Counts()
	_, stats.OutageOpen = tr.Outages()
	return stats
}
