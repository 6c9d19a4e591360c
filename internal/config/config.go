// Package config loads the run configuration from the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment keys.
const (
	KeyALBURL            = "ALB_URL"
	KeyObservePath       = "OBSERVE_PATH"
	KeyWorkSec           = "WORK_SEC"
	KeyObsWaitMin        = "OBS_WAIT_MIN"
	KeyObsWaitMax        = "OBS_WAIT_MAX"
	KeyEnableFault       = "ENABLE_FAULT"
	KeyFaultMode         = "FAULT_MODE"
	KeyEnableScaling     = "ENABLE_SCALING"
	KeyUseStepShape      = "USE_STEP_SHAPE"
	KeyStepTime          = "STEP_TIME"
	KeyStepUsers         = "STEP_USERS"
	KeySpawnRate         = "SPAWN_RATE"
	KeyTimeLimit         = "TIME_LIMIT"
	KeySLAP95Ms          = "SLA_P95_MS"
	KeyEnableStepSLAStop = "ENABLE_STEP_SLA_STOP"
	KeyOutageMinSec      = "OUTAGE_MIN_SEC"
	KeyKillAllRequests   = "KILL_ALL_REQUESTS"
	KeyKillAllRetryOnce  = "KILL_ALL_RETRY_ONCE"
	KeyTopNFailures      = "TOP_N_FAILURES"
	KeyOutageTopN        = "OUTAGE_TOP_N"
	KeyUsers             = "USERS"
	KeyRunTime           = "RUN_TIME"
	KeyFaultStartDelay   = "FAULT_START_DELAY"
	KeyLogLevel          = "LOG_LEVEL"
	KeyMetricsAddr       = "METRICS_ADDR"
	KeySummaryFile       = "SUMMARY_FILE"
	KeyInfraConfig       = "INFRA_CONFIG"
	KeySummaryS3URI      = "SUMMARY_S3_URI"
	KeyS3Endpoint        = "SUMMARY_S3_ENDPOINT"
)

// Fault injection modes.
const (
	FaultModeSingle = "single"
	FaultModeAll    = "all"
)

// Fixed tuning values.
const (
	// InitialHostWindow is how long after start a host still counts as
	// part of the initial fleet.
	InitialHostWindow = 10 * time.Second

	// SLAMinSamples is the minimum number of step samples needed to
	// compute step percentiles.
	SLAMinSamples = 20
)

var defaults = map[string]string{
	KeyALBURL:            "",
	KeyObservePath:       "/",
	KeyWorkSec:           "5",
	KeyObsWaitMin:        "0.5",
	KeyObsWaitMax:        "1.5",
	KeyEnableFault:       "0",
	KeyFaultMode:         FaultModeSingle,
	KeyEnableScaling:     "0",
	KeyUseStepShape:      "0",
	KeyStepTime:          "180",
	KeyStepUsers:         "50",
	KeySpawnRate:         "10",
	KeyTimeLimit:         "720",
	KeySLAP95Ms:          "500",
	KeyEnableStepSLAStop: "0",
	KeyOutageMinSec:      "0.10",
	KeyKillAllRequests:   "16",
	KeyKillAllRetryOnce:  "1",
	KeyTopNFailures:      "5",
	KeyOutageTopN:        "10",
	KeyUsers:             "10",
	KeyRunTime:           "60",
	KeyFaultStartDelay:   "10",
	KeyLogLevel:          "info",
	KeyMetricsAddr:       "",
	KeySummaryFile:       "",
	KeyInfraConfig:       "infra_config.json",
	KeySummaryS3URI:      "",
	KeyS3Endpoint:        "",
}

// Config is the fully resolved run configuration.
type Config struct {
	// ALBURL is the target as configured, possibly without a scheme
	ALBURL      string
	ObservePath string
	WorkSec     float64

	ObsWaitMin time.Duration
	ObsWaitMax time.Duration

	EnableFault     bool
	FaultMode       string
	FaultStartDelay time.Duration
	KillAllRequests int
	// KillAllRetryOnce allows a second kill pass when the probe succeeds
	KillAllRetryOnce bool

	EnableScaling bool

	UseStepShape bool
	StepTime     time.Duration
	StepUsers    int
	SpawnRate    float64
	TimeLimit    time.Duration

	SLAP95Ms          float64
	EnableStepSLAStop bool

	OutageMinSec float64
	TopNFailures int
	OutageTopN   int

	// Users and RunTime drive the fixed shape used without step mode
	Users   int
	RunTime time.Duration

	LogLevel    string
	MetricsAddr string
	SummaryFile string
	InfraConfig string

	// SummaryS3URI is an s3://bucket/prefix the JSON summary is uploaded to
	SummaryS3URI string
	// S3Endpoint overrides the S3 endpoint for S3-compatible stores
	S3Endpoint string

	InitialHostWindow time.Duration
	SLAMinSamples     int
}

// Default returns the configuration with every default applied and no
// target set.
func Default() *Config {
	cfg, _ := parse(newViper(nil))
	return cfg
}

// Host returns the target base URL with a scheme.
func (c *Config) Host() string {
	return NormalizeHost(c.ALBURL)
}

// FaultModeLabel returns the human readable fault mode.
func (c *Config) FaultModeLabel() string {
	if c.FaultMode == FaultModeAll {
		return "KILL ALL"
	}
	return "SINGLE"
}

// StepSLAStopActive reports whether the step SLA monitor should run.
func (c *Config) StepSLAStopActive() bool {
	return c.UseStepShape && c.EnableStepSLAStop
}

// NormalizeHost prepends http:// when the URL has no scheme.
func NormalizeHost(url string) string {
	url = strings.TrimSpace(url)
	if url == "" || strings.HasPrefix(url, "http") {
		return url
	}
	return "http://" + url
}

// NormalizePath ensures a leading slash.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// Dir is where .env and the infra config are looked up first; its
	// parent is tried next. Defaults to the working directory.
	Dir string

	// EnvFile is an explicit .env path. It disables the lookup.
	EnvFile string

	// Overrides take precedence over the environment (CLI flags).
	Overrides map[string]string
}

// Load resolves the configuration. Precedence, highest first:
// overrides, process environment, .env file, defaults.
func Load(opts LoadOptions) (*Config, error) {
	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}

	v := newViper(opts.Overrides)

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = findFile(dir, ".env")
	}
	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
			}
		}
	}

	cfg, errs := parse(v)

	if cfg.ALBURL == "" {
		infraPath := cfg.InfraConfig
		if !filepath.IsAbs(infraPath) {
			infraPath = findFile(dir, infraPath)
		}
		if infraPath != "" {
			url, err := LookupALBURL(infraPath)
			if err == nil {
				cfg.ALBURL = url
			}
		}
	}

	errs = append(errs, Validate(cfg)...)
	if len(errs) > 0 {
		return cfg, errs
	}
	return cfg, nil
}

func newViper(overrides map[string]string) *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	for key, value := range overrides {
		v.Set(key, value)
	}
	return v
}

// findFile returns dir/name or parent(dir)/name, whichever exists first.
func findFile(dir, name string) string {
	for _, d := range []string{dir, filepath.Dir(dir)} {
		path := filepath.Join(d, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// parser reads typed values and collects conversion errors.
type parser struct {
	v    *viper.Viper
	errs ValidationErrors
}

func (p *parser) str(key string) string {
	return strings.TrimSpace(p.v.GetString(key))
}

func (p *parser) flag(key string) bool {
	b, err := strconv.ParseBool(p.str(key))
	return err == nil && b
}

func (p *parser) integer(key string) int {
	raw := p.str(key)
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, ValidationError{Path: key, Message: fmt.Sprintf("invalid integer: %q", raw)})
	}
	return n
}

func (p *parser) float(key string) float64 {
	raw := p.str(key)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, ValidationError{Path: key, Message: fmt.Sprintf("invalid number: %q", raw)})
	}
	return f
}

func (p *parser) seconds(key string) time.Duration {
	return time.Duration(p.float(key) * float64(time.Second))
}

func parse(v *viper.Viper) (*Config, ValidationErrors) {
	p := &parser{v: v}

	// An unparsable WORK_SEC falls back to the default instead of failing.
	workSec, err := strconv.ParseFloat(p.str(KeyWorkSec), 64)
	if err != nil {
		workSec = 5
	}

	cfg := &Config{
		ALBURL:            p.str(KeyALBURL),
		ObservePath:       NormalizePath(p.str(KeyObservePath)),
		WorkSec:           workSec,
		ObsWaitMin:        p.seconds(KeyObsWaitMin),
		ObsWaitMax:        p.seconds(KeyObsWaitMax),
		EnableFault:       p.flag(KeyEnableFault),
		FaultMode:         strings.ToLower(p.str(KeyFaultMode)),
		FaultStartDelay:   p.seconds(KeyFaultStartDelay),
		KillAllRequests:   p.integer(KeyKillAllRequests),
		KillAllRetryOnce:  p.flag(KeyKillAllRetryOnce),
		EnableScaling:     p.flag(KeyEnableScaling),
		UseStepShape:      p.flag(KeyUseStepShape),
		StepTime:          time.Duration(p.integer(KeyStepTime)) * time.Second,
		StepUsers:         p.integer(KeyStepUsers),
		SpawnRate:         p.float(KeySpawnRate),
		TimeLimit:         time.Duration(p.integer(KeyTimeLimit)) * time.Second,
		SLAP95Ms:          p.float(KeySLAP95Ms),
		EnableStepSLAStop: p.flag(KeyEnableStepSLAStop),
		OutageMinSec:      p.float(KeyOutageMinSec),
		TopNFailures:      p.integer(KeyTopNFailures),
		OutageTopN:        p.integer(KeyOutageTopN),
		Users:             p.integer(KeyUsers),
		RunTime:           p.seconds(KeyRunTime),
		LogLevel:          strings.ToLower(p.str(KeyLogLevel)),
		MetricsAddr:       p.str(KeyMetricsAddr),
		SummaryFile:       p.str(KeySummaryFile),
		InfraConfig:       p.str(KeyInfraConfig),
		SummaryS3URI:      p.str(KeySummaryS3URI),
		S3Endpoint:        p.str(KeyS3Endpoint),
		InitialHostWindow: InitialHostWindow,
		SLAMinSamples:     SLAMinSamples,
	}

	return cfg, p.errs
}
