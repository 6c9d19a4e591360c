package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

// Error returns the error message
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors collects every problem found in one pass
type ValidationErrors []ValidationError

// Error joins all messages
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate checks the configuration
func Validate(cfg *Config) ValidationErrors {
	var errors ValidationErrors

	if cfg.ALBURL == "" {
		errors = append(errors, ValidationError{
			Path:    KeyALBURL,
			Message: fmt.Sprintf("target is required (set %s or provide %s with alb_dns_name.value)", KeyALBURL, cfg.InfraConfig),
		})
	}

	if cfg.ObsWaitMin < 0 {
		errors = append(errors, ValidationError{Path: KeyObsWaitMin, Message: "must be >= 0"})
	}
	if cfg.ObsWaitMax < cfg.ObsWaitMin {
		errors = append(errors, ValidationError{
			Path:    KeyObsWaitMax,
			Message: fmt.Sprintf("must be >= %s", KeyObsWaitMin),
		})
	}

	if cfg.FaultMode != FaultModeSingle && cfg.FaultMode != FaultModeAll {
		errors = append(errors, ValidationError{
			Path:    KeyFaultMode,
			Message: fmt.Sprintf("invalid mode: %s (want %s or %s)", cfg.FaultMode, FaultModeSingle, FaultModeAll),
		})
	}
	if cfg.KillAllRequests < 0 {
		errors = append(errors, ValidationError{Path: KeyKillAllRequests, Message: "must be >= 0"})
	}
	if cfg.FaultStartDelay < 0 {
		errors = append(errors, ValidationError{Path: KeyFaultStartDelay, Message: "must be >= 0"})
	}

	// Step ramp parameters are checked by shape.Step.Validate.
	if !cfg.UseStepShape {
		if cfg.Users < 0 {
			errors = append(errors, ValidationError{Path: KeyUsers, Message: "must be >= 0"})
		}
		if cfg.RunTime < 0 {
			errors = append(errors, ValidationError{Path: KeyRunTime, Message: "must be >= 0"})
		}
	}
	if cfg.SpawnRate <= 0 {
		errors = append(errors, ValidationError{Path: KeySpawnRate, Message: "must be > 0"})
	}

	if cfg.SLAP95Ms <= 0 {
		errors = append(errors, ValidationError{Path: KeySLAP95Ms, Message: "must be > 0"})
	}
	if cfg.OutageMinSec < 0 {
		errors = append(errors, ValidationError{Path: KeyOutageMinSec, Message: "must be >= 0"})
	}
	if cfg.TopNFailures < 0 {
		errors = append(errors, ValidationError{Path: KeyTopNFailures, Message: "must be >= 0"})
	}
	if cfg.OutageTopN < 0 {
		errors = append(errors, ValidationError{Path: KeyOutageTopN, Message: "must be >= 0"})
	}

	if cfg.SummaryS3URI != "" {
		bucket, _, _ := strings.Cut(strings.TrimPrefix(cfg.SummaryS3URI, "s3://"), "/")
		if !strings.HasPrefix(cfg.SummaryS3URI, "s3://") || bucket == "" {
			errors = append(errors, ValidationError{
				Path:    KeySummaryS3URI,
				Message: fmt.Sprintf("invalid URI: %s (want s3://bucket[/prefix])", cfg.SummaryS3URI),
			})
		}
	}

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		errors = append(errors, ValidationError{
			Path:    KeyLogLevel,
			Message: fmt.Sprintf("invalid level: %s", cfg.LogLevel),
		})
	}

	return errors
}
