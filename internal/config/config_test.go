package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every key so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDefault(t *testing.T) {
	clearEnv(t)
	cfg := Default()

	assert.Equal(t, "/", cfg.ObservePath)
	assert.Equal(t, 5.0, cfg.WorkSec)
	assert.Equal(t, 500*time.Millisecond, cfg.ObsWaitMin)
	assert.Equal(t, 1500*time.Millisecond, cfg.ObsWaitMax)
	assert.False(t, cfg.EnableFault)
	assert.Equal(t, FaultModeSingle, cfg.FaultMode)
	assert.Equal(t, 180*time.Second, cfg.StepTime)
	assert.Equal(t, 50, cfg.StepUsers)
	assert.Equal(t, 10.0, cfg.SpawnRate)
	assert.Equal(t, 720*time.Second, cfg.TimeLimit)
	assert.Equal(t, 500.0, cfg.SLAP95Ms)
	assert.Equal(t, 0.10, cfg.OutageMinSec)
	assert.Equal(t, 16, cfg.KillAllRequests)
	assert.True(t, cfg.KillAllRetryOnce)
	assert.Equal(t, 5, cfg.TopNFailures)
	assert.Equal(t, 10, cfg.OutageTopN)
	assert.Equal(t, 10*time.Second, cfg.FaultStartDelay)
	assert.Equal(t, InitialHostWindow, cfg.InitialHostWindow)
	assert.Equal(t, SLAMinSamples, cfg.SLAMinSamples)
}

func TestLoad_EnvAndOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	t.Setenv(KeyALBURL, "demo-alb.example.com")
	t.Setenv(KeyObservePath, "health")
	t.Setenv(KeyEnableFault, "1")
	t.Setenv(KeyFaultMode, "ALL")
	t.Setenv(KeyUseStepShape, "1")
	t.Setenv(KeyEnableStepSLAStop, "1")
	t.Setenv(KeyWorkSec, "not-a-number")

	cfg, err := Load(LoadOptions{Dir: dir, Overrides: map[string]string{KeyStepUsers: "25"}})
	require.NoError(t, err)

	assert.Equal(t, "demo-alb.example.com", cfg.ALBURL)
	assert.Equal(t, "http://demo-alb.example.com", cfg.Host())
	assert.Equal(t, "/health", cfg.ObservePath)
	assert.True(t, cfg.EnableFault)
	assert.Equal(t, FaultModeAll, cfg.FaultMode)
	assert.Equal(t, "KILL ALL", cfg.FaultModeLabel())
	assert.True(t, cfg.StepSLAStopActive())
	assert.Equal(t, 5.0, cfg.WorkSec)
	assert.Equal(t, 25, cfg.StepUsers)
}

func TestLoad_FlagValues(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{raw: "1", want: true},
		{raw: "true", want: true},
		{raw: "TRUE", want: true},
		{raw: "0", want: false},
		{raw: "false", want: false},
		{raw: "yes", want: false},
		{raw: "on", want: false},
		{raw: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(KeyALBURL, "demo-alb.example.com")
			t.Setenv(KeyEnableFault, tt.raw)

			cfg, err := Load(LoadOptions{Dir: t.TempDir()})
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.EnableFault)
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	dir := filepath.Join(root, "performance")

	// .env in the parent directory is found when dir has none.
	writeFile(t, filepath.Join(root, ".env"), "ALB_URL=https://from-dotenv.example.com\nSLA_P95_MS=250\nOUTAGE_TOP_N=3\n")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	// Process environment wins over the file.
	t.Setenv(KeyOutageTopN, "7")

	cfg, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, "https://from-dotenv.example.com", cfg.ALBURL)
	assert.Equal(t, "https://from-dotenv.example.com", cfg.Host())
	assert.Equal(t, 250.0, cfg.SLAP95Ms)
	assert.Equal(t, 7, cfg.OutageTopN)
}

func TestLoad_InfraConfigFallback(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "infra_config.json"), `{"alb_dns_name":{"value":" alb-42.elb.amazonaws.com "}}`)

	cfg, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, "alb-42.elb.amazonaws.com", cfg.ALBURL)
	assert.Equal(t, "http://alb-42.elb.amazonaws.com", cfg.Host())
}

func TestLoad_ValidationErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	t.Setenv(KeyFaultMode, "some")
	t.Setenv(KeyStepUsers, "abc")
	t.Setenv(KeyOutageTopN, "-1")

	_, err := Load(LoadOptions{Dir: dir})
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)

	paths := make([]string, 0, len(verrs))
	for _, e := range verrs {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, KeyALBURL)
	assert.Contains(t, paths, KeyFaultMode)
	assert.Contains(t, paths, KeyStepUsers)
	assert.Contains(t, paths, KeyOutageTopN)
	assert.Contains(t, err.Error(), "invalid configuration: ")
}

func TestLookupALBURL(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	writeFile(t, good, `{"alb_dns_name":{"value":"alb.example.com"}}`)
	url, err := LookupALBURL(good)
	require.NoError(t, err)
	assert.Equal(t, "alb.example.com", url)

	missing := filepath.Join(dir, "missing.json")
	writeFile(t, missing, `{"other":{"value":"x"}}`)
	_, err = LookupALBURL(missing)
	assert.Error(t, err)

	null := filepath.Join(dir, "null.json")
	writeFile(t, null, `{"alb_dns_name":{"value":null}}`)
	_, err = LookupALBURL(null)
	assert.Error(t, err)

	blank := filepath.Join(dir, "blank.json")
	writeFile(t, blank, `{"alb_dns_name":{"value":"   "}}`)
	_, err = LookupALBURL(blank)
	assert.Error(t, err)

	_, err = LookupALBURL(filepath.Join(dir, "nope.json"))
	assert.Error(t, err)
}

func TestLookupALBURL_SchemaErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "infra_config.json")
	writeFile(t, path, `{"alb_dns_name":{"value":42}}`)

	_, err := LookupALBURL(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid infra config")
	assert.Contains(t, err.Error(), "/alb_dns_name/value")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "http://a.b", NormalizeHost("a.b"))
	assert.Equal(t, "https://a.b", NormalizeHost(" https://a.b "))
	assert.Equal(t, "", NormalizeHost(""))
	assert.Equal(t, "/x", NormalizePath("x"))
	assert.Equal(t, "/x", NormalizePath("/x"))
	assert.Equal(t, "/", NormalizePath(""))
}
