package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framestab/internal/metrics"
	"framestab/internal/stabilize"
)

func envMap(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func newTestLoader(vars map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = envMap(vars)
	return l
}

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framestab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, stabilize.DefaultEpsilon, cfg.Stabilize.Epsilon)
	assert.Equal(t, stabilize.DefaultBlurSigma, cfg.Stabilize.BlurSigma)
	assert.Zero(t, cfg.Stabilize.MaxGain)
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.Binary)
	assert.Equal(t, "ffprobe", cfg.FFmpeg.Probe)
	assert.Equal(t, 18, cfg.FFmpeg.CRF)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "outputs", cfg.Batch.OutputDir)

	opts := cfg.MetricsOptions()
	opts.Workers = 0
	assert.Equal(t, metrics.DefaultOptions(), opts)
}

func TestLoaderDefaults(t *testing.T) {
	cfg, err := newTestLoader(nil).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoaderMissingFile(t *testing.T) {
	cfg, err := newTestLoader(nil).WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoaderYAML(t *testing.T) {
	path := writeYAML(t, `
stabilize:
  max_gain: 4
  workers: 3
ffmpeg:
  crf: 23
  timeout: 90s
log:
  level: debug
  format: json
batch:
  min_duration: 12s
  max_duration: 18s
`)
	cfg, err := newTestLoader(nil).WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 4.0, cfg.Stabilize.MaxGain)
	assert.Equal(t, 3, cfg.Stabilize.Workers)
	assert.Equal(t, stabilize.DefaultEpsilon, cfg.Stabilize.Epsilon, "unset keys keep defaults")
	assert.Equal(t, 23, cfg.FFmpeg.CRF)
	assert.Equal(t, 90*time.Second, cfg.FFmpeg.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 12*time.Second, cfg.Batch.MinDuration)
	assert.Equal(t, 18*time.Second, cfg.Batch.MaxDuration)
}

func TestLoaderEnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, "stabilize:\n  blur_sigma: 2\nlog:\n  level: warn\n")
	cfg, err := newTestLoader(map[string]string{
		"FRAMESTAB_STABILIZE_BLUR_SIGMA":  "1.5",
		"FRAMESTAB_LOG_OUTPUT_PATHS":      "stdout, /tmp/framestab.log",
		"FRAMESTAB_TELEMETRY_ENABLED":     "true",
		"FRAMESTAB_FFMPEG_TIMEOUT":        "2m",
		"FRAMESTAB_TELEMETRY_SAMPLE_RATE": "0.25",
	}).WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 1.5, cfg.Stabilize.BlurSigma)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"stdout", "/tmp/framestab.log"}, cfg.Log.OutputPaths)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.FFmpeg.Timeout)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
}

func TestLoaderEnvPrefix(t *testing.T) {
	cfg, err := newTestLoader(map[string]string{
		"FRAMESTAB_STABILIZE_WORKERS": "9",
		"FS_STABILIZE_WORKERS":        "2",
	}).WithEnvPrefix("FS").Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Stabilize.Workers)
}

func TestLoaderErrors(t *testing.T) {
	t.Run("bad env value", func(t *testing.T) {
		_, err := newTestLoader(map[string]string{"FRAMESTAB_STABILIZE_WORKERS": "many"}).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FRAMESTAB_STABILIZE_WORKERS")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := newTestLoader(nil).WithConfigPath(writeYAML(t, "stabilize: [")).Load()
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := newTestLoader(map[string]string{"FRAMESTAB_FFMPEG_CRF": "60"}).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ffmpeg.crf")
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero epsilon", func(c *Config) { c.Stabilize.Epsilon = 0 }, "stabilize.epsilon"},
		{"negative max gain", func(c *Config) { c.Stabilize.MaxGain = -1 }, "stabilize.max_gain"},
		{"zero sigma", func(c *Config) { c.Stabilize.BlurSigma = 0 }, "stabilize.blur_sigma"},
		{"negative workers", func(c *Config) { c.Stabilize.Workers = -2 }, "stabilize.workers"},
		{"crf out of range", func(c *Config) { c.FFmpeg.CRF = -1 }, "ffmpeg.crf"},
		{"unknown level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "telemetry.sample_rate"},
		{"negative loop gap", func(c *Config) { c.Metrics.LoopGap = -1 }, "metrics.loop_gap"},
		{"negative loop threshold", func(c *Config) { c.Metrics.LoopThreshold = -0.5 }, "metrics.loop_threshold"},
		{"inverted bounds", func(c *Config) {
			c.Batch.MinDuration = 20 * time.Second
			c.Batch.MaxDuration = 10 * time.Second
		}, "batch.min_duration"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestStabilizeOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stabilize.MaxGain = 3
	cfg.Stabilize.Workers = 2
	assert.Equal(t, stabilize.Config{
		Epsilon:   stabilize.DefaultEpsilon,
		MaxGain:   3,
		BlurSigma: stabilize.DefaultBlurSigma,
		Workers:   2,
	}, cfg.StabilizeOptions())
}

func TestMetricsFromEnv(t *testing.T) {
	cfg, err := newTestLoader(map[string]string{
		"FRAMESTAB_METRICS_SEED":           "42",
		"FRAMESTAB_METRICS_LOOP_GAP":       "24",
		"FRAMESTAB_METRICS_LOOP_THRESHOLD": "1.5",
		"FRAMESTAB_STABILIZE_WORKERS":      "3",
	}).Load()
	require.NoError(t, err)

	opts := cfg.MetricsOptions()
	assert.Equal(t, uint64(42), opts.Seed)
	assert.Equal(t, 24, opts.LoopGap)
	assert.Equal(t, 1.5, opts.LoopThreshold)
	assert.Equal(t, 3, opts.Workers)
}

func TestCRFZeroIsValid(t *testing.T) {
	cfg, err := newTestLoader(map[string]string{"FRAMESTAB_FFMPEG_CRF": "0"}).Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.FFmpeg.CRF)
}
