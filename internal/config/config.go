// Package config loads framestab settings from defaults, an optional YAML
// file and FRAMESTAB_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"time"

	"framestab/internal/metrics"
	"framestab/internal/stabilize"
)

// Config is the complete settings tree.
type Config struct {
	Stabilize StabilizeConfig `yaml:"stabilize" env:"STABILIZE"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg" env:"FFMPEG"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Batch     BatchConfig     `yaml:"batch" env:"BATCH"`
	Metrics   MetricsConfig   `yaml:"metrics" env:"METRICS"`
}

// StabilizeConfig holds the stage tunables.
type StabilizeConfig struct {
	Epsilon   float64 `yaml:"epsilon" env:"EPSILON"`
	MaxGain   float64 `yaml:"max_gain" env:"MAX_GAIN"`
	BlurSigma float64 `yaml:"blur_sigma" env:"BLUR_SIGMA"`
	// Workers bounds per-frame goroutines; 0 means GOMAXPROCS.
	Workers int `yaml:"workers" env:"WORKERS"`
}

// FFmpegConfig locates the ffmpeg tools and sets encode parameters.
type FFmpegConfig struct {
	Binary   string        `yaml:"binary" env:"BINARY"`
	Probe    string        `yaml:"probe" env:"PROBE"`
	CRF      int           `yaml:"crf" env:"CRF"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxBytes int64         `yaml:"max_bytes" env:"MAX_BYTES"`
}

// LogConfig selects the zap level and encoding.
type LogConfig struct {
	Level       string   `yaml:"level" env:"LEVEL"`
	Format      string   `yaml:"format" env:"FORMAT"`
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig controls tracing export and the metrics textfile.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	MetricsFile  string  `yaml:"metrics_file" env:"METRICS_FILE"`
}

// BatchConfig drives the batch command. Zero duration bounds are not checked.
type BatchConfig struct {
	OutputDir   string        `yaml:"output_dir" env:"OUTPUT_DIR"`
	MinDuration time.Duration `yaml:"min_duration" env:"MIN_DURATION"`
	MaxDuration time.Duration `yaml:"max_duration" env:"MAX_DURATION"`
	Report      string        `yaml:"report" env:"REPORT"`
}

// MetricsConfig tunes palette sampling and loop detection.
type MetricsConfig struct {
	SampleSize    int     `yaml:"sample_size" env:"SAMPLE_SIZE"`
	Colors        int     `yaml:"colors" env:"COLORS"`
	Seed          uint64  `yaml:"seed" env:"SEED"`
	LoopGap       int     `yaml:"loop_gap" env:"LOOP_GAP"`
	LoopThreshold float64 `yaml:"loop_threshold" env:"LOOP_THRESHOLD"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Stabilize: StabilizeConfig{
			Epsilon:   stabilize.DefaultEpsilon,
			BlurSigma: stabilize.DefaultBlurSigma,
		},
		FFmpeg: FFmpegConfig{
			Binary:   "ffmpeg",
			Probe:    "ffprobe",
			CRF:      18,
			Timeout:  10 * time.Minute,
			MaxBytes: 4 << 30,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "framestab",
			SampleRate:   1.0,
		},
		Batch: BatchConfig{
			OutputDir: "outputs",
		},
		Metrics: MetricsConfig{
			SampleSize:    metricDefaults.SampleSize,
			Colors:        metricDefaults.Colors,
			Seed:          metricDefaults.Seed,
			LoopGap:       metricDefaults.LoopGap,
			LoopThreshold: metricDefaults.LoopThreshold,
		},
	}
}

var metricDefaults = metrics.DefaultOptions()

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Stabilize.Epsilon <= 0 {
		errs = append(errs, fmt.Errorf("stabilize.epsilon must be positive, got %v", c.Stabilize.Epsilon))
	}
	if c.Stabilize.MaxGain < 0 {
		errs = append(errs, fmt.Errorf("stabilize.max_gain must not be negative, got %v", c.Stabilize.MaxGain))
	}
	if c.Stabilize.BlurSigma <= 0 {
		errs = append(errs, fmt.Errorf("stabilize.blur_sigma must be positive, got %v", c.Stabilize.BlurSigma))
	}
	if c.Stabilize.Workers < 0 {
		errs = append(errs, fmt.Errorf("stabilize.workers must not be negative, got %d", c.Stabilize.Workers))
	}
	if c.FFmpeg.CRF < 0 || c.FFmpeg.CRF > 51 {
		errs = append(errs, fmt.Errorf("ffmpeg.crf must be within 0..51, got %d", c.FFmpeg.CRF))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or console", c.Log.Format))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be within 0..1, got %v", c.Telemetry.SampleRate))
	}
	if c.Batch.MinDuration < 0 || c.Batch.MaxDuration < 0 {
		errs = append(errs, errors.New("batch duration bounds must not be negative"))
	}
	if c.Batch.MinDuration > 0 && c.Batch.MaxDuration > 0 && c.Batch.MinDuration > c.Batch.MaxDuration {
		errs = append(errs, fmt.Errorf("batch.min_duration %v exceeds batch.max_duration %v", c.Batch.MinDuration, c.Batch.MaxDuration))
	}
	if c.Metrics.SampleSize < 0 || c.Metrics.Colors < 0 || c.Metrics.LoopGap < 0 {
		errs = append(errs, errors.New("metrics.sample_size, metrics.colors and metrics.loop_gap must not be negative"))
	}
	if c.Metrics.LoopThreshold < 0 {
		errs = append(errs, fmt.Errorf("metrics.loop_threshold must not be negative, got %v", c.Metrics.LoopThreshold))
	}
	return errors.Join(errs...)
}

// MetricsOptions maps the settings onto the stability measurement options.
func (c *Config) MetricsOptions() metrics.Options {
	return metrics.Options{
		SampleSize:    c.Metrics.SampleSize,
		Colors:        c.Metrics.Colors,
		Seed:          c.Metrics.Seed,
		Workers:       c.Stabilize.Workers,
		LoopGap:       c.Metrics.LoopGap,
		LoopThreshold: c.Metrics.LoopThreshold,
	}
}

// StabilizeOptions maps the settings onto the pipeline tunables.
func (c *Config) StabilizeOptions() stabilize.Config {
	return stabilize.Config{
		Epsilon:   c.Stabilize.Epsilon,
		MaxGain:   c.Stabilize.MaxGain,
		BlurSigma: c.Stabilize.BlurSigma,
		Workers:   c.Stabilize.Workers,
	}
}
