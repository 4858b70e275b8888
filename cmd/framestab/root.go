package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"framestab/internal/config"
	"framestab/internal/ffmpeg"
	"framestab/internal/metrics"
	"framestab/internal/stabilize"
	"framestab/internal/telemetry"
	"framestab/internal/video"
)

// app carries the global flags and the services built from them.
type app struct {
	configPath  string
	logLevel    string
	logFormat   string
	workers     int
	metricsFile string

	cfg       *config.Config
	logger    *zap.Logger
	collector *telemetry.Collector
	tracing   *telemetry.Providers
}

func RootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "framestab",
		Short:        "Stabilize flickering generated video",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: console or json")
	flags.IntVar(&a.workers, "workers", 0, "per-frame worker goroutines (0 = GOMAXPROCS)")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(
		stabilizeCmd(a),
		analyzeCmd(a),
		compareCmd(a),
		batchCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.NewLoader().WithConfigPath(a.configPath).Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if flags.Changed("workers") {
		cfg.Stabilize.Workers = a.workers
	}
	if flags.Changed("metrics-file") {
		cfg.Telemetry.MetricsFile = a.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("error building logger: %w", err)
	}
	tracing, err := telemetry.InitTracing(cmd.Context(), cfg.Telemetry, logger)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.collector = telemetry.NewCollector(logger)
	a.tracing = tracing
	return nil
}

// run wraps a command body so metrics are written and tracing is flushed
// whether or not the body fails.
func (a *app) run(fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd.Context(), cmd, args)
		if err != nil {
			a.logger.Error("command failed", zap.String("command", cmd.Name()), zap.Error(err))
		}
		return errors.Join(err, a.close(cmd.Context()))
	}
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if path := a.cfg.Telemetry.MetricsFile; path != "" {
		errs = append(errs, a.collector.WriteTextfile(path))
	}
	errs = append(errs, a.tracing.Shutdown(ctx))
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *app) pipeline() *stabilize.Pipeline {
	return stabilize.NewPipeline(a.cfg.StabilizeOptions(), a.logger, stabilize.WithObserver(a.collector))
}

func (a *app) metricsOptions() metrics.Options {
	return a.cfg.MetricsOptions()
}

func (a *app) loadOptions() video.LoadOptions {
	return video.LoadOptions{
		FFmpeg:   a.cfg.FFmpeg.Binary,
		FFprobe:  a.cfg.FFmpeg.Probe,
		MaxBytes: a.cfg.FFmpeg.MaxBytes,
		Timeout:  a.cfg.FFmpeg.Timeout,
		Workers:  a.cfg.Stabilize.Workers,
		Logger:   a.logger,
	}
}

func (a *app) saveOptions() video.SaveOptions {
	crf := a.cfg.FFmpeg.CRF
	return video.SaveOptions{
		FFmpeg:  a.cfg.FFmpeg.Binary,
		CRF:     &crf,
		Timeout: a.cfg.FFmpeg.Timeout,
		Workers: a.cfg.Stabilize.Workers,
		Logger:  a.logger,
	}
}

// clipFlags are the input selection flags shared by commands that load one clip.
type clipFlags struct {
	fps       float64
	maxFrames int
	start     string
	end       string
}

func (f *clipFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.fps, "fps", 0, "override the input frame rate (PNG directories default to 24)")
	cmd.Flags().IntVar(&f.maxFrames, "max-frames", 0, "read at most this many frames (0 = all)")
	cmd.Flags().StringVar(&f.start, "start", "", "start time (seconds or HH:MM:SS)")
	cmd.Flags().StringVar(&f.end, "end", "", "end time (seconds or HH:MM:SS)")
}

func (f *clipFlags) apply(opts video.LoadOptions) video.LoadOptions {
	opts.FPS = f.fps
	opts.MaxFrames = f.maxFrames
	if f.start != "" {
		opts.TimeRange = &ffmpeg.TimeRange{Start: f.start, End: f.end}
	}
	return opts
}
