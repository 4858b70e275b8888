// Package batch stabilizes a list of clips one after another and records
// measured before/after stability for each.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"framestab/internal/metrics"
	"framestab/internal/video"
)

// Stabilizer is the part of stabilize.Pipeline the runner needs.
type Stabilizer interface {
	Stabilize(ctx context.Context, seq video.Sequence) (video.Sequence, error)
}

// ClipObserver receives the outcome of every job.
type ClipObserver interface {
	ObserveClip(status string, before, after *metrics.Report)
}

type (
	LoadFunc func(ctx context.Context, path string) (video.Clip, error)
	SaveFunc func(ctx context.Context, clip video.Clip, path string) error
)

// Job is one input clip. Empty ID and Output are filled in by Run.
type Job struct {
	ID     string `json:"id"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Result records what happened to one job. Before, After and Comparison are
// nil when the job failed before they could be measured. DurationOK is nil
// when no duration bounds are configured, and NoLoops is nil when the output
// is too short for loop detection.
type Result struct {
	ID         string              `json:"id"`
	Input      string              `json:"input"`
	Output     string              `json:"output"`
	Frames     int                 `json:"frames"`
	FPS        float64             `json:"fps"`
	Duration   float64             `json:"duration"`
	DurationOK *bool               `json:"duration_ok,omitempty"`
	NoLoops    *bool               `json:"no_loops,omitempty"`
	FileOK     bool                `json:"file_ok"`
	Before     *metrics.Report     `json:"before,omitempty"`
	After      *metrics.Report     `json:"after,omitempty"`
	Comparison *metrics.Comparison `json:"comparison,omitempty"`
	Elapsed    float64             `json:"elapsed_seconds"`
	Error      string              `json:"error,omitempty"`
}

// Runner processes jobs sequentially. Frames within a job are already
// processed in parallel by the pipeline.
type Runner struct {
	Pipeline Stabilizer
	Load     LoadFunc
	Save     SaveFunc
	Metrics  metrics.Options
	Observer ClipObserver

	OutputDir string
	// PNGFrames writes each default output as a directory of PNG frames
	// instead of an .mp4 file.
	PNGFrames   bool
	MinDuration time.Duration
	MaxDuration time.Duration

	Logger *zap.Logger
}

// Run processes every job and returns one Result per job in order. A failed
// job does not stop the run; a cancelled ctx stops it before the next job.
func (r *Runner) Run(ctx context.Context, jobs []Job) []Result {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "batch"))

	results := make([]Result, 0, len(jobs))
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			logger.Warn("batch cancelled", zap.Int("remaining", len(jobs)-i), zap.Error(err))
			break
		}
		job = r.prepare(job)
		logger.Info("processing clip",
			zap.Int("index", i+1),
			zap.Int("total", len(jobs)),
			zap.String("id", job.ID),
			zap.String("input", job.Input),
		)

		res := r.runJob(ctx, job)
		status := "ok"
		if res.Error != "" {
			status = "failed"
			logger.Error("clip failed", zap.String("id", job.ID), zap.String("error", res.Error))
		} else {
			logger.Info("clip done",
				zap.String("id", job.ID),
				zap.String("output", res.Output),
				zap.Bool("stable", res.Comparison.Stable),
				zap.Bool("looped", res.After.Looped),
				zap.Float64("elapsed", res.Elapsed),
			)
		}
		if r.Observer != nil {
			r.Observer.ObserveClip(status, res.Before, res.After)
		}
		results = append(results, res)
	}
	return results
}

func (r *Runner) prepare(job Job) Job {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Output == "" {
		name := job.ID + ".mp4"
		if r.PNGFrames {
			name = job.ID
		}
		job.Output = filepath.Join(r.OutputDir, name)
	}
	return job
}

func (r *Runner) runJob(ctx context.Context, job Job) Result {
	start := time.Now()
	res := Result{ID: job.ID, Input: job.Input, Output: job.Output}
	fail := func(err error) Result {
		res.Error = err.Error()
		res.Elapsed = time.Since(start).Seconds()
		return res
	}

	clip, err := r.Load(ctx, job.Input)
	if err != nil {
		return fail(fmt.Errorf("load: %w", err))
	}
	res.Frames = len(clip.Frames)
	res.FPS = clip.FPS
	res.Duration = clip.Duration().Seconds()
	res.DurationOK = r.durationOK(clip.Duration())

	before, err := metrics.Compute(clip.Frames, r.Metrics)
	if err != nil {
		return fail(fmt.Errorf("measure input: %w", err))
	}
	res.Before = &before

	stabilized, err := r.Pipeline.Stabilize(ctx, clip.Frames)
	if err != nil {
		return fail(fmt.Errorf("stabilize: %w", err))
	}

	after, err := metrics.Compute(stabilized, r.Metrics)
	if err != nil {
		return fail(fmt.Errorf("measure output: %w", err))
	}
	res.After = &after
	cmp := metrics.Compare(before, after)
	res.Comparison = &cmp
	if after.LoopDistance != nil {
		noLoops := !after.Looped
		res.NoLoops = &noLoops
	}

	if err := r.Save(ctx, video.Clip{Frames: stabilized, FPS: clip.FPS}, job.Output); err != nil {
		return fail(fmt.Errorf("save: %w", err))
	}
	res.FileOK = outputExists(job.Output)
	res.Elapsed = time.Since(start).Seconds()
	return res
}

func (r *Runner) durationOK(d time.Duration) *bool {
	if r.MinDuration <= 0 && r.MaxDuration <= 0 {
		return nil
	}
	ok := (r.MinDuration <= 0 || d >= r.MinDuration) && (r.MaxDuration <= 0 || d <= r.MaxDuration)
	return &ok
}

func outputExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir() || info.Size() > 0
}

// WriteReport writes results as indented JSON.
func WriteReport(path string, results []Result) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling results: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing results file: %w", err)
	}
	return nil
}
