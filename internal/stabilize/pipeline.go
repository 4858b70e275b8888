// Package stabilize suppresses flicker, tone drift, abrupt motion and jitter
// in a generated frame sequence.
//
// A Pipeline runs four whole-sequence stages in a fixed order:
//
//	Flicker -> Tone -> Temporal -> DeJitter
//
// Each stage completes over the entire sequence before the next begins,
// since the first three need sequence-wide or neighbour statistics. Within
// a stage, frames are processed concurrently into disjoint output slots.
package stabilize

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"framestab/internal/video"
)

const tracerName = "framestab/stabilize"

// Observer receives per-stage timings and failures.
type Observer interface {
	ObserveStage(stage string, frames int, elapsed time.Duration)
	ObserveFailure(stage, reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, int, time.Duration) {}
func (nopObserver) ObserveFailure(string, string)           {}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver reports stage timings and failures to o.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithTracer replaces the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithStages replaces the stage list. Intended for tests and tooling.
func WithStages(stages ...Stage) Option {
	return func(p *Pipeline) {
		p.stages = stages
	}
}

// Pipeline runs the stabilization stages over one sequence at a time.
// It holds no per-call state and is safe for concurrent use.
type Pipeline struct {
	stages   []Stage
	logger   *zap.Logger
	observer Observer
	tracer   trace.Tracer
}

// NewPipeline builds the standard four-stage pipeline.
func NewPipeline(cfg Config, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	p := &Pipeline{
		stages: []Stage{
			Flicker{Epsilon: cfg.Epsilon, MaxGain: cfg.MaxGain, Workers: cfg.Workers},
			Tone{Epsilon: cfg.Epsilon, MaxGain: cfg.MaxGain, Workers: cfg.Workers},
			Temporal{Workers: cfg.Workers},
			DeJitter{Sigma: cfg.BlurSigma, Workers: cfg.Workers},
		},
		logger:   logger.With(zap.String("component", "stabilize")),
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Stabilize validates seq and runs every stage over it. The result has the
// same length and frame size as seq; seq itself is left untouched.
func (p *Pipeline) Stabilize(ctx context.Context, seq video.Sequence) (video.Sequence, error) {
	ctx, span := p.tracer.Start(ctx, "stabilize.Stabilize")
	defer span.End()

	if err := seq.Validate(); err != nil {
		p.observer.ObserveFailure("validate", "invalid_input")
		span.SetStatus(codes.Error, err.Error())
		return nil, &InvalidInputError{Err: err}
	}

	width, height := seq.Size()
	span.SetAttributes(
		attribute.Int("frames", len(seq)),
		attribute.Int("width", width),
		attribute.Int("height", height),
	)

	start := time.Now()
	current := seq
	for _, stage := range p.stages {
		next, err := p.runStage(ctx, stage, current)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		current = next
	}

	p.logger.Debug("sequence stabilized",
		zap.Int("frames", len(current)),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Duration("elapsed", time.Since(start)),
	)
	return current, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, seq video.Sequence) (video.Sequence, error) {
	_, span := p.tracer.Start(ctx, "stabilize."+stage.Name())
	defer span.End()

	start := time.Now()
	out, err := stage.Apply(seq)
	if err != nil {
		p.observer.ObserveFailure(stage.Name(), "error")
		return nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
	}
	if len(out) != len(seq) {
		p.observer.ObserveFailure(stage.Name(), "length")
		return nil, fmt.Errorf("stage %s returned %d frames for %d", stage.Name(), len(out), len(seq))
	}
	if frame, idx, v, found := firstNonFinite(out); found {
		p.observer.ObserveFailure(stage.Name(), "non_finite")
		p.logger.Warn("stage produced non-finite sample",
			zap.String("stage", stage.Name()),
			zap.Int("frame", frame),
			zap.Int("index", idx),
		)
		return nil, &NumericDegeneracyError{Stage: stage.Name(), Frame: frame, Index: idx, Value: v}
	}

	elapsed := time.Since(start)
	p.observer.ObserveStage(stage.Name(), len(out), elapsed)
	p.logger.Debug("stage finished",
		zap.String("stage", stage.Name()),
		zap.Int("frames", len(out)),
		zap.Duration("elapsed", elapsed),
	)
	return out, nil
}

// Stabilize runs the default pipeline without logging or metrics.
func Stabilize(seq video.Sequence) (video.Sequence, error) {
	return NewPipeline(DefaultConfig(), nil).Stabilize(context.Background(), seq)
}
