package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"framestab/internal/metrics"
)

const namespace = "framestab"

// Collector records pipeline stage timings, frame counts, failures and the
// stability of processed clips on its own registry.
type Collector struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageFrames   *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	clipsTotal    *prometheus.CounterVec
	stability     *prometheus.GaugeVec

	logger *zap.Logger
}

func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in one stabilization stage over a whole sequence",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"stage"},
		),
		stageFrames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_frames_total",
				Help:      "Frames processed by each stabilization stage",
			},
			[]string{"stage"},
		),
		stageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Stabilization failures by stage and reason",
			},
			[]string{"stage", "reason"},
		),
		clipsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clips_total",
				Help:      "Clips handled, by outcome",
			},
			[]string{"status"},
		),
		stability: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_clip_stability",
				Help:      "Stability measurements of the most recent clip",
			},
			[]string{"phase", "metric"},
		),
		logger: logger.With(zap.String("component", "telemetry")),
	}
}

// Registry exposes the underlying registry for tests and exporters.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveStage(stage string, frames int, elapsed time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	c.stageFrames.WithLabelValues(stage).Add(float64(frames))
}

func (c *Collector) ObserveFailure(stage, reason string) {
	c.stageFailures.WithLabelValues(stage, reason).Inc()
}

// ObserveClip counts a finished clip and records its before/after stability.
// A nil report is skipped.
func (c *Collector) ObserveClip(status string, before, after *metrics.Report) {
	c.clipsTotal.WithLabelValues(status).Inc()
	for phase, r := range map[string]*metrics.Report{"before": before, "after": after} {
		if r == nil {
			continue
		}
		c.stability.WithLabelValues(phase, "luminance_var").Set(r.LuminanceVar)
		c.stability.WithLabelValues(phase, "color_var").Set(r.ColorVar)
		c.stability.WithLabelValues(phase, "pixel_diff_var").Set(r.PixelDiffVar)
		c.stability.WithLabelValues(phase, "frame_diff_var").Set(r.FrameDiffVar)
		if r.LoopDistance != nil {
			c.stability.WithLabelValues(phase, "loop_distance").Set(*r.LoopDistance)
		}
	}
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("error writing metrics to %s: %w", path, err)
	}
	c.logger.Debug("metrics written", zap.String("path", path))
	return nil
}
