package stabilize

import (
	"framestab/internal/imageproc"
	"framestab/internal/video"
	"framestab/internal/worker"
)

// Flicker rescales every frame so its mean luminance moves to the mean
// luminance of the whole sequence. All channels share one gain per frame.
type Flicker struct {
	Epsilon float64
	MaxGain float64
	Workers int
}

func (Flicker) Name() string { return "flicker" }

func (s Flicker) Apply(seq video.Sequence) (video.Sequence, error) {
	eps := s.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	means, err := worker.Map(seq, s.Workers, func(_ int, f video.Frame) (float64, error) {
		return imageproc.MeanLuminance(f), nil
	})
	if err != nil {
		return nil, err
	}
	target := mean(means)

	return worker.Map(seq, s.Workers, func(i int, f video.Frame) (video.Frame, error) {
		g := gain(target, means[i], eps, s.MaxGain)
		return scaleFrame(f, [3]float64{g, g, g}), nil
	})
}
