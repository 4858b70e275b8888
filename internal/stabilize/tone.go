package stabilize

import (
	"framestab/internal/imageproc"
	"framestab/internal/video"
	"framestab/internal/worker"
)

// Tone rescales each channel of every frame so the frame's channel means
// move to the sequence-wide channel means. Channels never mix.
type Tone struct {
	Epsilon float64
	MaxGain float64
	Workers int
}

func (Tone) Name() string { return "tone" }

func (s Tone) Apply(seq video.Sequence) (video.Sequence, error) {
	eps := s.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	means, err := worker.Map(seq, s.Workers, func(_ int, f video.Frame) ([3]float64, error) {
		return imageproc.ChannelMeans(f), nil
	})
	if err != nil {
		return nil, err
	}

	var target [3]float64
	for _, m := range means {
		for c := range target {
			target[c] += m[c]
		}
	}
	for c := range target {
		target[c] /= float64(len(means))
	}

	return worker.Map(seq, s.Workers, func(i int, f video.Frame) (video.Frame, error) {
		var gains [3]float64
		for c := range gains {
			gains[c] = gain(target[c], means[i][c], eps, s.MaxGain)
		}
		return scaleFrame(f, gains), nil
	})
}
