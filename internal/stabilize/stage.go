package stabilize

import (
	"math"

	"framestab/internal/video"
)

// DefaultEpsilon keeps gain denominators away from zero on black frames.
const DefaultEpsilon = 1e-6

// DefaultBlurSigma is the standard deviation of the de-jitter blur, in pixels.
const DefaultBlurSigma = 1.0

// Stage is one whole-sequence pass. Apply receives a validated sequence and
// returns a new sequence of the same length and size; it must not modify
// its input.
type Stage interface {
	Name() string
	Apply(seq video.Sequence) (video.Sequence, error)
}

// Config holds the tunables shared by the stages.
type Config struct {
	// Epsilon is added to frame means before dividing. Zero means DefaultEpsilon.
	Epsilon float64
	// MaxGain caps any normalization gain. Zero disables the cap.
	MaxGain float64
	// BlurSigma is the de-jitter Gaussian standard deviation. Zero means DefaultBlurSigma.
	BlurSigma float64
	// Workers bounds per-frame goroutines within a stage. Zero means GOMAXPROCS.
	Workers int
}

// DefaultConfig returns the tunables used by Stabilize.
func DefaultConfig() Config {
	return Config{
		Epsilon:   DefaultEpsilon,
		BlurSigma: DefaultBlurSigma,
	}
}

func (c Config) withDefaults() Config {
	if c.Epsilon <= 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.BlurSigma <= 0 {
		c.BlurSigma = DefaultBlurSigma
	}
	return c
}

// gain is target/(mean+eps), capped at maxGain when maxGain > 0.
func gain(target, mean, eps, maxGain float64) float64 {
	g := target / (mean + eps)
	if maxGain > 0 && g > maxGain {
		return maxGain
	}
	return g
}

// scaleFrame multiplies each channel by its gain and clamps to [0, 255].
func scaleFrame(f video.Frame, gains [3]float64) video.Frame {
	out := video.NewFrame(f.Width, f.Height)
	for i := 0; i < len(f.Pix); i += video.Channels {
		out.Pix[i] = video.Clamp(f.Pix[i] * gains[0])
		out.Pix[i+1] = video.Clamp(f.Pix[i+1] * gains[1])
		out.Pix[i+2] = video.Clamp(f.Pix[i+2] * gains[2])
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// firstNonFinite returns the frame and sample index of the first NaN or Inf.
func firstNonFinite(seq video.Sequence) (frame, index int, value float64, found bool) {
	for fi, f := range seq {
		for i, v := range f.Pix {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fi, i, v, true
			}
		}
	}
	return 0, 0, 0, false
}
