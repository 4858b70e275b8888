package stabilize

import (
	"math"

	"framestab/internal/video"
	"framestab/internal/worker"
)

// DeJitter applies a separable Gaussian blur to each frame on its own.
// Edges replicate the border sample.
type DeJitter struct {
	Sigma   float64
	Workers int
}

func (DeJitter) Name() string { return "dejitter" }

func (s DeJitter) Apply(seq video.Sequence) (video.Sequence, error) {
	sigma := s.Sigma
	if sigma <= 0 {
		sigma = DefaultBlurSigma
	}
	kernel := gaussianKernel(sigma)
	return worker.Map(seq, s.Workers, func(_ int, f video.Frame) (video.Frame, error) {
		return blur(f, kernel), nil
	})
}

// gaussianKernel returns normalized weights for offsets -r..r with r = ceil(3σ).
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func blur(f video.Frame, kernel []float64) video.Frame {
	radius := len(kernel) / 2
	w, h := f.Width, f.Height
	tmp := video.NewFrame(w, h)
	out := video.NewFrame(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [3]float64
			for k, weight := range kernel {
				src := f.Offset(clampIndex(x+k-radius, w), y)
				acc[0] += weight * f.Pix[src]
				acc[1] += weight * f.Pix[src+1]
				acc[2] += weight * f.Pix[src+2]
			}
			dst := tmp.Offset(x, y)
			copy(tmp.Pix[dst:dst+3], acc[:])
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [3]float64
			for k, weight := range kernel {
				src := tmp.Offset(x, clampIndex(y+k-radius, h))
				acc[0] += weight * tmp.Pix[src]
				acc[1] += weight * tmp.Pix[src+1]
				acc[2] += weight * tmp.Pix[src+2]
			}
			dst := out.Offset(x, y)
			out.Pix[dst] = video.Clamp(acc[0])
			out.Pix[dst+1] = video.Clamp(acc[1])
			out.Pix[dst+2] = video.Clamp(acc[2])
		}
	}
	return out
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
