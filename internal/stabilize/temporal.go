package stabilize

import (
	"math"

	"framestab/internal/video"
	"framestab/internal/worker"
)

// Temporal replaces every interior frame with the per-sample median of
// itself and its two neighbours. The first and last frames pass through.
// Every output reads only the input sequence, never an earlier output.
type Temporal struct {
	Workers int
}

func (Temporal) Name() string { return "temporal" }

func (s Temporal) Apply(seq video.Sequence) (video.Sequence, error) {
	last := len(seq) - 1
	return worker.Map(seq, s.Workers, func(i int, f video.Frame) (video.Frame, error) {
		if i == 0 || i == last {
			return f.Clone(), nil
		}
		prev, next := seq[i-1], seq[i+1]
		out := video.NewFrame(f.Width, f.Height)
		for j := range out.Pix {
			out.Pix[j] = median3(prev.Pix[j], f.Pix[j], next.Pix[j])
		}
		return out, nil
	})
}

func median3(a, b, c float64) float64 {
	return math.Max(math.Min(a, b), math.Min(math.Max(a, b), c))
}
