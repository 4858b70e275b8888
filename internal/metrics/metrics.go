// Package metrics measures how stable a frame sequence is over time, so a
// stabilized clip can be compared against its input.
package metrics

import (
	"fmt"
	"math"
	"math/rand/v2"

	"framestab/internal/imageproc"
	"framestab/internal/video"
	"framestab/internal/worker"
)

// Options tunes the sampled palette measurement.
type Options struct {
	// SampleSize is the number of pixels sampled per frame for palette clustering.
	SampleSize int
	// Colors is the number of dominant colors per frame. Zero skips palette drift.
	Colors int
	// Seed makes palette sampling reproducible.
	Seed    uint64
	Workers int
	// LoopGap is how many frames after the first a frame must be to count
	// as a return to it. Zero skips loop detection.
	LoopGap int
	// LoopThreshold is the mean absolute sample difference, in 8-bit levels,
	// under which two frames count as the same picture.
	LoopThreshold float64
}

// DefaultOptions returns the settings used by the CLI.
func DefaultOptions() Options {
	return Options{SampleSize: 2000, Colors: 5, Seed: 1, LoopGap: 12, LoopThreshold: 2}
}

// Report holds the stability measurements of one sequence. Every temporal
// measurement is zero when the sequence has fewer than two frames.
type Report struct {
	Frames        int        `json:"frames"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	MeanLuminance float64    `json:"mean_luminance"`
	FrameDiffVar  float64    `json:"frame_diff_var"`
	PixelDiffVar  float64    `json:"pixel_diff_var"`
	ColorVar      float64    `json:"color_var"`
	ChannelVar    [3]float64 `json:"channel_var"`
	LuminanceVar  float64    `json:"luminance_var"`
	HueDrift      float64    `json:"hue_drift"`
	PaletteDrift  float64    `json:"palette_drift"`
	// LoopDistance is the smallest mean absolute difference between the
	// first frame and any frame at least LoopGap frames later. It is nil
	// when the sequence is too short to measure.
	LoopDistance *float64 `json:"loop_distance,omitempty"`
	// Looped reports that the sequence moved away from its first frame and
	// later came back to it.
	Looped bool `json:"looped"`
}

type frameStats struct {
	luminance float64
	means     [3]float64
	palette   []imageproc.Swatch
}

type pairStats struct {
	meanAbs float64
	sum     float64
	sumSq   float64
}

// Compute measures seq. It fails only when seq is not a valid sequence.
func Compute(seq video.Sequence, opts Options) (Report, error) {
	if err := seq.Validate(); err != nil {
		return Report{}, fmt.Errorf("metrics: %w", err)
	}

	r := Report{Frames: len(seq)}
	r.Width, r.Height = seq.Size()

	stats, err := worker.Map(seq, opts.Workers, func(i int, f video.Frame) (frameStats, error) {
		s := frameStats{
			luminance: imageproc.MeanLuminance(f),
			means:     imageproc.ChannelMeans(f),
		}
		if opts.Colors > 0 {
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(i)))
			s.palette = imageproc.DominantColors(f, opts.SampleSize, opts.Colors, rng)
		}
		return s, nil
	})
	if err != nil {
		return Report{}, err
	}

	lums := make([]float64, len(stats))
	for i, s := range stats {
		lums[i] = s.luminance
	}
	r.MeanLuminance = mean(lums)

	if len(seq) < 2 {
		return r, nil
	}

	pairs, err := worker.Map(seq[1:], opts.Workers, func(i int, cur video.Frame) (pairStats, error) {
		return diffStats(seq[i], cur), nil
	})
	if err != nil {
		return Report{}, err
	}

	meanAbs := make([]float64, len(pairs))
	var sum, sumSq float64
	for i, p := range pairs {
		meanAbs[i] = p.meanAbs
		sum += p.sum
		sumSq += p.sumSq
	}
	r.FrameDiffVar = variance(meanAbs)
	n := float64(len(pairs) * len(seq[0].Pix))
	r.PixelDiffVar = math.Max(0, sumSq/n-(sum/n)*(sum/n))

	flat := make([]float64, 0, len(stats)*3)
	for c := 0; c < 3; c++ {
		channel := make([]float64, len(stats))
		for i, s := range stats {
			channel[i] = s.means[c]
		}
		r.ChannelVar[c] = variance(channel)
	}
	for _, s := range stats {
		flat = append(flat, s.means[:]...)
	}
	r.ColorVar = variance(flat)
	r.LuminanceVar = variance(lums)
	r.HueDrift = hueDrift(stats)
	if opts.Colors > 0 {
		r.PaletteDrift = paletteDrift(stats)
	}
	if opts.LoopGap > 0 && len(seq) > opts.LoopGap {
		if err := measureLoop(&r, seq, opts); err != nil {
			return Report{}, err
		}
	}
	return r, nil
}

// measureLoop compares every frame against the first one. The sequence loops
// when a frame at least LoopGap frames in matches the first frame after some
// earlier frame did not.
func measureLoop(r *Report, seq video.Sequence, opts Options) error {
	first := seq[0]
	dists, err := worker.Map(seq[1:], opts.Workers, func(_ int, f video.Frame) (float64, error) {
		return meanAbsDiff(first, f), nil
	})
	if err != nil {
		return err
	}

	closest := math.Inf(1)
	departed := 0.0
	for i, d := range dists {
		offset := i + 1
		if offset >= opts.LoopGap {
			closest = math.Min(closest, d)
			if d < opts.LoopThreshold && departed >= opts.LoopThreshold {
				r.Looped = true
			}
		}
		departed = math.Max(departed, d)
	}
	r.LoopDistance = &closest
	return nil
}

func meanAbsDiff(a, b video.Frame) float64 {
	var abs float64
	for j, v := range b.Pix {
		abs += math.Abs(v - a.Pix[j])
	}
	return abs / float64(len(b.Pix))
}

func diffStats(prev, cur video.Frame) pairStats {
	var p pairStats
	for j, v := range cur.Pix {
		d := v - prev.Pix[j]
		p.sum += d
		p.sumSq += d * d
	}
	p.meanAbs = meanAbsDiff(prev, cur)
	return p
}

// hueDrift is the mean absolute change in HSL hue of the frames' mean colors,
// in degrees, taking the short way around the wheel.
func hueDrift(stats []frameStats) float64 {
	var total float64
	prev, _, _ := imageproc.ToColor(stats[0].means).Hsl()
	for _, s := range stats[1:] {
		h, _, _ := imageproc.ToColor(s.means).Hsl()
		d := math.Abs(h - prev)
		if d > 180 {
			d = 360 - d
		}
		total += d
		prev = h
	}
	return total / float64(len(stats)-1)
}

// paletteDrift averages, over consecutive frames, the proportion-weighted Lab
// distance from each dominant color to its nearest match in the next frame.
func paletteDrift(stats []frameStats) float64 {
	var total float64
	for i := 1; i < len(stats); i++ {
		prev, cur := stats[i-1].palette, stats[i].palette
		if len(prev) == 0 || len(cur) == 0 {
			continue
		}
		var drift float64
		for _, a := range prev {
			best := math.Inf(1)
			for _, b := range cur {
				best = math.Min(best, a.Color.DistanceLab(b.Color))
			}
			drift += a.Proportion * best
		}
		total += drift
	}
	return total / float64(len(stats)-1)
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

// variance is the population variance, as numpy.var computes it.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var acc float64
	for _, v := range values {
		acc += (v - m) * (v - m)
	}
	return acc / float64(len(values))
}
