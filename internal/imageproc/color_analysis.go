package imageproc

import (
	"math/rand/v2"
	"sort"

	"github.com/lucasb-eyer/go-colorful"

	"framestab/internal/kmeans"
	"framestab/internal/video"
)

// ITU-R BT.601 luma weights, the same conversion PIL uses for mode "L".
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// Swatch is one dominant color of a frame and the share of sampled pixels nearest to it.
type Swatch struct {
	Color      colorful.Color
	Proportion float64
}

// MeanLuminance returns the mean BT.601 luma of a frame.
func MeanLuminance(f video.Frame) float64 {
	n := f.Pixels()
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(f.Pix); i += video.Channels {
		sum += lumaR*f.Pix[i] + lumaG*f.Pix[i+1] + lumaB*f.Pix[i+2]
	}
	return sum / float64(n)
}

// ChannelMeans returns the per-channel mean of a frame.
func ChannelMeans(f video.Frame) [3]float64 {
	var sums [3]float64
	n := f.Pixels()
	if n == 0 {
		return sums
	}
	for i := 0; i < len(f.Pix); i += video.Channels {
		sums[0] += f.Pix[i]
		sums[1] += f.Pix[i+1]
		sums[2] += f.Pix[i+2]
	}
	for c := range sums {
		sums[c] /= float64(n)
	}
	return sums
}

// ToColor converts 8-bit-scale RGB to a colorful.Color.
func ToColor(rgb [3]float64) colorful.Color {
	return colorful.Color{
		R: video.Clamp(rgb[0]) / 255.0,
		G: video.Clamp(rgb[1]) / 255.0,
		B: video.Clamp(rgb[2]) / 255.0,
	}
}

// DominantColors samples sampleSize random pixels, clusters them into k
// colors and returns the swatches sorted by proportion, largest first.
// A sampleSize of zero or at least the pixel count uses every pixel once.
func DominantColors(f video.Frame, sampleSize, k int, rng *rand.Rand) []Swatch {
	totalPixels := f.Pixels()
	if totalPixels == 0 || k <= 0 {
		return nil
	}
	all := sampleSize <= 0 || sampleSize >= totalPixels
	if all {
		sampleSize = totalPixels
	}

	sample := make([][3]float64, 0, sampleSize)
	for i := 0; i < sampleSize; i++ {
		px := i
		if !all {
			px = rng.IntN(totalPixels)
		}
		base := px * video.Channels
		sample = append(sample, [3]float64{f.Pix[base], f.Pix[base+1], f.Pix[base+2]})
	}

	centers := kmeans.KMeans(sample, k, 10, rng)

	counts := make([]int, len(centers))
	for _, px := range sample {
		counts[kmeans.Nearest(px, centers)]++
	}

	total := float64(len(sample))
	swatches := make([]Swatch, 0, len(centers))
	for i, c := range centers {
		if counts[i] == 0 {
			continue
		}
		swatches = append(swatches, Swatch{
			Color:      ToColor(c),
			Proportion: float64(counts[i]) / total,
		})
	}

	sort.SliceStable(swatches, func(i, j int) bool {
		return swatches[i].Proportion > swatches[j].Proportion
	})
	return swatches
}
