package kmeans

import (
	"math"
	"math/rand/v2"
)

// KMeans clusters RGB samples into at most k centers, stopping after
// iterations rounds or once no center moves by more than one level.
// The samples slice is not modified.
func KMeans(samples [][3]float64, k, iterations int, rng *rand.Rand) [][3]float64 {
	if len(samples) == 0 || k <= 0 {
		return nil
	}
	if k > len(samples) {
		k = len(samples)
	}

	centers := initCenters(samples, k, rng)
	assignments := make([]int, len(samples))

	for iter := 0; iter < iterations; iter++ {
		for i, px := range samples {
			assignments[i] = Nearest(px, centers)
		}

		sums := make([][3]float64, k)
		counts := make([]int, k)
		for i, a := range assignments {
			for c := 0; c < 3; c++ {
				sums[a][c] += samples[i][c]
			}
			counts[a]++
		}

		converged := true
		for i := range centers {
			// Empty clusters keep their previous center.
			if counts[i] == 0 {
				continue
			}
			for c := 0; c < 3; c++ {
				next := sums[i][c] / float64(counts[i])
				if math.Abs(centers[i][c]-next) > 1.0 {
					converged = false
				}
				centers[i][c] = next
			}
		}

		if converged {
			break
		}
	}
	return centers
}

// initCenters picks k random samples as the starting centers, preferring
// distinct colors so no two clusters start on the same point.
func initCenters(samples [][3]float64, k int, rng *rand.Rand) [][3]float64 {
	order := rng.Perm(len(samples))
	centers := make([][3]float64, 0, k)
	seen := make(map[[3]float64]bool, k)
	for _, idx := range order {
		if len(centers) == k {
			return centers
		}
		if seen[samples[idx]] {
			continue
		}
		seen[samples[idx]] = true
		centers = append(centers, samples[idx])
	}
	for _, idx := range order {
		if len(centers) == k {
			break
		}
		centers = append(centers, samples[idx])
	}
	return centers
}

// Nearest returns the index of the center closest to px in squared RGB distance.
func Nearest(px [3]float64, centers [][3]float64) int {
	best := 0
	minDist := math.MaxFloat64
	for i, c := range centers {
		d := 0.0
		for j := 0; j < 3; j++ {
			delta := px[j] - c[j]
			d += delta * delta
		}
		if d < minDist {
			minDist = d
			best = i
		}
	}
	return best
}
