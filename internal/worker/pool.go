package worker

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Limit resolves a configured worker count; zero or negative means GOMAXPROCS.
func Limit(workers int) int {
	if workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}

// ForEach calls fn for every index in [0, n) on at most workers goroutines
// and returns the first error.
func ForEach(n, workers int, fn func(i int) error) error {
	var g errgroup.Group
	g.SetLimit(Limit(workers))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}

// Map applies fn to every item concurrently. Each result is written to its
// own slot, so output order matches input order.
func Map[T, R any](items []T, workers int, fn func(i int, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	err := ForEach(len(items), workers, func(i int) error {
		r, err := fn(i, items[i])
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
