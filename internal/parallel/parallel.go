// Package parallel spreads independent work items over goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how work is split.
type Config struct {
	// Workers is the maximum number of goroutines. 0 means runtime.NumCPU().
	Workers int

	// MinPerWorker is the smallest number of items handed to a goroutine.
	// Fewer items than that run on the calling goroutine.
	MinPerWorker int
}

// DefaultConfig uses one worker per CPU, one item at a time: suited to work
// items as large as building the loss graph of a whole sequence.
func DefaultConfig() Config {
	return Config{Workers: runtime.NumCPU(), MinPerWorker: 1}
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}

// For runs f(i) for every i in [0, n) and returns once all calls are done.
// The calls may run concurrently and in any order.
func For(n int, f func(i int), cfg Config) {
	minPer := max(cfg.MinPerWorker, 1)
	workers := cfg.workers()
	if workers == 1 || n < 2*minPer {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	chunk := max((n+workers-1)/workers, minPer)
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// Map returns f(0), ..., f(n-1) computed with For.
func Map[T any](n int, f func(i int) T, cfg Config) []T {
	out := make([]T, n)
	For(n, func(i int) { out[i] = f(i) }, cfg)
	return out
}
