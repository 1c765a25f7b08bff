package risk

import (
	"context"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Seeded parallel sampling
// =============================================================================

// SampleBlockSize is the number of consecutive runs drawn from one generator
const SampleBlockSize = 1024

// Sampler partitions Monte Carlo runs into fixed blocks of SampleBlockSize runs.
// Block b draws from its own generator seeded with Seed+b, and workers only decide
// how many blocks run at once, so output depends on (Runs, Seed) alone.
type Sampler struct {
	Runs    int
	Seed    int64
	Workers int
}

// NewSampler resolves defaults: seed 0 is replaced by the clock, workers <= 0 by NumCPU
func NewSampler(runs int, seed int64, workers int) Sampler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if blocks := (runs + SampleBlockSize - 1) / SampleBlockSize; blocks > 0 && workers > blocks {
		workers = blocks
	}
	return Sampler{Runs: runs, Seed: seed, Workers: workers}
}

// Blocks returns the number of run blocks
func (s Sampler) Blocks() int {
	if s.Runs <= 0 {
		return 0
	}
	return (s.Runs + SampleBlockSize - 1) / SampleBlockSize
}

// ForEachBlock calls fn once per block with its run range [lo,hi) and generator.
// At most Workers blocks run concurrently.
func (s Sampler) ForEachBlock(ctx context.Context, fn func(ctx context.Context, block int, rng *rand.Rand, lo, hi int) error) error {
	if s.Runs <= 0 {
		return invalid("simulation runs must be > 0")
	}
	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < s.Blocks(); b++ {
		block := b
		lo := b * SampleBlockSize
		hi := lo + SampleBlockSize
		if hi > s.Runs {
			hi = s.Runs
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(s.Seed + int64(block)))
			return fn(gctx, block, rng, lo, hi)
		})
	}
	return g.Wait()
}

// Sample runs draw once per run and returns the outputs in run order
func Sample[T any](ctx context.Context, s Sampler, draw func(rng *rand.Rand) T) ([]T, error) {
	if s.Runs <= 0 {
		return nil, invalid("simulation runs must be > 0")
	}
	out := make([]T, s.Runs)
	err := s.ForEachBlock(ctx, func(_ context.Context, _ int, rng *rand.Rand, lo, hi int) error {
		for i := lo; i < hi; i++ {
			out[i] = draw(rng)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
