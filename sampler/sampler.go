// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

// Package sampler draws random samples from candidate sets.
// All randomness used for age imputation and bootstrapping goes through a Source.
package sampler

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Source produces random indices. Tests can supply a deterministic implementation.
type Source interface {
	// Indices returns size indices in [0, n). If weights is non-nil, it has
	// length n and index i is chosen with probability proportional to weights[i].
	Indices(n, size int, replace bool, weights []float64) ([]int, error)
}

// Sampler is a Source backed by a seeded PCG generator.
// It is not safe for concurrent use.
type Sampler struct {
	rng *rand.Rand
}

// New returns a Sampler seeded with seed.
func New(seed uint64) *Sampler {
	return &Sampler{rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Split returns a new Sampler seeded from s's stream.
// Successive calls return independent generators in a reproducible order.
func (s *Sampler) Split() *Sampler {
	return &Sampler{rand.New(rand.NewPCG(s.rng.Uint64(), s.rng.Uint64()))}
}

var errNegativeWeight = errors.New("negative weight")

func (s *Sampler) Indices(n, size int, replace bool, weights []float64) ([]int, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative sample size %d", size)
	}
	if size == 0 {
		return []int{}, nil
	}
	if n <= 0 {
		return nil, fmt.Errorf("can't draw %d from empty population", size)
	}
	if !replace && size > n {
		return nil, fmt.Errorf("can't draw %d from %d without replacement", size, n)
	}
	if weights != nil {
		if len(weights) != n {
			return nil, fmt.Errorf("got %d weight(s) for %d candidate(s)", len(weights), n)
		}
		for _, w := range weights {
			if w < 0 {
				return nil, errNegativeWeight
			}
		}
		if floats.Sum(weights) <= 0 {
			weights = nil // all-zero weights degrade to uniform sampling
		}
	}

	idx := make([]int, size)
	switch {
	case replace && weights == nil:
		for i := range idx {
			idx[i] = s.rng.IntN(n)
		}
	case replace:
		cat := distuv.NewCategorical(weights, s.rng)
		for i := range idx {
			idx[i] = int(cat.Rand())
		}
	case weights == nil:
		copy(idx, s.rng.Perm(n)[:size])
	default:
		w := sampleuv.NewWeighted(weights, s.rng)
		for i := range idx {
			var ok bool
			if idx[i], ok = w.Take(); !ok {
				return nil, fmt.Errorf("only %d candidate(s) have positive weight", i)
			}
		}
	}
	return idx, nil
}

// Sample returns size values drawn from candidates.
// If candidates contains a single value, it is repeated size times
// regardless of replace and weights.
func Sample[T any](src Source, candidates []T, size int, replace bool, weights []float64) ([]T, error) {
	if len(candidates) == 1 && size >= 0 {
		out := make([]T, size)
		for i := range out {
			out[i] = candidates[0]
		}
		return out, nil
	}
	idx, err := src.Indices(len(candidates), size, replace, weights)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = candidates[j]
	}
	return out, nil
}
