package rng

import (
	"context"
	"math/rand/v2"
)

// Adapter implements ports.RNGPort on top of PCG streams. The stream name is
// folded into the second PCG word so distinct operations seeded with the same
// value do not share draws.
type Adapter struct{}

// NewAdapter creates a new RNG adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// SeededStream creates a deterministic random source for a named operation
func (a *Adapter) SeededStream(ctx context.Context, name string, seed uint64) (rand.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.NewPCG(seed, hashString(name)), nil
}

// hashString is 64-bit FNV-1a; stable across platforms and Go releases.
func hashString(s string) uint64 {
	var hash uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= 1099511628211
	}
	return hash
}
