package selective

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"clusterpval/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSampler(t *testing.T, ref Reference, cfg ProposalConfig, seed uint64) *Sampler {
	t.Helper()
	s, err := NewSampler(ref, cfg, rand.NewPCG(seed, seed+1))
	require.NoError(t, err)
	return s
}

func TestSampler_LogWeightMatchesDensities(t *testing.T) {
	const scale = 1.5
	s := newTestSampler(t, Reference{Statistic: 2, Scale: scale, Dim: 2}, DefaultProposal(), 1)

	// scale·χ₂ has density (φ/s²)·exp(-φ²/2s²); the proposal is Normal(2, 1.5).
	phi := 3.0
	logRef := math.Log(phi/(scale*scale)) - phi*phi/(2*scale*scale)
	logProp := -math.Log(scale*math.Sqrt(2*math.Pi)) - (phi-2)*(phi-2)/(2*scale*scale)
	assert.InDelta(t, logRef-logProp, s.LogWeight(phi), 1e-12)
}

func TestSampler_LogWeightOneDimension(t *testing.T) {
	s := newTestSampler(t, Reference{Statistic: 1, Scale: 1, Dim: 1}, DefaultProposal(), 1)

	// χ₁ is the half-normal: 2·N(0,1) density on φ > 0.
	phi := 0.7
	logRef := math.Log(2) - 0.5*math.Log(2*math.Pi) - phi*phi/2
	logProp := -0.5*math.Log(2*math.Pi) - (phi-1)*(phi-1)/2
	assert.InDelta(t, logRef-logProp, s.LogWeight(phi), 1e-12)
}

func TestSampler_OutsideSupport(t *testing.T) {
	s := newTestSampler(t, Reference{Statistic: 2, Scale: 1, Dim: 3}, DefaultProposal(), 1)

	for _, phi := range []float64{0, -1e-9, -5} {
		lw := s.LogWeight(phi)
		assert.True(t, math.IsInf(lw, -1), "phi=%v", phi)

		p := Proposal{Phi: phi, LogWeight: lw}
		assert.False(t, p.InSupport())
		assert.Equal(t, 0.0, p.Weight())
	}
}

func TestSampler_ProposeCountAndDeterminism(t *testing.T) {
	ref := Reference{Statistic: 10, Scale: 6, Dim: 2}
	a := slices.Collect(newTestSampler(t, ref, DefaultProposal(), 42).Propose(500))
	b := slices.Collect(newTestSampler(t, ref, DefaultProposal(), 42).Propose(500))
	c := slices.Collect(newTestSampler(t, ref, DefaultProposal(), 43).Propose(500))

	assert.Len(t, a, 500)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Empty(t, slices.Collect(newTestSampler(t, ref, DefaultProposal(), 42).Propose(0)))
}

func TestSampler_ProposeStopsEarly(t *testing.T) {
	s := newTestSampler(t, Reference{Statistic: 10, Scale: 6, Dim: 2}, DefaultProposal(), 7)

	taken := 0
	for range s.Propose(1000) {
		taken++
		if taken == 3 {
			break
		}
	}
	assert.Equal(t, 3, taken)
}

func TestSampler_WeightsRecoverReferenceTail(t *testing.T) {
	ref := Reference{Statistic: 10, Scale: 6, Dim: 2}
	// P(6·χ₂ ≥ 10) = exp(-100/72).
	want := ChiSquarePValue(100.0/36.0, 2)
	require.InDelta(t, math.Exp(-100.0/72.0), want, 1e-12)

	proposals := []ProposalConfig{
		DefaultProposal(),
		{CenterShift: -0.5, Spread: 1.5},
		{CenterShift: 0.5, Spread: 2},
	}
	for i, cfg := range proposals {
		s := newTestSampler(t, ref, cfg, uint64(100+i))

		var draws []Draw
		for p := range s.Propose(20000) {
			draws = append(draws, Draw{Proposal: p, Survived: true})
		}
		summary, err := ReduceDraws(draws, ref.Statistic)
		require.NoError(t, err)
		assert.InDelta(t, want, summary.PValue, 0.02, "proposal %+v", cfg)
	}
}

func TestNewSampler_Validation(t *testing.T) {
	good := Reference{Statistic: 1, Scale: 1, Dim: 2}
	src := rand.NewPCG(1, 2)

	tests := []struct {
		name string
		ref  Reference
		cfg  ProposalConfig
		src  rand.Source
	}{
		{"zero dim", Reference{Statistic: 1, Scale: 1}, DefaultProposal(), src},
		{"zero scale", Reference{Statistic: 1, Dim: 2}, DefaultProposal(), src},
		{"infinite scale", Reference{Statistic: 1, Scale: math.Inf(1), Dim: 2}, DefaultProposal(), src},
		{"negative statistic", Reference{Statistic: -1, Scale: 1, Dim: 2}, DefaultProposal(), src},
		{"nan statistic", Reference{Statistic: math.NaN(), Scale: 1, Dim: 2}, DefaultProposal(), src},
		{"zero spread", good, ProposalConfig{Spread: 0}, src},
		{"nan shift", good, ProposalConfig{CenterShift: math.NaN(), Spread: 1}, src},
		{"nil source", good, DefaultProposal(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSampler(tt.ref, tt.cfg, tt.src)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}
}
