package selective

import (
	"fmt"
	"iter"
	"math"
	"math/rand/v2"

	"clusterpval/domain/core"

	"gonum.org/v1/gonum/stat/distuv"
)

// Reference describes the null law of the displacement scale φ before
// conditioning on selection: φ ~ Scale·χ_Dim.
type Reference struct {
	Statistic float64
	Scale     float64
	Dim       int
}

// ProposalConfig positions the Normal importance-sampling proposal relative to
// the reference, in units of Reference.Scale:
//
//	φ ~ Normal(Statistic + CenterShift·Scale, Spread·Scale)
type ProposalConfig struct {
	CenterShift float64
	Spread      float64
}

// DefaultProposal centres the proposal on the observed statistic with the
// reference scale as its standard deviation.
func DefaultProposal() ProposalConfig {
	return ProposalConfig{CenterShift: 0, Spread: 1}
}

// Validate rejects proposals that cannot be sampled.
func (c ProposalConfig) Validate() error {
	if !(c.Spread > 0) || math.IsInf(c.Spread, 0) {
		return core.NewInvalidInputError("proposal spread", "must be positive and finite")
	}
	if math.IsNaN(c.CenterShift) || math.IsInf(c.CenterShift, 0) {
		return core.NewInvalidInputError("proposal shift", "must be finite")
	}
	return nil
}

// Proposal is one sampled scale value with its log importance weight
// log f_ref(φ) - log f_prop(φ). Values outside the reference support carry a
// weight of zero (LogWeight = -Inf).
type Proposal struct {
	Phi       float64
	LogWeight float64
}

// Weight returns the importance weight on the natural scale.
func (p Proposal) Weight() float64 {
	return math.Exp(p.LogWeight)
}

// InSupport reports whether the proposal can contribute to the estimate.
func (p Proposal) InSupport() bool {
	return !math.IsInf(p.LogWeight, -1)
}

// Sampler draws scale values from the proposal distribution.
type Sampler struct {
	ref      Reference
	cfg      ProposalConfig
	proposal distuv.Normal
}

// NewSampler builds a sampler drawing from src. src must not be shared with
// other goroutines while the sampler is in use.
func NewSampler(ref Reference, cfg ProposalConfig, src rand.Source) (*Sampler, error) {
	if ref.Dim < 1 {
		return nil, core.NewInvalidInputError("reference dimension", "must be at least 1")
	}
	if !(ref.Scale > 0) || math.IsInf(ref.Scale, 0) {
		return nil, core.NewInvalidInputError("reference scale", fmt.Sprintf("must be positive and finite, got %v", ref.Scale))
	}
	if ref.Statistic < 0 || math.IsNaN(ref.Statistic) || math.IsInf(ref.Statistic, 0) {
		return nil, core.NewInvalidInputError("reference statistic", "must be finite and non-negative")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, core.NewInvalidInputError("random source", "is nil")
	}

	return &Sampler{
		ref: ref,
		cfg: cfg,
		proposal: distuv.Normal{
			Mu:    ref.Statistic + cfg.CenterShift*ref.Scale,
			Sigma: cfg.Spread * ref.Scale,
			Src:   src,
		},
	}, nil
}

// Propose yields exactly n independent proposals. Each value is drawn when the
// consumer asks for it.
func (s *Sampler) Propose(n int) iter.Seq[Proposal] {
	return func(yield func(Proposal) bool) {
		for i := 0; i < n; i++ {
			phi := s.proposal.Rand()
			if !yield(Proposal{Phi: phi, LogWeight: s.LogWeight(phi)}) {
				return
			}
		}
	}
}

// LogWeight is log f_ref(phi) - log f_prop(phi).
func (s *Sampler) LogWeight(phi float64) float64 {
	logRef := scaledChiLogDensity(phi, s.ref.Scale, s.ref.Dim)
	if math.IsInf(logRef, -1) {
		return logRef
	}
	return logRef - s.proposal.LogProb(phi)
}

// Reference returns the reference distribution the weights target.
func (s *Sampler) Reference() Reference { return s.ref }
