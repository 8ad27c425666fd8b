package stats

import (
	"fmt"

	"clusterpval/domain/core"

	"gonum.org/v1/gonum/mat"
)

// ============================================================================
// INPUTS
// ============================================================================

// ClusterPair names the two cluster labels whose means are compared.
// INVARIANTS:
// - K1 != K2
// - both labels occur in the labeling under test
type ClusterPair struct {
	K1 int `json:"k1"`
	K2 int `json:"k2"`
}

// Validate checks the pair on its own; label occurrence is checked against data.
func (p ClusterPair) Validate() error {
	if p.K1 == p.K2 {
		return core.NewInvalidClusterError(p.K1, "compared with itself")
	}
	return nil
}

func (p ClusterPair) String() string {
	return fmt.Sprintf("%d vs %d", p.K1, p.K2)
}

// CovarianceKind selects the noise model.
type CovarianceKind int

const (
	// Isotropic: one scalar standard deviation shared by all features.
	Isotropic CovarianceKind = iota
	// General: a feature-by-feature precision (inverse covariance) matrix.
	General
)

func (k CovarianceKind) String() string {
	switch k {
	case Isotropic:
		return "isotropic"
	case General:
		return "general"
	default:
		return fmt.Sprintf("CovarianceKind(%d)", int(k))
	}
}

// CovarianceSpec is the tagged covariance assumption. The zero value is
// isotropic with an estimated standard deviation.
//
// Only the field belonging to Kind is read: Precision is ignored under
// Isotropic and Sigma is ignored under General.
type CovarianceSpec struct {
	Kind CovarianceKind

	// Sigma is the isotropic standard deviation; <= 0 means estimate it.
	Sigma float64

	// Precision is the q-by-q precision matrix; nil means estimate it as the
	// inverse sample covariance.
	Precision mat.Matrix
}

// IsotropicCovariance returns an isotropic spec with known sigma (0 = estimate).
func IsotropicCovariance(sigma float64) CovarianceSpec {
	return CovarianceSpec{Kind: Isotropic, Sigma: sigma}
}

// GeneralCovariance returns a general spec with the given precision (nil = estimate).
func GeneralCovariance(precision mat.Matrix) CovarianceSpec {
	return CovarianceSpec{Kind: General, Precision: precision}
}

// ============================================================================
// RESULTS
// ============================================================================

// WaldResult is the closed-form, non-selective test outcome.
// INVARIANTS:
// - Statistic >= 0
// - PValue in (0, 1]
type WaldResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
}

// MonteCarloResult is the selective importance-sampled test outcome.
// INVARIANTS:
// - PValue in [0, 1]
// - StdErr >= 0
// - 0 < Survived <= NDraws
type MonteCarloResult struct {
	RunID               core.RunID `json:"run_id"`
	Statistic           float64    `json:"statistic"`
	PValue              float64    `json:"p_value"`
	StdErr              float64    `json:"std_err"`
	NDraws              int        `json:"n_draws"`
	Survived            int        `json:"survived"`
	EffectiveSampleSize float64    `json:"effective_sample_size"`
}

// SurvivalRate is the fraction of draws that reproduced the selected clusters.
func (r MonteCarloResult) SurvivalRate() float64 {
	if r.NDraws == 0 {
		return 0
	}
	return float64(r.Survived) / float64(r.NDraws)
}
