package selective

import (
	"fmt"
	"math"

	"clusterpval/domain/core"
	"clusterpval/domain/stats"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	gstat "gonum.org/v1/gonum/stat"
)

// psdTolerance is the relative slack allowed on negative eigenvalues when a
// supplied precision matrix is checked for positive semi-definiteness.
const psdTolerance = 1e-10

// Covariance is a resolved noise model: exactly one of sigma (isotropic) or
// precision (general) is meaningful.
type Covariance struct {
	kind      stats.CovarianceKind
	sigma     float64
	precision *mat.SymDense
	dim       int
	estimated bool
}

// ResolveCovariance validates spec against data and fills in estimated
// parameters when the caller did not supply them.
func ResolveCovariance(data mat.Matrix, spec stats.CovarianceSpec) (*Covariance, error) {
	_, q := data.Dims()
	switch spec.Kind {
	case stats.Isotropic:
		switch {
		case math.IsNaN(spec.Sigma) || math.IsInf(spec.Sigma, 0):
			return nil, core.NewInvalidCovarianceError("sigma must be finite")
		case spec.Sigma < 0:
			return nil, core.NewInvalidCovarianceError(fmt.Sprintf("sigma must be non-negative, got %g", spec.Sigma))
		case spec.Sigma > 0:
			return &Covariance{kind: stats.Isotropic, sigma: spec.Sigma, dim: q}, nil
		}
		sigma, err := estimateSigma(data)
		if err != nil {
			return nil, err
		}
		return &Covariance{kind: stats.Isotropic, sigma: sigma, dim: q, estimated: true}, nil

	case stats.General:
		if spec.Precision == nil {
			prec, err := estimatePrecision(data)
			if err != nil {
				return nil, err
			}
			return &Covariance{kind: stats.General, precision: prec, dim: q, estimated: true}, nil
		}
		prec, err := validatePrecision(spec.Precision, q)
		if err != nil {
			return nil, err
		}
		return &Covariance{kind: stats.General, precision: prec, dim: q}, nil

	default:
		return nil, core.NewInvalidCovarianceError("unknown covariance kind " + spec.Kind.String())
	}
}

// IgnoredCompanion reports which supplied parameter spec.Kind does not read,
// or "" when nothing is ignored.
func IgnoredCompanion(spec stats.CovarianceSpec) string {
	switch {
	case spec.Kind == stats.Isotropic && spec.Precision != nil:
		return "precision"
	case spec.Kind == stats.General && spec.Sigma != 0:
		return "sigma"
	}
	return ""
}

// Kind returns the active variant.
func (c *Covariance) Kind() stats.CovarianceKind { return c.kind }

// Sigma returns the isotropic standard deviation (0 under General).
func (c *Covariance) Sigma() float64 { return c.sigma }

// Estimated reports whether the active parameter was estimated from data.
func (c *Covariance) Estimated() bool { return c.estimated }

// Dim is the feature dimensionality q.
func (c *Covariance) Dim() int { return c.dim }

// Norm is the covariance-weighted length of v: ||v|| under Isotropic,
// sqrt(vᵀΘv) under General.
func (c *Covariance) Norm(v []float64) float64 {
	if c.kind == stats.General {
		vec := mat.NewVecDense(len(v), v)
		qf := mat.Inner(vec, c.precision, vec)
		if qf < 0 {
			// PSD within tolerance can still round slightly negative.
			qf = 0
		}
		return math.Sqrt(qf)
	}
	return floats.Norm(v, 2)
}

// ScaleFactor is the variance of the statistic's reference law per degree of
// freedom for clusters of sizes n1 and n2.
func (c *Covariance) ScaleFactor(n1, n2 int) float64 {
	nu := 1/float64(n1) + 1/float64(n2)
	if c.kind == stats.General {
		return nu
	}
	return nu * c.sigma * c.sigma
}

// estimateSigma pools every feature's deviations from its column mean:
// sqrt(ΣΣ (x_ij - x̄_j)² / (n·q - q)).
func estimateSigma(data mat.Matrix) (float64, error) {
	n, q := data.Dims()
	if n < 2 {
		return 0, core.NewInvalidCovarianceError("at least two rows are needed to estimate sigma")
	}

	col := make([]float64, n)
	var ss float64
	for j := 0; j < q; j++ {
		mat.Col(col, j, data)
		mean, err := mstats.Mean(col)
		if err != nil {
			return 0, core.NewInvalidCovarianceError("column mean: " + err.Error())
		}
		for _, x := range col {
			d := x - mean
			ss += d * d
		}
	}

	sigma := math.Sqrt(ss / float64(n*q-q))
	if sigma == 0 {
		return 0, core.NewInvalidCovarianceError("estimated sigma is zero; all rows are identical")
	}
	return sigma, nil
}

// estimatePrecision inverts the sample covariance (n-1 denominator).
func estimatePrecision(data mat.Matrix) (*mat.SymDense, error) {
	n, q := data.Dims()
	if n <= q {
		return nil, core.NewInvalidCovarianceError("need more rows than features to estimate a precision matrix")
	}

	cov := mat.NewSymDense(q, nil)
	gstat.CovarianceMatrix(cov, data, nil)

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, core.NewInvalidCovarianceError("sample covariance is singular")
	}
	prec := mat.NewSymDense(q, nil)
	if err := chol.InverseTo(prec); err != nil {
		return nil, core.NewInvalidCovarianceError("inverting sample covariance: " + err.Error())
	}
	return prec, nil
}

// validatePrecision checks shape, finiteness, symmetry and positive
// semi-definiteness, returning a symmetric copy.
func validatePrecision(m mat.Matrix, q int) (*mat.SymDense, error) {
	r, c := m.Dims()
	if r != q || c != q {
		return nil, core.NewInvalidCovarianceError("precision matrix must be q-by-q")
	}

	var maxAbs float64
	for i := 0; i < q; i++ {
		for j := 0; j < q; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, core.NewInvalidCovarianceError("precision matrix has non-finite entries")
			}
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
	}

	tol := psdTolerance * math.Max(1, maxAbs)
	sym := mat.NewSymDense(q, nil)
	for i := 0; i < q; i++ {
		for j := i; j < q; j++ {
			a, b := m.At(i, j), m.At(j, i)
			if math.Abs(a-b) > tol {
				return nil, core.NewInvalidCovarianceError("precision matrix is not symmetric")
			}
			sym.SetSym(i, j, (a+b)/2)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		return nil, core.NewInvalidCovarianceError("eigendecomposition of precision matrix failed")
	}
	for _, v := range eig.Values(nil) {
		if v < -tol {
			return nil, core.NewInvalidCovarianceError("precision matrix is not positive semi-definite")
		}
	}
	return sym, nil
}
