package selective

import (
	"math"
	"testing"

	"clusterpval/domain/core"
	"clusterpval/domain/stats"
	"clusterpval/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	gstat "gonum.org/v1/gonum/stat"
)

// fourRowData has cluster means (1, 0) and (11, 0), so the isotropic
// statistic between labels 0 and 1 is exactly 10.
func fourRowData() (*mat.Dense, []int) {
	return mat.NewDense(4, 2, []float64{
		0, 0,
		2, 0,
		10, 0,
		12, 0,
	}), []int{0, 0, 1, 1}
}

func TestResolveCovariance_IsotropicKnownSigma(t *testing.T) {
	data, _ := fourRowData()
	cov, err := ResolveCovariance(data, stats.IsotropicCovariance(6))
	require.NoError(t, err)

	assert.Equal(t, stats.Isotropic, cov.Kind())
	assert.Equal(t, 6.0, cov.Sigma())
	assert.False(t, cov.Estimated())
	assert.Equal(t, 2, cov.Dim())
	assert.InDelta(t, 36.0, cov.ScaleFactor(2, 2), 1e-12)
}

func TestResolveCovariance_IsotropicEstimated(t *testing.T) {
	data, _ := fourRowData()
	cov, err := ResolveCovariance(data, stats.CovarianceSpec{})
	require.NoError(t, err)

	// Column 0 deviations are -6, -4, 4, 6; column 1 is constant.
	assert.True(t, cov.Estimated())
	assert.InDelta(t, math.Sqrt(104.0/6.0), cov.Sigma(), 1e-12)
	assert.InDelta(t, 104.0/6.0, cov.ScaleFactor(2, 2), 1e-12)
}

func TestResolveCovariance_IsotropicErrors(t *testing.T) {
	one := mat.NewDense(1, 2, []float64{1, 2})
	_, err := ResolveCovariance(one, stats.CovarianceSpec{})
	assert.ErrorIs(t, err, core.ErrInvalidCovariance)

	same := mat.NewDense(3, 2, []float64{1, 1, 1, 1, 1, 1})
	_, err = ResolveCovariance(same, stats.CovarianceSpec{})
	assert.ErrorIs(t, err, core.ErrInvalidCovariance)

	data, _ := fourRowData()
	_, err = ResolveCovariance(data, stats.IsotropicCovariance(math.Inf(1)))
	assert.ErrorIs(t, err, core.ErrInvalidCovariance)
}

func TestResolveCovariance_RejectsInvalidSigma(t *testing.T) {
	data, labels := fourRowData()
	pair := stats.ClusterPair{K1: 0, K2: 1}

	for _, sigma := range []float64{-3, math.Inf(-1), math.NaN()} {
		_, err := ResolveCovariance(data, stats.IsotropicCovariance(sigma))
		assert.ErrorIs(t, err, core.ErrInvalidCovariance, "sigma %v", sigma)

		_, err = Wald(data, labels, pair, stats.IsotropicCovariance(sigma))
		assert.ErrorIs(t, err, core.ErrInvalidCovariance, "sigma %v", sigma)
	}

	cov, err := ResolveCovariance(data, stats.IsotropicCovariance(0))
	require.NoError(t, err)
	assert.True(t, cov.Estimated())
}

func TestResolveCovariance_GeneralSupplied(t *testing.T) {
	data, _ := fourRowData()

	tests := []struct {
		name      string
		precision mat.Matrix
		wantErr   bool
	}{
		{"identity", mat.NewDiagDense(2, []float64{1, 1}), false},
		{"singular psd", mat.NewDense(2, 2, []float64{1, 1, 1, 1}), false},
		{"negative eigen within tolerance", mat.NewDense(2, 2, []float64{1, 1, 1, 1 - 1e-12}), false},
		{"indefinite", mat.NewDense(2, 2, []float64{1, 2, 2, 1}), true},
		{"asymmetric", mat.NewDense(2, 2, []float64{1, 0.5, 0.4, 1}), true},
		{"wrong shape", mat.NewDiagDense(3, []float64{1, 1, 1}), true},
		{"non-finite", mat.NewDense(2, 2, []float64{1, math.NaN(), math.NaN(), 1}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cov, err := ResolveCovariance(data, stats.GeneralCovariance(tt.precision))
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidCovariance)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, stats.General, cov.Kind())
			assert.False(t, cov.Estimated())
			assert.InDelta(t, 1.0, cov.ScaleFactor(2, 2), 1e-12)
		})
	}
}

func TestResolveCovariance_GeneralEstimated(t *testing.T) {
	data := testkit.TenPointData()
	cov, err := ResolveCovariance(data, stats.GeneralCovariance(nil))
	require.NoError(t, err)
	require.True(t, cov.Estimated())

	sample := mat.NewSymDense(2, nil)
	gstat.CovarianceMatrix(sample, data, nil)

	var product mat.Dense
	product.Mul(cov.precision, sample)
	assert.True(t, mat.EqualApprox(&product, mat.NewDiagDense(2, []float64{1, 1}), 1e-9))
}

func TestResolveCovariance_GeneralEstimatedErrors(t *testing.T) {
	// Two rows cannot support a 2x2 covariance estimate.
	short := mat.NewDense(2, 2, []float64{0, 0, 1, 1})
	_, err := ResolveCovariance(short, stats.GeneralCovariance(nil))
	assert.ErrorIs(t, err, core.ErrInvalidCovariance)

	// A constant column gives a singular sample covariance.
	constant := mat.NewDense(4, 2, []float64{0, 5, 1, 5, 2, 5, 3, 5})
	_, err = ResolveCovariance(constant, stats.GeneralCovariance(nil))
	assert.ErrorIs(t, err, core.ErrInvalidCovariance)
}

func TestCovariance_Norm(t *testing.T) {
	data, _ := fourRowData()

	iso, err := ResolveCovariance(data, stats.IsotropicCovariance(1))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, iso.Norm([]float64{3, -4}), 1e-12)

	ones, err := ResolveCovariance(data, stats.GeneralCovariance(mat.NewDense(2, 2, []float64{1, 1, 1, 1})))
	require.NoError(t, err)
	// (3 - 1)² under the all-ones precision.
	assert.InDelta(t, 2.0, ones.Norm([]float64{3, -1}), 1e-12)
	assert.Equal(t, 0.0, ones.Norm([]float64{1, -1}))

	identity, err := ResolveCovariance(data, stats.GeneralCovariance(mat.NewDiagDense(2, []float64{1, 1})))
	require.NoError(t, err)
	assert.InDelta(t, iso.Norm([]float64{3, -4}), identity.Norm([]float64{3, -4}), 1e-12)
}

func TestIgnoredCompanion(t *testing.T) {
	prec := mat.NewDiagDense(2, []float64{1, 1})

	assert.Equal(t, "", IgnoredCompanion(stats.CovarianceSpec{}))
	assert.Equal(t, "", IgnoredCompanion(stats.GeneralCovariance(prec)))
	assert.Equal(t, "precision", IgnoredCompanion(stats.CovarianceSpec{Kind: stats.Isotropic, Sigma: 2, Precision: prec}))
	assert.Equal(t, "sigma", IgnoredCompanion(stats.CovarianceSpec{Kind: stats.General, Sigma: 2}))
}

func TestResolveCovariance_CompanionHasNoEffect(t *testing.T) {
	data, _ := fourRowData()

	plain, err := ResolveCovariance(data, stats.IsotropicCovariance(3))
	require.NoError(t, err)
	withPrec, err := ResolveCovariance(data, stats.CovarianceSpec{
		Kind:      stats.Isotropic,
		Sigma:     3,
		Precision: mat.NewDense(2, 2, []float64{1, 2, 2, 1}),
	})
	require.NoError(t, err)
	assert.Equal(t, plain.ScaleFactor(2, 2), withPrec.ScaleFactor(2, 2))
}
