package selective

import (
	"math"
	"testing"

	"clusterpval/domain/core"
	"clusterpval/domain/stats"
	"clusterpval/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"pgregory.net/rapid"
)

func isotropic(t testing.TB, data mat.Matrix, sigma float64) *Covariance {
	t.Helper()
	cov, err := ResolveCovariance(data, stats.IsotropicCovariance(sigma))
	require.NoError(t, err)
	return cov
}

func TestComputeContrast_TenPoint(t *testing.T) {
	data := testkit.TenPointData()
	c, err := ComputeContrast(data, testkit.TenPointLabels(), stats.ClusterPair{K1: 0, K2: 1}, isotropic(t, data, 1))
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{16.8 - 73.2, 14 - 74.8}, c.Diff, 1e-12)
	assert.InDelta(t, math.Hypot(56.4, 60.8), c.Statistic, 1e-9)
	assert.InDelta(t, 1.0, floats.Norm(c.Direction, 2), 1e-12)
	assert.Equal(t, 5, c.N1())
	assert.Equal(t, 5, c.N2())
}

func TestComputeContrast_PairOrderFlipsDirection(t *testing.T) {
	data, labels := fourRowData()
	cov := isotropic(t, data, 1)

	forward, err := ComputeContrast(data, labels, stats.ClusterPair{K1: 0, K2: 1}, cov)
	require.NoError(t, err)
	backward, err := ComputeContrast(data, labels, stats.ClusterPair{K1: 1, K2: 0}, cov)
	require.NoError(t, err)

	assert.Equal(t, forward.Statistic, backward.Statistic)
	assert.InDeltaSlice(t, []float64{-1, 0}, forward.Direction, 1e-12)
	assert.InDeltaSlice(t, []float64{1, 0}, backward.Direction, 1e-12)
}

func TestComputeContrast_Errors(t *testing.T) {
	data, labels := fourRowData()
	cov := isotropic(t, data, 1)

	_, err := ComputeContrast(data, labels, stats.ClusterPair{K1: 0, K2: 0}, cov)
	assert.ErrorIs(t, err, core.ErrInvalidCluster)

	_, err = ComputeContrast(data, labels, stats.ClusterPair{K1: 0, K2: 7}, cov)
	assert.ErrorIs(t, err, core.ErrInvalidCluster)

	_, err = ComputeContrast(data, labels[:3], stats.ClusterPair{K1: 0, K2: 1}, cov)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	bad := mat.DenseCopyOf(data)
	bad.Set(1, 1, math.Inf(1))
	_, err = ComputeContrast(bad, labels, stats.ClusterPair{K1: 0, K2: 1}, cov)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestComputeContrast_CoincidentMeans(t *testing.T) {
	data := mat.NewDense(4, 2, []float64{0, 0, 2, 0, 0, 0, 2, 0})
	c, err := ComputeContrast(data, []int{0, 0, 1, 1}, stats.ClusterPair{K1: 0, K2: 1}, isotropic(t, data, 1))
	require.NoError(t, err)

	assert.Equal(t, 0.0, c.Statistic)
	assert.Nil(t, c.Direction)

	_, err = c.Perturb(data, 1)
	assert.ErrorIs(t, err, core.ErrDegenerateStatistic)
}

func TestRowCoefficients(t *testing.T) {
	data := testkit.TenPointData()
	labels := []int{0, 0, 0, 1, 1, 2, 2, 2, 2, 2}
	c, err := ComputeContrast(data, labels, stats.ClusterPair{K1: 0, K2: 2}, isotropic(t, data, 1))
	require.NoError(t, err)

	coef := c.RowCoefficients(10)
	assert.InDeltaSlice(t, []float64{5.0 / 8, 5.0 / 8, 5.0 / 8, 0, 0, -3.0 / 8, -3.0 / 8, -3.0 / 8, -3.0 / 8, -3.0 / 8}, coef, 1e-12)
	assert.InDelta(t, 0.0, floats.Sum(coef), 1e-12)
}

func TestPerturb_ReachesTarget(t *testing.T) {
	data := testkit.TenPointData()
	labels := []int{0, 0, 0, 1, 1, 2, 2, 2, 2, 2}
	pair := stats.ClusterPair{K1: 0, K2: 2}
	cov := isotropic(t, data, 1)

	c, err := ComputeContrast(data, labels, pair, cov)
	require.NoError(t, err)
	original := mat.DenseCopyOf(data)

	for _, phi := range []float64{0.5, c.Statistic, 3 * c.Statistic} {
		perturbed, err := c.Perturb(data, phi)
		require.NoError(t, err)

		again, err := ComputeContrast(perturbed, labels, pair, cov)
		require.NoError(t, err)
		assert.InDelta(t, phi, again.Statistic, 1e-9)

		// Only the mean difference moves: it stays parallel to the original.
		want := make([]float64, 2)
		floats.ScaleTo(want, phi/c.Statistic, c.Diff)
		assert.InDeltaSlice(t, want, again.Diff, 1e-9)

		// Rows outside the pair are untouched.
		for _, i := range []int{3, 4} {
			assert.Equal(t, mat.Row(nil, i, data), mat.Row(nil, i, perturbed))
		}
	}
	assert.True(t, mat.Equal(original, data), "Perturb must not modify its input")
}

func TestPerturb_PreservesWithinClusterSpread(t *testing.T) {
	data, labels := fourRowData()
	pair := stats.ClusterPair{K1: 0, K2: 1}
	c, err := ComputeContrast(data, labels, pair, isotropic(t, data, 1))
	require.NoError(t, err)

	perturbed, err := c.Perturb(data, 4)
	require.NoError(t, err)

	// Rows in the same cluster move together.
	assert.InDelta(t, 2.0, perturbed.At(1, 0)-perturbed.At(0, 0), 1e-12)
	assert.InDelta(t, 2.0, perturbed.At(3, 0)-perturbed.At(2, 0), 1e-12)
	// The overall mean of the pair is fixed.
	assert.InDelta(t, 6.0, mat.Sum(perturbed.ColView(0))/4, 1e-12)
}

func TestPerturb_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.Float64Range(-100, 100), 12, 12).Draw(t, "values")
		data := mat.NewDense(6, 2, values)
		// Separate the second cluster so the statistic is never zero.
		for i := 3; i < 6; i++ {
			data.Set(i, 0, data.At(i, 0)+1000)
		}
		labels := []int{0, 0, 0, 1, 1, 1}
		pair := stats.ClusterPair{K1: 0, K2: 1}

		spec := stats.IsotropicCovariance(1)
		if rapid.Bool().Draw(t, "general") {
			spec = stats.GeneralCovariance(mat.NewDense(2, 2, []float64{2, 0.5, 0.5, 1}))
		}
		cov, err := ResolveCovariance(data, spec)
		require.NoError(t, err)

		c, err := ComputeContrast(data, labels, pair, cov)
		require.NoError(t, err)

		phi := rapid.Float64Range(0.01, 5000).Draw(t, "phi")
		perturbed, err := c.Perturb(data, phi)
		require.NoError(t, err)

		again, err := ComputeContrast(perturbed, labels, pair, cov)
		require.NoError(t, err)
		require.InDelta(t, phi, again.Statistic, 1e-8*math.Max(1, phi))
	})
}
