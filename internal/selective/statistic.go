package selective

import (
	"fmt"
	"math"

	"clusterpval/domain/core"
	"clusterpval/domain/stats"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Contrast holds the observed test statistic and the geometry used to
// perturb the data along the k1-vs-k2 mean difference.
type Contrast struct {
	Statistic float64

	// Direction is the Euclidean unit vector along the mean difference; nil
	// when the two cluster means coincide.
	Direction []float64

	// Diff is mean(k1 rows) - mean(k2 rows).
	Diff []float64

	K1Rows []int
	K2Rows []int
}

// N1 is the size of cluster k1.
func (c *Contrast) N1() int { return len(c.K1Rows) }

// N2 is the size of cluster k2.
func (c *Contrast) N2() int { return len(c.K2Rows) }

// ComputeContrast computes the statistic and perturbation direction for pair
// under labels. cov supplies the weighting of the mean difference.
func ComputeContrast(data mat.Matrix, labels []int, pair stats.ClusterPair, cov *Covariance) (*Contrast, error) {
	if err := validateData(data, labels); err != nil {
		return nil, err
	}
	k1Rows, k2Rows, err := partitionRows(labels, pair)
	if err != nil {
		return nil, err
	}

	_, q := data.Dims()
	diff := make([]float64, q)
	floats.Add(diff, rowMean(data, k1Rows))
	floats.Sub(diff, rowMean(data, k2Rows))

	c := &Contrast{
		Statistic: cov.Norm(diff),
		Diff:      diff,
		K1Rows:    k1Rows,
		K2Rows:    k2Rows,
	}
	if norm := floats.Norm(diff, 2); norm > 0 {
		c.Direction = make([]float64, q)
		floats.ScaleTo(c.Direction, 1/norm, diff)
	}
	return c, nil
}

// RowCoefficients returns the per-row contrast: n2/(n1+n2) on k1 rows,
// -n1/(n1+n2) on k2 rows and 0 elsewhere. Moving each row by its coefficient
// times a feature-space vector v shifts the mean difference by exactly v.
func (c *Contrast) RowCoefficients(n int) []float64 {
	coef := make([]float64, n)
	total := float64(c.N1() + c.N2())
	for _, i := range c.K1Rows {
		coef[i] = float64(c.N2()) / total
	}
	for _, i := range c.K2Rows {
		coef[i] = -float64(c.N1()) / total
	}
	return coef
}

// Perturb returns a fresh copy of data displaced along the contrast so that
// the statistic recomputed on the copy equals phi. Rows outside the pair and
// the component orthogonal to the contrast are left unchanged.
func (c *Contrast) Perturb(data mat.Matrix, phi float64) (*mat.Dense, error) {
	if c.Statistic == 0 {
		return nil, core.ErrDegenerateStatistic
	}
	out := mat.DenseCopyOf(data)
	n, _ := out.Dims()

	step := (phi - c.Statistic) / c.Statistic
	for i, coef := range c.RowCoefficients(n) {
		if coef == 0 {
			continue
		}
		floats.AddScaled(out.RawRowView(i), step*coef, c.Diff)
	}
	return out, nil
}

func validateData(data mat.Matrix, labels []int) error {
	if data == nil {
		return core.NewInvalidInputError("data", "is nil")
	}
	n, q := data.Dims()
	if n == 0 || q == 0 {
		return core.NewInvalidInputError("data", "is empty")
	}
	if len(labels) != n {
		return core.NewInvalidInputError("labels", fmt.Sprintf("has %d entries for %d rows", len(labels), n))
	}
	for i := 0; i < n; i++ {
		for j := 0; j < q; j++ {
			if v := data.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return core.NewInvalidInputError("data", fmt.Sprintf("non-finite value at row %d, column %d", i, j))
			}
		}
	}
	return nil
}

func partitionRows(labels []int, pair stats.ClusterPair) ([]int, []int, error) {
	if err := pair.Validate(); err != nil {
		return nil, nil, err
	}
	var k1Rows, k2Rows []int
	for i, l := range labels {
		switch l {
		case pair.K1:
			k1Rows = append(k1Rows, i)
		case pair.K2:
			k2Rows = append(k2Rows, i)
		}
	}
	if len(k1Rows) == 0 {
		return nil, nil, core.NewInvalidClusterError(pair.K1, "labels no rows")
	}
	if len(k2Rows) == 0 {
		return nil, nil, core.NewInvalidClusterError(pair.K2, "labels no rows")
	}
	return k1Rows, k2Rows, nil
}

func rowMean(data mat.Matrix, rows []int) []float64 {
	_, q := data.Dims()
	mean := make([]float64, q)
	row := make([]float64, q)
	for _, i := range rows {
		mat.Row(row, i, data)
		floats.Add(mean, row)
	}
	floats.Scale(1/float64(len(rows)), mean)
	return mean
}
