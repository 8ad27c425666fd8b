package selective

import (
	"math"

	"clusterpval/domain/stats"

	"gonum.org/v1/gonum/mat"
)

// Wald runs the classical test of equal means for pair, ignoring that the
// clusters were chosen from the same data. Under that assumption
// statistic²/scaleFactor ~ χ²(q), and the p-value is its upper tail.
//
// It is a pure function of its inputs. Because it does not condition on
// selection it is anti-conservative when the pair came from clustering.
func Wald(data mat.Matrix, labels []int, pair stats.ClusterPair, spec stats.CovarianceSpec) (*stats.WaldResult, error) {
	if err := validateData(data, labels); err != nil {
		return nil, err
	}
	cov, err := ResolveCovariance(data, spec)
	if err != nil {
		return nil, err
	}
	contrast, err := ComputeContrast(data, labels, pair, cov)
	if err != nil {
		return nil, err
	}

	scaled := contrast.Statistic * contrast.Statistic / cov.ScaleFactor(contrast.N1(), contrast.N2())
	p := ChiSquarePValue(scaled, cov.Dim())
	// Keep the documented (0, 1] range when the tail underflows.
	p = math.Max(p, math.SmallestNonzeroFloat64)

	return &stats.WaldResult{
		Statistic: contrast.Statistic,
		PValue:    math.Min(p, 1),
	}, nil
}
