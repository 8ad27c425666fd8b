package selective

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ChiSquarePValue returns P(X >= x) for X ~ χ²(df). It uses the survival
// function directly rather than 1-CDF so tiny tails keep their precision.
func ChiSquarePValue(x float64, df int) float64 {
	if df <= 0 {
		return 1.0
	}
	if x <= 0 {
		return 1.0
	}
	return distuv.ChiSquared{K: float64(df)}.Survival(x)
}

// scaledChiLogDensity is the log density at phi of scale·χ_df, where χ_df is
// the square root of a χ²(df) variable. Zero density (phi <= 0) maps to -Inf.
func scaledChiLogDensity(phi, scale float64, df int) float64 {
	if phi <= 0 || scale <= 0 {
		return math.Inf(-1)
	}
	y := phi / scale
	return distuv.ChiSquared{K: float64(df)}.LogProb(y*y) + math.Log(2*y) - math.Log(scale)
}
