package profiling

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
)

// DefaultScaleRatioLimit is the largest-to-smallest column standard deviation
// ratio above which a shared isotropic sigma is a poor description of the data.
const DefaultScaleRatioLimit = 4.0

// ColumnProfile summarises one feature column
type ColumnProfile struct {
	Name     string  `json:"name"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Q25      float64 `json:"q25"`
	Median   float64 `json:"median"`
	Q75      float64 `json:"q75"`
	Max      float64 `json:"max"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
	Outliers int     `json:"outliers"`
}

// DatasetProfile is the per-column summary of a data matrix.
type DatasetProfile struct {
	Rows    int             `json:"rows"`
	Cols    int             `json:"cols"`
	Columns []ColumnProfile `json:"columns"`

	// ScaleRatio is max/min standard deviation over non-constant columns.
	ScaleRatio      float64  `json:"scale_ratio"`
	ConstantColumns []string `json:"constant_columns,omitempty"`
}

// ProfileDataset computes column summaries. header may be nil or shorter than
// the column count; missing names become "x<j>".
func ProfileDataset(data mat.Matrix, header []string) (*DatasetProfile, error) {
	n, q := data.Dims()
	if n < 2 {
		return nil, fmt.Errorf("need at least two rows to profile, got %d", n)
	}

	profile := &DatasetProfile{Rows: n, Cols: q, Columns: make([]ColumnProfile, q)}
	minSD, maxSD := math.Inf(1), 0.0
	col := make([]float64, n)
	for j := 0; j < q; j++ {
		mat.Col(col, j, data)
		name := fmt.Sprintf("x%d", j)
		if j < len(header) && header[j] != "" {
			name = header[j]
		}
		cp, err := profileColumn(name, col)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		profile.Columns[j] = cp
		if cp.StdDev == 0 {
			profile.ConstantColumns = append(profile.ConstantColumns, name)
			continue
		}
		minSD = math.Min(minSD, cp.StdDev)
		maxSD = math.Max(maxSD, cp.StdDev)
	}

	profile.ScaleRatio = 1
	if maxSD > 0 {
		profile.ScaleRatio = maxSD / minSD
	}
	return profile, nil
}

// IsotropyWarning describes why a shared sigma looks inappropriate, or returns
// "" when every column varies and their scales are within limit of each other.
func (p *DatasetProfile) IsotropyWarning(limit float64) string {
	if p.Cols < 2 {
		return ""
	}
	if len(p.ConstantColumns) > 0 {
		return fmt.Sprintf("constant columns %v carry no noise; an isotropic sigma overstates their variance", p.ConstantColumns)
	}
	if p.ScaleRatio <= limit {
		return ""
	}
	return fmt.Sprintf("column standard deviations differ by a factor of %.3g (limit %.3g); consider a general covariance or rescaling", p.ScaleRatio, limit)
}

func profileColumn(name string, data []float64) (ColumnProfile, error) {
	cp := ColumnProfile{Name: name}

	var err error
	if cp.Mean, err = stats.Mean(data); err != nil {
		return cp, err
	}
	if cp.StdDev, err = stats.StandardDeviationSample(data); err != nil {
		return cp, err
	}
	if cp.Min, err = stats.Min(data); err != nil {
		return cp, err
	}
	if cp.Max, err = stats.Max(data); err != nil {
		return cp, err
	}
	if cp.Median, err = stats.Median(data); err != nil {
		return cp, err
	}
	// Tukey hinges stay defined down to two rows, unlike interpolated percentiles.
	quartiles, err := stats.Quartile(data)
	if err != nil {
		return cp, err
	}
	cp.Q25, cp.Q75 = quartiles.Q1, quartiles.Q3

	if cp.StdDev > 0 {
		cp.Skewness = calculateSkewness(data, cp.Mean, cp.StdDev)
		cp.Kurtosis = calculateKurtosis(data, cp.Mean, cp.StdDev)
	}
	cp.Outliers = countOutliers(data, cp.Q25, cp.Q75)
	return cp, nil
}

// calculateSkewness computes sample skewness using the adjusted Fisher-Pearson coefficient
func calculateSkewness(data []float64, mean, stdDev float64) float64 {
	if len(data) < 3 {
		return 0
	}

	n := float64(len(data))
	sumCubed := 0.0
	for _, x := range data {
		d := (x - mean) / stdDev
		sumCubed += d * d * d
	}

	return sumCubed / n * math.Sqrt(n*(n-1)) / (n - 2)
}

// calculateKurtosis computes sample kurtosis (3 for a normal sample)
func calculateKurtosis(data []float64, mean, stdDev float64) float64 {
	if len(data) < 4 {
		return 0
	}

	n := float64(len(data))
	sumFourth := 0.0
	for _, x := range data {
		d := (x - mean) / stdDev
		sumFourth += d * d * d * d
	}

	excess := sumFourth/n - 3
	excess = excess*(n-1)/((n-2)*(n-3)) + 6/(n+1)
	return excess + 3
}

// countOutliers counts values outside the 1.5·IQR fences
func countOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lower := q25 - 1.5*iqr
	upper := q75 + 1.5*iqr

	count := 0
	for _, x := range data {
		if x < lower || x > upper {
			count++
		}
	}
	return count
}
