package testkit

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"clusterpval/ports"

	"gonum.org/v1/gonum/mat"
)

// TenPointData is the two-group smoke-test dataset: rows 0-4 sit near the
// origin and rows 5-9 near (73, 75).
func TenPointData() *mat.Dense {
	return mat.NewDense(10, 2, []float64{
		5, 3,
		10, 15,
		15, 12,
		24, 10,
		30, 30,
		85, 70,
		71, 80,
		60, 78,
		70, 55,
		80, 91,
	})
}

// TenPointLabels is the average-linkage two-cluster labeling of TenPointData.
func TenPointLabels() []int {
	return []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}
}

// FixedClusterer ignores its input and always returns the same labels, so
// every rerun reproduces the original clustering.
func FixedClusterer(labels []int) ports.ClustererPort {
	out := append([]int(nil), labels...)
	return ports.ClustererFunc(func(ctx context.Context, data mat.Matrix) ([]int, error) {
		return append([]int(nil), out...), nil
	})
}

// FailingClusterer always returns err.
func FailingClusterer(err error) ports.ClustererPort {
	return ports.ClustererFunc(func(ctx context.Context, data mat.Matrix) ([]int, error) {
		return nil, err
	})
}

// PanickingClusterer panics on every call.
func PanickingClusterer() ports.ClustererPort {
	return ports.ClustererFunc(func(ctx context.Context, data mat.Matrix) ([]int, error) {
		panic("clusterer exploded")
	})
}

// ReferenceDataPath returns the path of a file under the repository testdata
// directory and whether it exists.
func ReferenceDataPath(name string) (string, bool) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", false
	}
	path := filepath.Join(filepath.Dir(file), "..", "..", "testdata", name)
	if _, err := os.Stat(path); err != nil {
		return path, false
	}
	return path, true
}
