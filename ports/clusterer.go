package ports

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// ClustererPort is the external clustering collaborator. Implementations carry
// their own configuration (method, number of clusters, linkage, ...) so the same
// value can be invoked once on the observed data and once per simulated draw.
//
// The returned slice holds one integer label per row of data. Labels need not be
// contiguous; only the row-index sets they induce are inspected.
type ClustererPort interface {
	Cluster(ctx context.Context, data mat.Matrix) ([]int, error)
}

// ClustererFunc adapts an ordinary function to ClustererPort.
type ClustererFunc func(ctx context.Context, data mat.Matrix) ([]int, error)

// Cluster calls f(ctx, data).
func (f ClustererFunc) Cluster(ctx context.Context, data mat.Matrix) ([]int, error) {
	return f(ctx, data)
}
