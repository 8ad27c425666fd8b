package selective

import (
	"context"
	"fmt"

	"clusterpval/domain/stats"
	"clusterpval/internal"
	"clusterpval/ports"

	"gonum.org/v1/gonum/mat"
)

// Oracle decides the selection event: does reclustering perturbed data
// reproduce the original k1 and k2 row sets exactly?
type Oracle struct {
	clusterer ports.ClustererPort
	k1Rows    []int
	k2Rows    []int
	n         int
	logger    *internal.Logger
}

// NewOracle captures the original row sets of pair under labels.
func NewOracle(clusterer ports.ClustererPort, labels []int, pair stats.ClusterPair, logger *internal.Logger) (*Oracle, error) {
	k1Rows, k2Rows, err := partitionRows(labels, pair)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Oracle{
		clusterer: clusterer,
		k1Rows:    k1Rows,
		k2Rows:    k2Rows,
		n:         len(labels),
		logger:    logger,
	}, nil
}

// PreservesSelection reruns the clusterer on perturbed and reports whether
// both original clusters come back with identical membership. Clusterer
// failures, including panics, count as "not preserved".
func (o *Oracle) PreservesSelection(ctx context.Context, perturbed mat.Matrix) (preserved bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Debug("[Oracle] clusterer panicked: %v", r)
			preserved = false
		}
	}()

	labels, err := o.clusterer.Cluster(ctx, perturbed)
	if err != nil {
		o.logger.Trace("[Oracle] clusterer failed: %v", err)
		return false
	}
	if len(labels) != o.n {
		o.logger.Debug("[Oracle] clusterer returned %d labels for %d rows", len(labels), o.n)
		return false
	}
	return sameMembership(labels, o.k1Rows) && sameMembership(labels, o.k2Rows)
}

// PreservesSelection is the one-shot form of Oracle.PreservesSelection.
func PreservesSelection(ctx context.Context, perturbed mat.Matrix, clusterer ports.ClustererPort, pair stats.ClusterPair, labels []int) (bool, error) {
	if clusterer == nil {
		return false, fmt.Errorf("clusterer is nil")
	}
	o, err := NewOracle(clusterer, labels, pair, nil)
	if err != nil {
		return false, err
	}
	return o.PreservesSelection(ctx, perturbed), nil
}

// sameMembership reports whether the rows share one new label and no other
// row carries it.
func sameMembership(labels []int, rows []int) bool {
	target := labels[rows[0]]
	for _, i := range rows[1:] {
		if labels[i] != target {
			return false
		}
	}
	count := 0
	for _, l := range labels {
		if l == target {
			count++
		}
	}
	return count == len(rows)
}
