package clustering

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Linkage is the inter-cluster dissimilarity used by agglomerative clustering.
type Linkage string

const (
	LinkageSingle   Linkage = "single"
	LinkageComplete Linkage = "complete"
	LinkageAverage  Linkage = "average"
	LinkageWard     Linkage = "ward"
)

// ParseLinkage accepts the linkage names case-insensitively.
func ParseLinkage(s string) (Linkage, error) {
	switch l := Linkage(strings.ToLower(strings.TrimSpace(s))); l {
	case LinkageSingle, LinkageComplete, LinkageAverage, LinkageWard:
		return l, nil
	case "":
		return LinkageAverage, nil
	default:
		return "", fmt.Errorf("unknown linkage %q", s)
	}
}

// Hierarchical is agglomerative clustering on Euclidean distances, cut when K
// clusters remain. Labels are numbered 0..K-1 in order of each cluster's
// first row, so identical partitions always get identical labels.
type Hierarchical struct {
	K       int
	Linkage Linkage
}

// NewHierarchical creates a hierarchical clusterer
func NewHierarchical(k int, linkage Linkage) (*Hierarchical, error) {
	if k < 1 {
		return nil, fmt.Errorf("number of clusters must be at least 1, got %d", k)
	}
	if _, err := ParseLinkage(string(linkage)); err != nil {
		return nil, err
	}
	if linkage == "" {
		linkage = LinkageAverage
	}
	return &Hierarchical{K: k, Linkage: linkage}, nil
}

// Cluster merges the closest pair of clusters until K remain. Distances are
// updated with the Lance-Williams recurrence; Ward works on squared
// distances. Ties go to the lowest (i, j) pair.
func (h *Hierarchical) Cluster(ctx context.Context, data mat.Matrix) ([]int, error) {
	n, _ := data.Dims()
	if h.K > n {
		return nil, fmt.Errorf("cannot form %d clusters from %d rows", h.K, n)
	}

	dist := pairwiseDistances(data, h.Linkage == LinkageWard)
	size := make([]int, n)
	parent := make([]int, n)
	active := make([]bool, n)
	for i := range parent {
		size[i] = 1
		parent[i] = i
		active[i] = true
	}

	for remaining := n; remaining > h.K; remaining-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && dist[i][j] < best {
					best, bi, bj = dist[i][j], i, j
				}
			}
		}
		if bi < 0 {
			return nil, fmt.Errorf("no finite distance left to merge")
		}

		for m := 0; m < n; m++ {
			if !active[m] || m == bi || m == bj {
				continue
			}
			d := h.update(dist[bi][m], dist[bj][m], dist[bi][bj], size[bi], size[bj], size[m])
			dist[bi][m], dist[m][bi] = d, d
		}
		size[bi] += size[bj]
		active[bj] = false
		parent[bj] = bi
	}

	return firstAppearanceLabels(n, func(i int) int { return find(parent, i) }), nil
}

func (h *Hierarchical) update(dim, djm, dij float64, ni, nj, nm int) float64 {
	switch h.Linkage {
	case LinkageSingle:
		return math.Min(dim, djm)
	case LinkageComplete:
		return math.Max(dim, djm)
	case LinkageWard:
		fi, fj, fm := float64(ni), float64(nj), float64(nm)
		return ((fi+fm)*dim + (fj+fm)*djm - fm*dij) / (fi + fj + fm)
	default:
		fi, fj := float64(ni), float64(nj)
		return (fi*dim + fj*djm) / (fi + fj)
	}
}

// pairwiseDistances returns the full symmetric Euclidean (or squared
// Euclidean) distance matrix between rows.
func pairwiseDistances(data mat.Matrix, squared bool) [][]float64 {
	n, q := data.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(make([]float64, q), i, data)
	}
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(rows[i], rows[j], 2)
			if squared {
				d *= d
			}
			dist[i][j], dist[j][i] = d, d
		}
	}
	return dist
}

func find(parent []int, i int) int {
	for parent[i] != i {
		parent[i] = parent[parent[i]]
		i = parent[i]
	}
	return i
}

// firstAppearanceLabels renumbers cluster keys 0,1,2,... in row order.
func firstAppearanceLabels(n int, key func(int) int) []int {
	labels := make([]int, n)
	seen := make(map[int]int)
	for i := 0; i < n; i++ {
		k := key(i)
		l, ok := seen[k]
		if !ok {
			l = len(seen)
			seen[k] = l
		}
		labels[i] = l
	}
	return labels
}
