package clustering

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrNotConverged is returned when Lloyd iterations hit MaxIter before the
// assignment stabilises.
var ErrNotConverged = errors.New("k-means did not converge")

const defaultMaxIter = 300

// KMeans is Lloyd's algorithm with k-means++ seeding. The seed is fixed per
// instance so reruns on the same data reproduce the same partition.
type KMeans struct {
	K       int
	MaxIter int
	Seed    uint64
}

// NewKMeans creates a k-means clusterer
func NewKMeans(k, maxIter int, seed uint64) (*KMeans, error) {
	if k < 1 {
		return nil, fmt.Errorf("number of clusters must be at least 1, got %d", k)
	}
	if maxIter <= 0 {
		maxIter = defaultMaxIter
	}
	return &KMeans{K: k, MaxIter: maxIter, Seed: seed}, nil
}

// Cluster assigns every row to its nearest centroid, labels numbered in order
// of first appearance.
func (km *KMeans) Cluster(ctx context.Context, data mat.Matrix) ([]int, error) {
	n, q := data.Dims()
	if km.K > n {
		return nil, fmt.Errorf("cannot form %d clusters from %d rows", km.K, n)
	}
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(make([]float64, q), i, data)
	}

	rng := rand.New(rand.NewPCG(km.Seed, uint64(km.K)))
	centroids := seedPlusPlus(rows, km.K, rng)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < km.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		changed := false
		for i, row := range rows {
			c := nearest(row, centroids)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			return firstAppearanceLabels(n, func(i int) int { return assign[i] }), nil
		}

		counts := make([]int, km.K)
		sums := make([][]float64, km.K)
		for c := range sums {
			sums[c] = make([]float64, q)
		}
		for i, row := range rows {
			floats.Add(sums[assign[i]], row)
			counts[assign[i]]++
		}
		for c := range centroids {
			// An emptied cluster keeps its previous centroid.
			if counts[c] > 0 {
				floats.ScaleTo(centroids[c], 1/float64(counts[c]), sums[c])
			}
		}
	}
	return nil, fmt.Errorf("%w after %d iterations", ErrNotConverged, km.MaxIter)
}

func seedPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := rows[rng.IntN(len(rows))]
	centroids = append(centroids, append([]float64(nil), first...))

	d2 := make([]float64, len(rows))
	for len(centroids) < k {
		var total float64
		for i, row := range rows {
			best := math.Inf(1)
			for _, c := range centroids {
				best = math.Min(best, sqDist(row, c))
			}
			d2[i] = best
			total += best
		}

		next := len(rows) - 1
		if total > 0 {
			target := rng.Float64() * total
			for i, w := range d2 {
				target -= w
				if target <= 0 {
					next = i
					break
				}
			}
		} else {
			next = rng.IntN(len(rows))
		}
		centroids = append(centroids, append([]float64(nil), rows[next]...))
	}
	return centroids
}

func nearest(row []float64, centroids [][]float64) int {
	best, idx := math.Inf(1), 0
	for c, centroid := range centroids {
		if d := sqDist(row, centroid); d < best {
			best, idx = d, c
		}
	}
	return idx
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
