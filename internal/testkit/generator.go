package testkit

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// BlobGeneratorConfig configures the Gaussian blob generator
type BlobGeneratorConfig struct {
	Centers    [][]float64 `json:"centers"`     // One center per true group
	PerCluster int         `json:"per_cluster"` // Rows drawn around each center
	Sigma      float64     `json:"sigma"`       // Isotropic noise standard deviation
	Seed       uint64      `json:"seed"`
}

// DefaultBlobConfig returns two well separated groups in two dimensions
func DefaultBlobConfig() BlobGeneratorConfig {
	return BlobGeneratorConfig{
		Centers:    [][]float64{{0, 0}, {8, 8}},
		PerCluster: 15,
		Sigma:      1,
		Seed:       42,
	}
}

// NullBlobConfig returns a single group: any two clusters found in it have
// equal population means.
func NullBlobConfig(n int, seed uint64) BlobGeneratorConfig {
	return BlobGeneratorConfig{
		Centers:    [][]float64{{0, 0}},
		PerCluster: n,
		Sigma:      1,
		Seed:       seed,
	}
}

// BlobGenerator draws rows around fixed centers with isotropic Gaussian noise
type BlobGenerator struct {
	config BlobGeneratorConfig
	noise  distuv.Normal
}

// NewBlobGenerator creates a new blob generator
func NewBlobGenerator(config BlobGeneratorConfig) *BlobGenerator {
	return &BlobGenerator{
		config: config,
		noise: distuv.Normal{
			Mu:    0,
			Sigma: config.Sigma,
			Src:   rand.NewPCG(config.Seed, 0x9e3779b97f4a7c15),
		},
	}
}

// Generate returns the data matrix and the index of the center each row was
// drawn around. Rows are grouped by center.
func (g *BlobGenerator) Generate() (*mat.Dense, []int, error) {
	if len(g.config.Centers) == 0 {
		return nil, nil, fmt.Errorf("at least one center is required")
	}
	if g.config.PerCluster < 1 {
		return nil, nil, fmt.Errorf("per-cluster count must be positive, got %d", g.config.PerCluster)
	}
	if !(g.config.Sigma > 0) {
		return nil, nil, fmt.Errorf("sigma must be positive, got %v", g.config.Sigma)
	}
	q := len(g.config.Centers[0])
	for i, c := range g.config.Centers {
		if len(c) != q {
			return nil, nil, fmt.Errorf("center %d has %d features, want %d", i, len(c), q)
		}
	}

	n := len(g.config.Centers) * g.config.PerCluster
	data := mat.NewDense(n, q, nil)
	truth := make([]int, n)
	row := 0
	for c, center := range g.config.Centers {
		for k := 0; k < g.config.PerCluster; k++ {
			for j, mu := range center {
				data.Set(row, j, mu+g.noise.Rand())
			}
			truth[row] = c
			row++
		}
	}
	return data, truth, nil
}
