package clustering

import (
	"fmt"
	"strings"

	"clusterpval/ports"
)

// Spec is a serialisable clustering configuration: the procedure name plus the
// keyword arguments it reads. The same Spec is used for the observed fit and
// for every rerun.
type Spec struct {
	Method  string `json:"method"`
	K       int    `json:"k"`
	Linkage string `json:"linkage,omitempty"`
	MaxIter int    `json:"max_iter,omitempty"`
	Seed    uint64 `json:"seed,omitempty"`
}

// New returns the clusterer described by spec
func New(spec Spec) (ports.ClustererPort, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Method)) {
	case "hierarchical", "agglomerative", "hclust", "":
		linkage, err := ParseLinkage(spec.Linkage)
		if err != nil {
			return nil, err
		}
		h, err := NewHierarchical(spec.K, linkage)
		if err != nil {
			return nil, err
		}
		return h, nil

	case "kmeans", "k-means":
		km, err := NewKMeans(spec.K, spec.MaxIter, spec.Seed)
		if err != nil {
			return nil, err
		}
		return km, nil

	default:
		return nil, fmt.Errorf("unknown clustering method %q", spec.Method)
	}
}
