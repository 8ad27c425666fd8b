package api

import (
	"context"
	"fmt"

	"clusterpval/adapters/clustering"
	"clusterpval/domain/core"
	"clusterpval/domain/stats"
	"clusterpval/internal/errors"
	"clusterpval/ports"

	"gonum.org/v1/gonum/mat"
)

// TestRequest is the JSON body shared by the Wald and approximate endpoints.
type TestRequest struct {
	Data [][]float64 `json:"data" binding:"required"`

	// Labels is the observed clustering. When omitted it is computed by
	// running Clustering on Data.
	Labels []int `json:"labels,omitempty"`
	K1     int   `json:"k1"`
	K2     int   `json:"k2"`

	// Clustering names the procedure that produced Labels. The approximate
	// test reruns it on every draw.
	Clustering *clustering.Spec `json:"clustering,omitempty"`

	// Iso selects the isotropic model (default). Sigma applies only when
	// isotropic and Precision only when not.
	Iso       *bool       `json:"iso,omitempty"`
	Sigma     float64     `json:"sigma,omitempty"`
	Precision [][]float64 `json:"precision,omitempty"`

	NDraws int     `json:"n_draws,omitempty"`
	Seed   *uint64 `json:"seed,omitempty"`
}

// WaldResponse is returned by POST /v1/tests/wald.
type WaldResponse struct {
	stats.WaldResult
	Fingerprint string `json:"fingerprint"`
}

// ApproxResponse is returned by POST /v1/tests/approx.
type ApproxResponse struct {
	stats.MonteCarloResult
	SurvivalRate float64 `json:"survival_rate"`
	Fingerprint  string  `json:"fingerprint"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// parsedRequest is a TestRequest converted to domain types.
type parsedRequest struct {
	data       *mat.Dense
	labels     []int
	pair       stats.ClusterPair
	covariance stats.CovarianceSpec
	clusterer  ports.ClustererPort
}

func (r *TestRequest) parse(ctx context.Context, needClusterer bool) (*parsedRequest, error) {
	data, err := denseFromRows("data", r.Data)
	if err != nil {
		return nil, err
	}

	out := &parsedRequest{
		data: data,
		pair: stats.ClusterPair{K1: r.K1, K2: r.K2},
	}

	if r.Clustering != nil {
		out.clusterer, err = clustering.New(*r.Clustering)
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("clustering: %v", err))
		}
	} else if needClusterer {
		return nil, errors.InvalidInput("clustering is required for the approximate test")
	}

	out.labels = r.Labels
	if out.labels == nil {
		if out.clusterer == nil {
			return nil, errors.InvalidInput("either labels or clustering must be given")
		}
		out.labels, err = out.clusterer.Cluster(ctx, data)
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("observed clustering failed: %v", err))
		}
	}

	out.covariance, err = r.covarianceSpec()
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *TestRequest) covarianceSpec() (stats.CovarianceSpec, error) {
	spec := stats.CovarianceSpec{Kind: stats.Isotropic, Sigma: r.Sigma}
	if r.Iso != nil && !*r.Iso {
		spec.Kind = stats.General
	}
	if r.Precision != nil {
		prec, err := denseFromRows("precision", r.Precision)
		if err != nil {
			return stats.CovarianceSpec{}, err
		}
		spec.Precision = prec
	}
	return spec, nil
}

func (r *TestRequest) fingerprint(p *parsedRequest) string {
	rows, cols := p.data.Dims()
	return core.FingerprintInputs(rows, cols, p.data.RawMatrix().Data, p.labels).Short()
}

func denseFromRows(field string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.InvalidInput(field + " is empty")
	}
	q := len(rows[0])
	values := make([]float64, 0, len(rows)*q)
	for i, row := range rows {
		if len(row) != q {
			return nil, errors.InvalidInput(fmt.Sprintf("%s row %d has %d values, expected %d", field, i, len(row), q))
		}
		values = append(values, row...)
	}
	return mat.NewDense(len(rows), q, values), nil
}
