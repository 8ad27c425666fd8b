package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync/atomic"

	"clusterpval/domain/core"
	"clusterpval/internal"
	"clusterpval/internal/config"
	"clusterpval/internal/errors"
	"clusterpval/internal/selective"
	"clusterpval/ports"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"
)

// TestHandler serves the Wald and approximate selective tests.
type TestHandler struct {
	defaults  config.EstimationConfig
	rng       ports.RNGPort
	logger    *internal.Logger
	admission *semaphore.Weighted
	capacity  int64
	inFlight  atomic.Int64
}

// NewTestHandler creates a handler admitting at most maxConcurrent
// approximate tests at once. Further requests are rejected, not queued.
func NewTestHandler(defaults config.EstimationConfig, maxConcurrent int64, rng ports.RNGPort, logger *internal.Logger) *TestHandler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &TestHandler{
		defaults:  defaults,
		rng:       rng,
		logger:    logger,
		admission: semaphore.NewWeighted(maxConcurrent),
		capacity:  maxConcurrent,
	}
}

// Wald handles POST /v1/tests/wald
func (h *TestHandler) Wald(c *gin.Context) {
	var req TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, errors.InvalidInput("invalid request format: "+err.Error()))
		return
	}

	parsed, err := req.parse(c.Request.Context(), false)
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := selective.Wald(parsed.data, parsed.labels, parsed.pair, parsed.covariance)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, WaldResponse{WaldResult: *result, Fingerprint: req.fingerprint(parsed)})
}

// Approx handles POST /v1/tests/approx
func (h *TestHandler) Approx(c *gin.Context) {
	var req TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, errors.InvalidInput("invalid request format: "+err.Error()))
		return
	}

	// Admission comes before parsing: an unlabeled request runs the observed
	// clustering inside parse.
	if !h.admission.TryAcquire(1) {
		h.writeError(c, errors.Overloaded("too many approximate tests in flight; retry later"))
		return
	}
	h.inFlight.Add(1)
	defer func() {
		h.inFlight.Add(-1)
		h.admission.Release(1)
	}()

	ctx := c.Request.Context()
	parsed, err := req.parse(ctx, true)
	if err != nil {
		h.writeError(c, err)
		return
	}

	request := selective.Request{
		Data:       parsed.data,
		Labels:     parsed.labels,
		Pair:       parsed.pair,
		Clusterer:  parsed.clusterer,
		Covariance: parsed.covariance,
		NDraws:     req.NDraws,
	}
	if request.NDraws == 0 {
		request.NDraws = h.defaults.NDraws
	}

	seed := h.defaults.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	if seed != 0 {
		request.Source, err = h.rng.SeededStream(ctx, "approx", seed)
		if err != nil {
			h.writeError(c, err)
			return
		}
	}

	estimator := selective.NewEstimator(
		selective.WithProposal(selective.ProposalConfig{
			CenterShift: h.defaults.ProposalShift,
			Spread:      h.defaults.ProposalSpread,
		}),
		selective.WithWorkers(h.defaults.Workers),
		selective.WithLogger(h.logger),
	)
	result, err := estimator.Estimate(ctx, request)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ApproxResponse{
		MonteCarloResult: *result,
		SurvivalRate:     result.SurvivalRate(),
		Fingerprint:      req.fingerprint(parsed),
	})
}

// InFlight is the number of approximate tests currently running.
func (h *TestHandler) InFlight() int64 { return h.inFlight.Load() }

// Capacity is the admission limit for approximate tests.
func (h *TestHandler) Capacity() int64 { return h.capacity }

// Saturated reports whether a new approximate test would be rejected.
func (h *TestHandler) Saturated() bool { return h.InFlight() >= h.capacity }

func (h *TestHandler) writeError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("[API] %s %s: %v", c.Request.Method, c.FullPath(), err)
	} else {
		h.logger.Debug("[API] %s %s rejected: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// classify maps domain and application errors to an HTTP status and code.
func classify(err error) (int, string) {
	switch {
	case core.IsValidationError(err):
		return http.StatusBadRequest, errors.CodeInvalidInput
	case core.IsInsufficientEvidence(err):
		return http.StatusUnprocessableEntity, errors.CodeInsufficientEvidence
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, errors.CodeInternalError
	}

	switch code := errors.GetCode(err); code {
	case errors.CodeInvalidInput, errors.CodeValidationError:
		return http.StatusBadRequest, code
	case errors.CodeNotFound:
		return http.StatusNotFound, code
	case errors.CodeInsufficientEvidence:
		return http.StatusUnprocessableEntity, code
	case errors.CodeOverloaded:
		return http.StatusServiceUnavailable, code
	default:
		return http.StatusInternalServerError, errors.CodeInternalError
	}
}
