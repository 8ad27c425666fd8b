package selective

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"time"

	"clusterpval/domain/core"
	"clusterpval/domain/stats"
	"clusterpval/internal"
	"clusterpval/ports"

	mstats "github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultNDraws is used when a request leaves NDraws at zero.
const DefaultNDraws = 2000

// Request is one selective test: data, its observed labeling, the pair under
// test and the clusterer that produced the labeling.
type Request struct {
	Data       mat.Matrix
	Labels     []int
	Pair       stats.ClusterPair
	Clusterer  ports.ClustererPort
	Covariance stats.CovarianceSpec
	NDraws     int

	// Source drives the proposal draws. nil seeds a PCG from the clock, so
	// results then vary from call to call.
	Source rand.Source
}

// Draw is one evaluated simulation trial.
type Draw struct {
	Proposal
	Survived bool
}

// Estimator runs the Monte-Carlo selective test.
type Estimator struct {
	proposal ProposalConfig
	workers  int
	logger   *internal.Logger
}

// Option customizes an Estimator.
type Option func(*Estimator)

// WithProposal overrides the importance-sampling proposal.
func WithProposal(cfg ProposalConfig) Option {
	return func(e *Estimator) { e.proposal = cfg }
}

// WithWorkers bounds the number of concurrent clusterer reruns. Values below 1
// are ignored.
func WithWorkers(n int) Option {
	return func(e *Estimator) {
		if n >= 1 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger used for run progress.
func WithLogger(l *internal.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEstimator creates an estimator with the default proposal and one worker
// per available CPU.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		proposal: DefaultProposal(),
		workers:  runtime.GOMAXPROCS(0),
		logger:   internal.DefaultLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate computes the selective p-value and its Monte-Carlo standard error.
//
// Input errors (core.ErrInvalidInput, core.ErrInvalidCluster,
// core.ErrInvalidCovariance) are returned before any draw is made.
// core.ErrNoSurvivingDraws is returned once all draws are exhausted without a
// single one reproducing the clusters.
func (e *Estimator) Estimate(ctx context.Context, req Request) (*stats.MonteCarloResult, error) {
	if req.Clusterer == nil {
		return nil, core.NewInvalidInputError("clusterer", "is nil")
	}
	nDraws := req.NDraws
	if nDraws == 0 {
		nDraws = DefaultNDraws
	}
	if nDraws < 0 {
		return nil, core.NewInvalidInputError("n draws", "must be positive")
	}
	if err := validateData(req.Data, req.Labels); err != nil {
		return nil, err
	}
	if err := e.proposal.Validate(); err != nil {
		return nil, err
	}

	cov, err := ResolveCovariance(req.Data, req.Covariance)
	if err != nil {
		return nil, err
	}
	contrast, err := ComputeContrast(req.Data, req.Labels, req.Pair, cov)
	if err != nil {
		return nil, err
	}
	oracle, err := NewOracle(req.Clusterer, req.Labels, req.Pair, e.logger)
	if err != nil {
		return nil, err
	}

	runID := core.NewRunID()
	logger := e.logger.With("run", runID.String())
	if ignored := IgnoredCompanion(req.Covariance); ignored != "" {
		logger.Debug("[Estimator] %s covariance ignores the supplied %s", cov.Kind(), ignored)
	}
	if contrast.Statistic == 0 {
		return nil, core.ErrDegenerateStatistic
	}

	src := req.Source
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>1|1)
	}
	ref := Reference{
		Statistic: contrast.Statistic,
		Scale:     math.Sqrt(cov.ScaleFactor(contrast.N1(), contrast.N2())),
		Dim:       cov.Dim(),
	}
	sampler, err := NewSampler(ref, e.proposal, src)
	if err != nil {
		return nil, err
	}

	n, q := req.Data.Dims()
	logger.Info("[Estimator] selective test %s: n=%d q=%d draws=%d covariance=%s stat=%.6g",
		req.Pair, n, q, nDraws, cov.Kind(), contrast.Statistic)
	start := time.Now()

	draws, err := e.evaluate(ctx, req.Data, contrast, oracle, slices.Collect(sampler.Propose(nDraws)))
	if err != nil {
		return nil, err
	}

	summary, err := ReduceDraws(draws, contrast.Statistic)
	if err != nil {
		logger.Warn("[Estimator] %v", err)
		return nil, err
	}
	logSurvivors(logger, draws, summary)

	logger.Info("[Estimator] done in %v: p=%.6g se=%.6g survived=%d/%d",
		time.Since(start).Round(time.Millisecond), summary.PValue, summary.StdErr, summary.Survived, nDraws)

	return &stats.MonteCarloResult{
		RunID:               runID,
		Statistic:           contrast.Statistic,
		PValue:              summary.PValue,
		StdErr:              summary.StdErr,
		NDraws:              nDraws,
		Survived:            summary.Survived,
		EffectiveSampleSize: summary.EffectiveSampleSize,
	}, nil
}

// evaluate reruns the oracle for every in-support proposal. Each worker owns
// its perturbed copy; results land in draw order so the reduction does not
// depend on scheduling.
func (e *Estimator) evaluate(ctx context.Context, data mat.Matrix, contrast *Contrast, oracle *Oracle, proposals []Proposal) ([]Draw, error) {
	draws := make([]Draw, len(proposals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, p := range proposals {
		draws[i].Proposal = p
		if !p.InSupport() {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perturbed, err := contrast.Perturb(data, p.Phi)
			if err != nil {
				return err
			}
			draws[i].Survived = oracle.PreservesSelection(gctx, perturbed)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return draws, nil
}

// Summary is the reduction of a weighted sample of draws.
type Summary struct {
	PValue              float64
	StdErr              float64
	Survived            int
	EffectiveSampleSize float64
}

// ReduceDraws forms the self-normalised importance-sampling estimate of
// P(φ >= statistic | selection) from the surviving draws, with standard error
//
//	sqrt((1-p)²·Σ_{φ≥stat} w² + p²·Σ_{φ<stat} w²)
//
// over normalised weights w, and Kish effective sample size 1/Σw².
func ReduceDraws(draws []Draw, statistic float64) (Summary, error) {
	logWeights := make([]float64, 0, len(draws))
	extreme := make([]bool, 0, len(draws))
	for _, d := range draws {
		if !d.Survived || !d.InSupport() {
			continue
		}
		logWeights = append(logWeights, d.LogWeight)
		extreme = append(extreme, d.Phi >= statistic)
	}
	if len(logWeights) == 0 {
		return Summary{}, core.NewNoSurvivingDrawsError(len(draws))
	}

	lse := floats.LogSumExp(logWeights)
	var p, sqExtreme, sqRest float64
	for i, lw := range logWeights {
		w := math.Exp(lw - lse)
		if extreme[i] {
			p += w
			sqExtreme += w * w
		} else {
			sqRest += w * w
		}
	}
	p = math.Min(1, math.Max(0, p))

	variance := (1-p)*(1-p)*sqExtreme + p*p*sqRest
	return Summary{
		PValue:              p,
		StdErr:              math.Sqrt(variance),
		Survived:            len(logWeights),
		EffectiveSampleSize: 1 / (sqExtreme + sqRest),
	}, nil
}

func logSurvivors(logger *internal.Logger, draws []Draw, summary Summary) {
	if logger.GetLevel() < internal.LogLevelDebug {
		return
	}
	phis := make([]float64, 0, summary.Survived)
	for _, d := range draws {
		if d.Survived {
			phis = append(phis, d.Phi)
		}
	}
	lo, _ := mstats.Min(phis)
	med, _ := mstats.Median(phis)
	hi, _ := mstats.Max(phis)
	logger.Debug("[Estimator] survivors %d/%d, ESS %.1f, phi range [%.4g, %.4g] median %.4g",
		summary.Survived, len(draws), summary.EffectiveSampleSize, lo, hi, med)
}
