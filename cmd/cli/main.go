package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"clusterpval/adapters/clustering"
	"clusterpval/adapters/dataset"
	"clusterpval/adapters/rng"
	"clusterpval/domain/core"
	"clusterpval/domain/stats"
	"clusterpval/internal"
	"clusterpval/internal/config"
	"clusterpval/internal/profiling"
	"clusterpval/internal/selective"
	"clusterpval/ports"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Ignoring .env: %v", err)
	}

	rootCmd := &cobra.Command{
		Use:           "clusterpval-cli",
		Short:         "Selective p-values for differences in cluster means",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newDescribeCmd(),
		newClusterCmd(),
		newWaldCmd(),
		newApproxCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// inputFlags are shared by every subcommand that reads a dataset.
type inputFlags struct {
	file        string
	labelsFile  string
	method      string
	k           int
	linkage     string
	maxIter     int
	clusterSeed uint64
}

func (f *inputFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "file", "", "Dataset file (.txt with one header line, .csv or .xlsx)")
	cmd.Flags().StringVar(&f.labelsFile, "labels", "", "Observed labels, one integer per line (default: cluster the data)")
	cmd.Flags().StringVar(&f.method, "method", "hierarchical", "Clustering method: hierarchical or kmeans")
	cmd.Flags().IntVar(&f.k, "k", 2, "Number of clusters")
	cmd.Flags().StringVar(&f.linkage, "linkage", "average", "Hierarchical linkage: single, complete, average or ward")
	cmd.Flags().IntVar(&f.maxIter, "max-iter", 0, "k-means iteration cap (0 = default)")
	cmd.Flags().Uint64Var(&f.clusterSeed, "cluster-seed", 1, "k-means initialisation seed")
	_ = cmd.MarkFlagRequired("file")
}

func (f *inputFlags) spec() clustering.Spec {
	return clustering.Spec{Method: f.method, K: f.k, Linkage: f.linkage, MaxIter: f.maxIter, Seed: f.clusterSeed}
}

// load reads the dataset and its observed labels.
func (f *inputFlags) load(ctx context.Context) (*mat.Dense, []int, ports.ClustererPort, error) {
	table, err := dataset.NewDataReader(f.file).ReadData()
	if err != nil {
		return nil, nil, nil, err
	}
	clusterer, err := clustering.New(f.spec())
	if err != nil {
		return nil, nil, nil, err
	}

	if f.labelsFile != "" {
		lf, err := os.Open(f.labelsFile)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open labels: %w", err)
		}
		defer lf.Close()
		labels, err := dataset.ReadLabels(lf)
		if err != nil {
			return nil, nil, nil, err
		}
		return table.Data, labels, clusterer, nil
	}

	labels, err := clusterer.Cluster(ctx, table.Data)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("observed clustering: %w", err)
	}
	return table.Data, labels, clusterer, nil
}

// covarianceFlags select the noise model.
type covarianceFlags struct {
	sigma     float64
	general   bool
	precision string
}

func (f *covarianceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.sigma, "sigma", 0, "Known isotropic standard deviation (0 = estimate)")
	cmd.Flags().BoolVar(&f.general, "general", false, "Use a general covariance instead of isotropic")
	cmd.Flags().StringVar(&f.precision, "precision", "", `Precision matrix rows for --general, e.g. "1,1;1,1" (default: inverse sample covariance)`)
}

func (f *covarianceFlags) spec() (stats.CovarianceSpec, error) {
	spec := stats.CovarianceSpec{Kind: stats.Isotropic, Sigma: f.sigma}
	if f.general {
		spec.Kind = stats.General
	}
	if f.precision != "" {
		prec, err := parseMatrix(f.precision)
		if err != nil {
			return stats.CovarianceSpec{}, err
		}
		spec.Precision = prec
	}
	return spec, nil
}

func newDescribeCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Summarise each feature column of a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := dataset.NewDataReader(file).ReadData()
			if err != nil {
				return err
			}
			profile, err := profiling.ProfileDataset(table.Data, table.Header)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"profile":          profile,
				"isotropy_warning": profile.IsotropyWarning(profiling.DefaultScaleRatioLimit),
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Dataset file (.txt with one header line, .csv or .xlsx)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// warnIfAnisotropic logs when an isotropic model is applied to columns on
// very different scales.
func warnIfAnisotropic(logger *internal.Logger, data mat.Matrix, spec stats.CovarianceSpec) {
	if spec.Kind != stats.Isotropic {
		return
	}
	profile, err := profiling.ProfileDataset(data, nil)
	if err != nil {
		logger.Debug("[CLI] skipping isotropy check: %v", err)
		return
	}
	if msg := profile.IsotropyWarning(profiling.DefaultScaleRatioLimit); msg != "" {
		logger.Warn("[CLI] %s", msg)
	}
}

func newClusterCmd() *cobra.Command {
	var in inputFlags

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Print the labels the configured clustering assigns to a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, labels, _, err := in.load(cmd.Context())
			if err != nil {
				return err
			}
			for _, l := range labels {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
	in.bind(cmd)
	return cmd
}

func newWaldCmd() *cobra.Command {
	var in inputFlags
	var cov covarianceFlags
	var k1, k2 int

	cmd := &cobra.Command{
		Use:   "wald",
		Short: "Classical Wald test of equal cluster means (ignores selection)",
		Long: `Run the closed-form Wald test for two clusters. The test does not account
for the clusters having been estimated from the same data, so its p-values are
too small whenever the clusters came from clustering.

Example: clusterpval-cli wald --file testdata/ten_point.txt --k 2 --k1 0 --k2 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, labels, _, err := in.load(cmd.Context())
			if err != nil {
				return err
			}
			spec, err := cov.spec()
			if err != nil {
				return err
			}
			warnIfAnisotropic(internal.DefaultLogger, data, spec)

			result, err := selective.Wald(data, labels, stats.ClusterPair{K1: k1, K2: k2}, spec)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"file":        in.file,
				"fingerprint": fingerprint(data, labels),
				"statistic":   result.Statistic,
				"p_value":     result.PValue,
			})
		},
	}
	in.bind(cmd)
	cov.bind(cmd)
	cmd.Flags().IntVar(&k1, "k1", 0, "First cluster label")
	cmd.Flags().IntVar(&k2, "k2", 1, "Second cluster label")
	return cmd
}

func newApproxCmd() *cobra.Command {
	var in inputFlags
	var cov covarianceFlags
	var k1, k2, nDraws, workers int
	var seed uint64
	var shift, spread float64

	cmd := &cobra.Command{
		Use:   "approx",
		Short: "Monte-Carlo selective test of equal cluster means",
		Long: `Estimate the selective p-value by importance sampling: the data are moved
along the difference in cluster means, reclustered, and only draws that
reproduce both clusters are kept.

Defaults for --ndraws, --seed, --workers, --shift and --spread come from
CLUSTERPVAL_* environment variables (a .env file is read if present).

Example: clusterpval-cli approx --file penguins.txt --k 5 --k1 0 --k2 1 --ndraws 10000 --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("ndraws") {
				nDraws = cfg.Estimation.NDraws
			}
			if !flags.Changed("seed") {
				seed = cfg.Estimation.Seed
			}
			if !flags.Changed("workers") {
				workers = cfg.Estimation.Workers
			}
			if !flags.Changed("shift") {
				shift = cfg.Estimation.ProposalShift
			}
			if !flags.Changed("spread") {
				spread = cfg.Estimation.ProposalSpread
			}

			ctx := cmd.Context()
			data, labels, clusterer, err := in.load(ctx)
			if err != nil {
				return err
			}
			spec, err := cov.spec()
			if err != nil {
				return err
			}

			req := selective.Request{
				Data:       data,
				Labels:     labels,
				Pair:       stats.ClusterPair{K1: k1, K2: k2},
				Clusterer:  clusterer,
				Covariance: spec,
				NDraws:     nDraws,
			}
			if seed != 0 {
				req.Source, err = rng.NewAdapter().SeededStream(ctx, "approx", seed)
				if err != nil {
					return err
				}
			}

			logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
			warnIfAnisotropic(logger, data, spec)

			estimator := selective.NewEstimator(
				selective.WithProposal(selective.ProposalConfig{CenterShift: shift, Spread: spread}),
				selective.WithWorkers(workers),
				selective.WithLogger(logger),
			)
			result, err := estimator.Estimate(ctx, req)
			if err != nil {
				if core.IsInsufficientEvidence(err) {
					return fmt.Errorf("no estimate: %w", err)
				}
				return err
			}
			return printJSON(cmd, map[string]any{
				"file":        in.file,
				"fingerprint": fingerprint(data, labels),
				"result":      result,
			})
		},
	}
	in.bind(cmd)
	cov.bind(cmd)
	cmd.Flags().IntVar(&k1, "k1", 0, "First cluster label")
	cmd.Flags().IntVar(&k2, "k2", 1, "Second cluster label")
	cmd.Flags().IntVar(&nDraws, "ndraws", selective.DefaultNDraws, "Number of Monte-Carlo draws")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (0 = time based)")
	cmd.Flags().IntVar(&workers, "workers", 1, "Concurrent reclusterings")
	cmd.Flags().Float64Var(&shift, "shift", 0, "Proposal centre offset in reference-scale units")
	cmd.Flags().Float64Var(&spread, "spread", 1, "Proposal standard deviation in reference-scale units")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func fingerprint(data *mat.Dense, labels []int) string {
	rows, cols := data.Dims()
	return core.FingerprintInputs(rows, cols, data.RawMatrix().Data, labels).Short()
}

// parseMatrix reads rows separated by ';' and entries by ','.
func parseMatrix(s string) (*mat.Dense, error) {
	rowTexts := strings.Split(s, ";")
	var values []float64
	cols := -1
	for i, rowText := range rowTexts {
		fields := strings.Split(rowText, ",")
		if cols == -1 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, fmt.Errorf("matrix row %d has %d entries, expected %d", i, len(fields), cols)
		}
		for _, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("matrix row %d: %w", i, err)
			}
			values = append(values, v)
		}
	}
	return mat.NewDense(len(rowTexts), cols, values), nil
}
