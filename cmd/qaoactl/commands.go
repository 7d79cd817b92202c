package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"qaoa/internal/config"
	"qaoa/internal/optimize"
	"qaoa/pkg/qaoa"
)

// configWith applies command-level overrides to a copy of the loaded
// config and revalidates it.
func (a *app) configWith(apply func(*config.Config)) (config.Config, error) {
	cfg := a.cfg
	apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openOutput resolves "-" to stdout and "" to no output.
func (a *app) openOutput(path string) (io.Writer, func() error, error) {
	switch path {
	case "":
		return nil, func() error { return nil }, nil
	case "-":
		return a.stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func newEvaluateCmd(a *app, name, short string) *cobra.Command {
	var theta []float64
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("theta") {
				theta = nil
			}
			ev, err := a.client.Evaluate(cmd.Context(), qaoa.EvaluateRequest{
				Config:  a.cfg,
				Theta:   theta,
				Hessian: name == "hessian",
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.stdout, ev)
			}
			switch name {
			case "value":
				rows := [][]string{{"value", formatFloat(ev.Value)}}
				if ev.TrueMinimum != nil {
					rows = append(rows, []string{"true_minimum", formatFloat(*ev.TrueMinimum)})
				}
				if ev.TrueMaximum != nil {
					rows = append(rows, []string{"true_maximum", formatFloat(*ev.TrueMaximum)})
				}
				if ev.ExpectedCut != nil {
					rows = append(rows, []string{"expected_cut", formatFloat(*ev.ExpectedCut)})
				}
				return writeTable(a.stdout, []string{"quantity", "value"}, rows)
			case "gradient":
				rows := make([][]string, 0, len(ev.Gradient)+1)
				for i, g := range ev.Gradient {
					rows = append(rows, []string{strconv.Itoa(i), formatFloat(ev.Theta[i]), formatFloat(g)})
				}
				rows = append(rows, []string{"norm", "", formatFloat(ev.GradientNorm)})
				return writeTable(a.stdout, []string{"stage", "theta", "gradient"}, rows)
			default:
				headers := []string{"stage"}
				for i := range ev.Hessian {
					headers = append(headers, strconv.Itoa(i))
				}
				rows := make([][]string, 0, len(ev.Hessian)+1)
				for i, row := range ev.Hessian {
					cells := []string{strconv.Itoa(i)}
					for _, v := range row {
						cells = append(cells, formatFloat(v))
					}
					rows = append(rows, cells)
				}
				eig := []string{"eig"}
				for _, v := range ev.HessianEigenvalues {
					eig = append(eig, formatFloat(v))
				}
				rows = append(rows, eig)
				return writeTable(a.stdout, headers, rows)
			}
		},
	}
	cmd.Flags().Float64SliceVar(&theta, "theta", nil, "control angles, comma separated (default all zero)")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	var (
		theta    []float64
		steps    int
		seed     int64
		backward bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare derivatives against finite differences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("theta") {
				theta = nil
			}
			summary, err := a.client.Check(cmd.Context(), qaoa.CheckRequest{
				Config:   a.cfg,
				Theta:    theta,
				Steps:    steps,
				Seed:     seed,
				Backward: backward,
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.stdout, summary)
			}
			rows := make([][]string, len(summary.Steps))
			for i, h := range summary.Steps {
				rows[i] = []string{
					formatFloat(h),
					formatFloat(summary.Gradient[i]),
					formatFloat(summary.HessVec[i]),
					formatFloat(summary.Tangent[i]),
					formatFloat(summary.SecondAdjoint[i]),
				}
			}
			return writeTable(a.stdout, []string{"step", "gradient", "hess_vec", "tangent", "second_adjoint"}, rows)
		},
	}
	cmd.Flags().Float64SliceVar(&theta, "theta", nil, "control angles (default random)")
	cmd.Flags().IntVar(&steps, "steps", 8, "number of step sizes, 1 down to 10^-(steps-1)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "seed for the random point and direction")
	cmd.Flags().BoolVar(&backward, "backward", false, "use the one-sided backward stencil")
	return cmd
}

func newSampleCmd(a *app) *cobra.Command {
	var (
		samples    int
		workers    int
		bufferSize int
		seed       int64
		quantities []string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Evaluate the circuit at random control vectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			cfg, err := a.configWith(func(c *config.Config) {
				if flags.Changed("samples") {
					c.Sampling.Samples = samples
				}
				if flags.Changed("workers") {
					c.Sampling.Workers = workers
				}
				if flags.Changed("buffer-size") {
					c.Sampling.BufferSize = bufferSize
				}
				if flags.Changed("seed") {
					c.Sampling.Seed = seed
				}
				if flags.Changed("quantities") {
					c.Sampling.Quantities = quantities
				}
				if flags.Changed("output") {
					c.Sampling.Output = output
				}
			})
			if err != nil {
				return err
			}
			w, closeOutput, err := a.openOutput(cfg.Sampling.Output)
			if err != nil {
				return err
			}
			summary, err := a.client.Sample(cmd.Context(), qaoa.SampleRequest{Config: cfg, Output: w})
			if cerr := closeOutput(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if cfg.Sampling.Output == "-" {
				// stdout carries the samples
				a.logger.Info("sample run stored",
					slog.String("run_id", summary.RunID),
					slog.String("samples", humanize.Comma(int64(summary.Samples))),
					slog.Duration("elapsed", summary.Elapsed.Round(time.Millisecond)),
				)
				return nil
			}
			if a.jsonOut {
				return writeJSON(a.stdout, summary)
			}
			return writeTable(a.stdout, []string{"field", "value"}, [][]string{
				{"run_id", summary.RunID},
				{"samples", humanize.Comma(int64(summary.Samples))},
				{"workers", strconv.Itoa(summary.Workers)},
				{"elapsed", summary.Elapsed.Round(time.Millisecond).String()},
			})
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&samples, "samples", 0, "number of samples")
	flags.IntVar(&workers, "workers", 0, "worker count (default NumCPU/4)")
	flags.IntVar(&bufferSize, "buffer-size", 0, "samples per flush")
	flags.Int64Var(&seed, "seed", 0, "sampling seed")
	flags.StringSliceVar(&quantities, "quantities", nil, "quantities to record: theta,value,approximation_ratio,gradient,gradient_norm,hessian_eigenvalues")
	flags.StringVar(&output, "output", "", "CSV output path, - for stdout")
	return cmd
}

func optimizationFlags(cmd *cobra.Command, method *string, seed *int64, maxIter *int, start *[]float64) {
	flags := cmd.Flags()
	flags.StringVar(method, "method", "", "optimizer: "+fmt.Sprint(optimize.Methods()))
	flags.Int64Var(seed, "seed", 0, "seed for the random start")
	flags.IntVar(maxIter, "max-iterations", 0, "major iteration limit")
	flags.Float64SliceVar(start, "start", nil, "starting angles")
}

func applyOptimizationFlags(cmd *cobra.Command, c *config.Config, method string, seed int64, maxIter int, start []float64) {
	flags := cmd.Flags()
	if flags.Changed("method") {
		c.Optimization.Method = method
	}
	if flags.Changed("seed") {
		c.Optimization.Seed = seed
	}
	if flags.Changed("max-iterations") {
		c.Optimization.MaxIterations = maxIter
	}
	if flags.Changed("start") {
		c.Optimization.Start = start
	}
}

func newOptimizeCmd(a *app) *cobra.Command {
	var (
		method  string
		seed    int64
		maxIter int
		start   []float64
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Minimise the objective over all angles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.configWith(func(c *config.Config) {
				applyOptimizationFlags(cmd, c, method, seed, maxIter, start)
			})
			if err != nil {
				return err
			}
			summary, err := a.client.Optimize(cmd.Context(), qaoa.OptimizeRequest{Config: cfg})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.stdout, summary)
			}
			res := summary.Result
			return writeTable(a.stdout, []string{"field", "value"}, [][]string{
				{"run_id", summary.RunID},
				{"method", res.Method},
				{"status", res.Status},
				{"value", formatFloat(res.Value)},
				{"gradient_norm", formatFloat(res.GradientNorm)},
				{"x", formatVector(res.X)},
				{"iterations", humanize.Comma(int64(res.Iterations))},
				{"evaluations", humanize.Comma(int64(res.FuncEvaluations))},
				{"runtime", res.Runtime.Round(time.Millisecond).String()},
			})
		},
	}
	optimizationFlags(cmd, &method, &seed, &maxIter, &start)
	return cmd
}

func newContinueCmd(a *app) *cobra.Command {
	var (
		method       string
		seed         int64
		maxIter      int
		start        []float64
		policy       string
		policyParam  float64
		restartTrial int
	)
	cmd := &cobra.Command{
		Use:   "continue",
		Short: "Optimise layer by layer, growing the circuit one layer at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			cfg, err := a.configWith(func(c *config.Config) {
				applyOptimizationFlags(cmd, c, method, seed, maxIter, start)
				if flags.Changed("attempt-policy") {
					c.Continuation.AttemptPolicy = policy
				}
				if flags.Changed("attempt-param") {
					c.Continuation.AttemptParam = policyParam
				}
				if flags.Changed("max-restart-trials") {
					c.Continuation.MaxRestartTrials = restartTrial
				}
			})
			if err != nil {
				return err
			}
			summary, err := a.client.Continue(cmd.Context(), qaoa.ContinueRequest{Config: cfg})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.stdout, summary)
			}
			rows := make([][]string, len(summary.Layers))
			for i, l := range summary.Layers {
				minEig := ""
				if len(l.HessianEigenvalues) > 0 {
					minEig = formatFloat(floats.Min(l.HessianEigenvalues))
				}
				rows[i] = []string{
					strconv.Itoa(l.Layer),
					formatFloat(l.Value),
					formatFloat(l.GradientNorm),
					minEig,
					humanize.Comma(int64(l.Iterations)),
					strconv.Itoa(l.RestartTrials),
				}
			}
			if err := writeTable(a.stdout, []string{"layer", "value", "gradient_norm", "min_eig", "iterations", "restarts"}, rows); err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.stdout, "run %s\n", summary.RunID)
			return err
		},
	}
	optimizationFlags(cmd, &method, &seed, &maxIter, &start)
	cmd.Flags().StringVar(&policy, "attempt-policy", "", "exoself attempt policy: fixed|linear_decay|size_proportional")
	cmd.Flags().Float64Var(&policyParam, "attempt-param", 0, "attempt policy parameter")
	cmd.Flags().IntVar(&restartTrial, "max-restart-trials", 0, "cap on restart step growth per layer")
	return cmd
}

func newLandscapeCmd(a *app) *cobra.Command {
	var (
		points     int
		evalPoints int
		output     string
	)
	cmd := &cobra.Command{
		Use:   "landscape",
		Short: "Fit a sine-series surrogate and evaluate it on a finer grid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			cfg, err := a.configWith(func(c *config.Config) {
				if flags.Changed("points") {
					c.Landscape.Points = points
				}
				if flags.Changed("eval-points") {
					c.Landscape.EvalPoints = evalPoints
				}
				if flags.Changed("output") {
					c.Landscape.Output = output
				}
			})
			if err != nil {
				return err
			}
			summary, err := a.client.Landscape(cmd.Context(), qaoa.LandscapeRequest{Config: cfg})
			if err != nil {
				return err
			}
			w, closeOutput, err := a.openOutput(cfg.Landscape.Output)
			if err != nil {
				return err
			}
			if w != nil {
				err = writeLandscapeCSV(w, summary)
			}
			if cerr := closeOutput(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if cfg.Landscape.Output == "-" {
				a.logger.Info("landscape fitted",
					slog.Float64("min", summary.Min),
					slog.String("argmin", formatVector(summary.ArgMin)),
				)
				return nil
			}
			if a.jsonOut {
				summary.Grid, summary.Values = nil, nil
				return writeJSON(a.stdout, summary)
			}
			rows := [][]string{
				{"points", strconv.Itoa(summary.Points)},
				{"eval_points", strconv.Itoa(summary.EvalPoints)},
				{"grid", humanize.Comma(int64(len(summary.Values)))},
				{"min", formatFloat(summary.Min)},
				{"max", formatFloat(summary.Max)},
				{"argmin", formatVector(summary.ArgMin)},
			}
			if summary.TrueMinimum != nil {
				rows = append(rows, []string{"true_minimum", formatFloat(*summary.TrueMinimum)})
			}
			return writeTable(a.stdout, []string{"field", "value"}, rows)
		},
	}
	cmd.Flags().IntVar(&points, "points", 0, "sample points per axis")
	cmd.Flags().IntVar(&evalPoints, "eval-points", 0, "evaluation points per axis")
	cmd.Flags().StringVar(&output, "output", "", "CSV output path, - for stdout")
	return cmd
}

func writeLandscapeCSV(w io.Writer, s qaoa.LandscapeSummary) error {
	cw := csv.NewWriter(w)
	dim := len(s.ArgMin)
	header := make([]string, 0, dim+1)
	for i := range dim {
		header = append(header, "theta_"+strconv.Itoa(i))
	}
	if err := cw.Write(append(header, "value")); err != nil {
		return err
	}
	record := make([]string, dim+1)
	for i, point := range s.Grid {
		for j, x := range point {
			record[j] = strconv.FormatFloat(x, 'g', -1, 64)
		}
		record[dim] = strconv.FormatFloat(s.Values[i], 'g', -1, 64)
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit int
		kind  string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := a.client.Runs(cmd.Context(), qaoa.RunsRequest{Limit: limit, Kind: kind})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.stdout, runs)
			}
			terminal := isTerminal(a.stdout)
			rows := make([][]string, len(runs))
			for i, r := range runs {
				created := r.CreatedAt.Format(time.RFC3339)
				if terminal {
					created = humanize.Time(r.CreatedAt)
				}
				rows[i] = []string{
					r.ID, r.Kind, r.Problem,
					strconv.Itoa(r.NumQubits), strconv.Itoa(r.Layers),
					r.Method, r.Status, created,
				}
			}
			return writeTable(a.stdout, []string{"id", "kind", "problem", "qubits", "layers", "method", "status", "created"}, rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().StringVar(&kind, "kind", "", "only list runs of this kind: sample|optimize|continue")
	return cmd
}
