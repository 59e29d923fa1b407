package cli

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/sanonone/irishnsw/pkg/core/hnsw"
	"github.com/sanonone/irishnsw/pkg/experiment"
	"github.com/sanonone/irishnsw/pkg/iris"
	"github.com/spf13/cobra"
)

type experimentFlags struct {
	size      int
	queries   int
	impostors int
	efs       []int
	workers   int
	baseline  bool
	rotate    bool
	seed      int64
	output    string
}

func (a *app) experimentCmd() *cobra.Command {
	var f experimentFlags

	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Measure recall and identification rates on a fresh in-memory index",
		Long: `Build an in-memory index of random templates, then:
  1. probe it with noisy copies of enrolled templates and with impostors,
  2. sweep the beam width and compare results with an exhaustive scan,
  3. optionally compare recall with an independent HNSW implementation.

The JSON report goes to stdout or --output.

Examples:
  irishnsw experiment --fast --size 2000 --queries 200
  irishnsw experiment --efs 16,32,64,128 --baseline --output report.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runExperiment(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.size, "size", "n", 1000, "number of templates to enroll")
	fl.IntVar(&f.queries, "queries", 100, "number of genuine probes")
	fl.IntVar(&f.impostors, "impostors", 100, "number of never-enrolled probes")
	fl.IntSliceVar(&f.efs, "efs", []int{16, 32, 64, 128}, "beam widths of the recall sweep")
	fl.IntVar(&f.workers, "workers", runtime.GOMAXPROCS(0), "parallel searches in the recall sweep")
	fl.BoolVar(&f.baseline, "baseline", false, "also measure github.com/coder/hnsw on the code bits")
	fl.BoolVar(&f.rotate, "rotate", true, "rotate genuine probes within the configured range")
	fl.Int64Var(&f.seed, "seed", 0, "seed (0 means time-seeded)")
	fl.StringVarP(&f.output, "output", "o", "", "write the report to this file")
	return cmd
}

func (a *app) runExperiment(cmd *cobra.Command, f experimentFlags) error {
	if f.size <= 0 || f.queries <= 0 {
		return fmt.Errorf("size and queries must be positive")
	}
	seed := f.seed
	if seed == 0 {
		seed = a.cfg.Index.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	search := a.cfg.Search

	report := experiment.NewReport(a.cfg.HNSW())
	report.Parameters = map[string]any{
		"dim":          a.cfg.IrisDim().String(),
		"max_rotation": a.cfg.Iris.MaxRotation,
		"seed":         seed,
		"k":            search.K,
		"ef":           search.Ef,
		"threshold":    search.Threshold,
		"noise_level":  search.NoiseLevel,
	}

	idx, err := iris.NewIndex(a.cfg.HNSW(), hnsw.WithSeed(seed), hnsw.WithLogger(a.logger))
	if err != nil {
		return err
	}
	m, err := iris.NewMatcher(idx, a.cfg.IrisDim(), a.cfg.Iris.MaxRotation)
	if err != nil {
		return err
	}

	a.logger.Info("building index", "size", f.size, "dim", m.Dim())
	start := time.Now()
	if _, err := experiment.EnrollRandom(m, rng, f.size); err != nil {
		return err
	}
	construct := idx.ResetStats()
	report.Construct = &construct
	a.logger.Info("index built", "elapsed", time.Since(start).Round(time.Millisecond), "layers", idx.LayerSizes())

	thr, err := experiment.ThresholdRun(m, rng, experiment.ThresholdParams{
		Queries:    f.queries,
		Impostors:  f.impostors,
		K:          search.K,
		Ef:         search.Ef,
		Threshold:  search.Threshold,
		NoiseLevel: search.NoiseLevel,
		Rotate:     f.rotate,
	})
	if err != nil {
		return fmt.Errorf("threshold run: %w", err)
	}
	report.Threshold = &thr
	a.logger.Info("threshold run",
		"found_in_top_k", thr.FoundInTopK,
		"identified", thr.Identified,
		"false_matches", thr.FalseMatches,
		"mean_distance", thr.MeanDistance)

	queries := make([]iris.Query, f.queries)
	probes := make([][]uint64, f.queries)
	for i := range queries {
		tpl, err := m.Template(uint32(rng.Intn(f.size)))
		if err != nil {
			return err
		}
		probe := iris.WithNoise(rng, tpl, search.NoiseLevel)
		if queries[i], err = m.Query(probe); err != nil {
			return err
		}
		probes[i] = probe.Code
	}

	if len(f.efs) > 0 {
		sweep, err := experiment.RecallSweep(cmd.Context(), idx, iris.Distance, queries, search.K, f.efs, f.workers)
		if err != nil {
			return err
		}
		report.Sweep = sweep
		for _, s := range sweep {
			a.logger.Info("recall", "ef", s.Ef, "mean", s.MeanRecall, "min", s.MinRecall, "distances", s.MeanDistances)
		}
	}

	if f.baseline {
		vectors := make([][]uint64, idx.Len())
		for id := range vectors {
			tpl, err := m.Template(uint32(id))
			if err != nil {
				return err
			}
			vectors[id] = tpl.Code
		}
		cfg := idx.Config()
		base, err := experiment.BaselineRecall(vectors, probes, experiment.BaselineParams{
			M:        cfg.M,
			Ml:       cfg.ML,
			EfSearch: search.Ef,
			K:        search.K,
		})
		if err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
		report.Baseline = &base
		a.logger.Info("baseline recall", "mean", base.MeanRecall, "build", base.BuildTime.Round(time.Millisecond))
	}

	report.Finish(idx.Len(), idx.LayerSizes())
	return a.writeReport(report, f.output)
}

func (a *app) writeReport(r *experiment.Report, path string) error {
	var w io.Writer = a.out
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		defer file.Close()
		w = file
	}
	if err := r.WriteJSON(w); err != nil {
		return err
	}
	if path != "" {
		a.logger.Info("report written", "path", path, "run_id", r.RunID)
	}
	return nil
}
