package cli

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sanonone/irishnsw/pkg/iris"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type generateFlags struct {
	size           int
	m              int
	mMax0          int
	efConstruction int
	ml             float64
	seed           int64
	appendTo       bool
}

func (a *app) generateCmd() *cobra.Command {
	var f generateFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build an index of random templates and save a snapshot",
		Long: `Enroll random iris templates into a new database and write its snapshot.

Examples:
  irishnsw generate --size 10000
  irishnsw generate --fast --size 2000 --m 32 --ef-construction 64
  irishnsw generate --size 500 --append`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fl := cmd.Flags()
			if fl.Changed("m") {
				a.cfg.Index.M = f.m
				a.cfg.Index.Mmax0 = 0
			}
			if fl.Changed("m-max0") {
				a.cfg.Index.Mmax0 = f.mMax0
			}
			if fl.Changed("ef-construction") {
				a.cfg.Index.EfConstruction = f.efConstruction
			}
			if fl.Changed("ml") {
				a.cfg.Index.ML = f.ml
			}
			if fl.Changed("seed") {
				a.cfg.Index.Seed = f.seed
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runGenerate(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.size, "size", "n", 1000, "number of templates to enroll")
	fl.IntVar(&f.m, "m", 0, "max neighbors per node above layer 0")
	fl.IntVar(&f.mMax0, "m-max0", 0, "max neighbors per node on layer 0 (0 means m)")
	fl.IntVar(&f.efConstruction, "ef-construction", 0, "beam width during insertion")
	fl.Float64Var(&f.ml, "ml", 0, "level generation factor")
	fl.Int64Var(&f.seed, "seed", 0, "seed for templates and levels (0 means time-seeded)")
	fl.BoolVar(&f.appendTo, "append", false, "enroll into an existing database")
	return cmd
}

func (a *app) runGenerate(cmd *cobra.Command, f generateFlags) error {
	if f.size <= 0 {
		return fmt.Errorf("size must be positive, got %d", f.size)
	}

	eng, err := a.openEngine(false)
	if err != nil {
		return err
	}
	defer eng.Close()

	if n := eng.Len(); n > 0 {
		if !f.appendTo {
			return fmt.Errorf("%s already holds %d templates, use --append to grow it", a.cfg.Storage.DataDir, n)
		}
		a.logger.Warn("appending keeps the graph parameters of the existing snapshot", "config", eng.Index().Config())
	}

	seed := a.cfg.Index.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	dim := eng.Matcher().Dim()

	interactive := term.IsTerminal(int(os.Stderr.Fd()))
	step := max(f.size/10, 1)
	start := time.Now()
	eng.Index().ResetStats()

	for i := 1; i <= f.size; i++ {
		if err := cmd.Context().Err(); err != nil {
			a.logger.Warn("interrupted, saving what was enrolled", "enrolled", i-1)
			break
		}
		if _, err := eng.Enroll(iris.Random(rng, dim)); err != nil {
			return fmt.Errorf("enroll %d: %w", i, err)
		}
		switch {
		case interactive:
			fmt.Fprintf(cmd.ErrOrStderr(), "\renrolled %d/%d", i, f.size)
			if i == f.size {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
		case i%step == 0:
			a.logger.Info("progress", "enrolled", i, "total", f.size, "elapsed", time.Since(start).Round(time.Millisecond))
		}
	}
	elapsed := time.Since(start)
	stats := eng.Index().ResetStats()

	if err := eng.Save(); err != nil {
		return err
	}

	cfg := eng.Index().Config()
	fmt.Fprintf(a.out, "snapshot:        %s\n", eng.SnapshotID())
	fmt.Fprintf(a.out, "templates:       %d (%s)\n", eng.Len(), dim)
	fmt.Fprintf(a.out, "parameters:      M=%d Mmax0=%d efConstruction=%d mL=%g\n", cfg.M, cfg.Mmax0, cfg.EfConstruction, cfg.ML)
	fmt.Fprintf(a.out, "layers:          %v\n", eng.Index().LayerSizes())
	fmt.Fprintf(a.out, "elapsed:         %s\n", elapsed.Round(time.Millisecond))
	if stats.Insertions > 0 {
		fmt.Fprintf(a.out, "distances/insert: %.1f\n", float64(stats.Distances)/float64(stats.Insertions))
	}
	return nil
}
