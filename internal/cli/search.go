package cli

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"text/tabwriter"
	"time"

	"github.com/sanonone/irishnsw/pkg/iris"
	"github.com/spf13/cobra"
)

type searchFlags struct {
	id        int
	k         int
	ef        int
	noise     float64
	threshold float64
	rotate    bool
	seed      int64
	asJSON    bool
}

// probeResult is one search as printed by the search command.
type probeResult struct {
	Target     uint32        `json:"target"`
	Rotation   int           `json:"rotation"`
	Noise      float64       `json:"noise"`
	Matches    []iris.Match  `json:"matches"`
	Identified bool          `json:"identified"`
	Correct    bool          `json:"correct"`
	Elapsed    time.Duration `json:"elapsed"`
}

func (a *app) searchCmd() *cobra.Command {
	var f searchFlags

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the saved index with a noisy copy of a stored template",
		Long: `Load the database, distort a stored template with bit noise and an
optional rotation, and print the nearest templates.

Examples:
  irishnsw search
  irishnsw search --id 42 --noise 0.25 --rotate
  irishnsw search --k 10 --ef 128 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fl := cmd.Flags()
			if !fl.Changed("k") {
				f.k = a.cfg.Search.K
			}
			if !fl.Changed("ef") {
				f.ef = a.cfg.Search.Ef
			}
			if !fl.Changed("noise") {
				f.noise = a.cfg.Search.NoiseLevel
			}
			if !fl.Changed("threshold") {
				f.threshold = a.cfg.Search.Threshold
			}
			return a.runSearch(f)
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&f.id, "id", -1, "template to probe (-1 picks one at random)")
	fl.IntVarP(&f.k, "k", "k", 0, "number of results")
	fl.IntVar(&f.ef, "ef", 0, "beam width")
	fl.Float64Var(&f.noise, "noise", 0, "probability of flipping each code bit")
	fl.Float64Var(&f.threshold, "threshold", 0, "identification threshold")
	fl.BoolVar(&f.rotate, "rotate", false, "apply a random rotation within the configured range")
	fl.Int64Var(&f.seed, "seed", 0, "probe seed (0 means time-seeded)")
	fl.BoolVar(&f.asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) runSearch(f searchFlags) error {
	if f.noise < 0 || f.noise > 1 {
		return fmt.Errorf("noise must be in [0, 1], got %g", f.noise)
	}

	eng, err := a.openEngine(false)
	if err != nil {
		return err
	}
	defer eng.Close()

	n := eng.Len()
	if n == 0 {
		return fmt.Errorf("%s holds no templates, run generate first", a.cfg.Storage.DataDir)
	}

	seed := f.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	target := uint32(rng.Intn(n))
	if f.id >= 0 {
		target = uint32(f.id)
	}
	tpl, err := eng.Template(target)
	if err != nil {
		return err
	}

	res := probeResult{Target: target, Noise: f.noise}
	if maxRot := eng.Matcher().MaxRotation(); f.rotate && maxRot > 0 {
		res.Rotation = rng.Intn(2*maxRot+1) - maxRot
	}
	probe := iris.WithNoise(rng, tpl.Rotated(res.Rotation), f.noise)

	start := time.Now()
	res.Matches, err = eng.TopK(probe, f.k, f.ef)
	if err != nil {
		return err
	}
	res.Elapsed = time.Since(start)
	if len(res.Matches) > 0 && res.Matches[0].Distance < f.threshold {
		res.Identified = true
		res.Correct = res.Matches[0].ID == target
	}

	if f.asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(a.out, "probe: template %d, rotation %+d, noise %.2f, %s\n\n", target, res.Rotation, f.noise, res.Elapsed.Round(time.Microsecond))
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tDISTANCE\t")
	for i, m := range res.Matches {
		mark := ""
		if m.ID == target {
			mark = "<- target"
		}
		fmt.Fprintf(tw, "%d\t%d\t%.4f\t%s\n", i+1, m.ID, m.Distance, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	switch {
	case res.Correct:
		fmt.Fprintf(a.out, "\nidentified template %d under threshold %.2f\n", target, f.threshold)
	case res.Identified:
		fmt.Fprintf(a.out, "\nfalse match: template %d under threshold %.2f\n", res.Matches[0].ID, f.threshold)
	default:
		fmt.Fprintf(a.out, "\nno template under threshold %.2f\n", f.threshold)
	}
	return nil
}
