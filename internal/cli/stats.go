package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/sanonone/irishnsw/pkg/core/hnsw"
	"github.com/sanonone/irishnsw/pkg/engine"
	"github.com/sanonone/irishnsw/pkg/iris"
	"github.com/sanonone/irishnsw/pkg/persistence"
	"github.com/spf13/cobra"
)

// LayerStats describes the population of one layer.
type LayerStats struct {
	Level     int     `json:"level"`
	Nodes     int     `json:"nodes"`
	MeanLinks float64 `json:"mean_links"`
	MaxLinks  int     `json:"max_links"`
	Isolated  int     `json:"isolated"`
}

// SnapshotStats describes a snapshot file without loading it into an index.
type SnapshotStats struct {
	Path           string            `json:"path"`
	ID             uuid.UUID         `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	Labels         map[string]string `json:"labels,omitempty"`
	Config         hnsw.Config       `json:"config"`
	Templates      int               `json:"templates"`
	EntryPoint     []uint32          `json:"entry_point"`
	Layers         []LayerStats      `json:"layers"`
	JournalRecords int               `json:"journal_records"`
	JournalTorn    bool              `json:"journal_torn,omitempty"`
}

func (a *app) statsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the parameters and layer population of the saved index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := engine.OptionsFromConfig(a.cfg, a.logger)
			if err != nil {
				return err
			}
			journal := ""
			if opts.JournalFile != "" {
				journal = filepath.Join(opts.DataDir, opts.JournalFile)
			}
			st, err := ReadSnapshotStats(filepath.Join(opts.DataDir, opts.SnapshotFile), journal)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			return st.print(a)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// ReadSnapshotStats summarizes the snapshot at path and counts the records of
// the journal at journalPath, when given.
func ReadSnapshotStats(path, journalPath string) (SnapshotStats, error) {
	snap, err := persistence.ReadSnapshotFile[iris.Vector](path)
	if errors.Is(err, os.ErrNotExist) {
		return SnapshotStats{}, fmt.Errorf("no snapshot at %s, run generate first", path)
	}
	if err != nil {
		return SnapshotStats{}, err
	}

	st := SnapshotStats{
		Path:       path,
		ID:         snap.ID,
		CreatedAt:  snap.CreatedAt,
		Labels:     snap.Labels,
		Config:     snap.State.Config(),
		Templates:  len(snap.State.Vectors),
		EntryPoint: snap.State.EntryPoint,
		Layers:     make([]LayerStats, len(snap.State.Layers)),
	}
	for lc, layer := range snap.State.Layers {
		ls := LayerStats{Level: lc, Nodes: len(layer)}
		total := 0
		for _, links := range layer {
			total += len(links)
			ls.MaxLinks = max(ls.MaxLinks, len(links))
			if len(links) == 0 {
				ls.Isolated++
			}
		}
		if ls.Nodes > 0 {
			ls.MeanLinks = float64(total) / float64(ls.Nodes)
		}
		st.Layers[lc] = ls
	}
	slices.Reverse(st.Layers)

	if journalPath != "" {
		res, err := persistence.ReplayJournal(journalPath, func([]byte) error { return nil })
		if err != nil {
			return st, fmt.Errorf("failed to read journal: %w", err)
		}
		st.JournalRecords = res.Records
		st.JournalTorn = res.Torn
	}
	return st, nil
}

func (st SnapshotStats) print(a *app) error {
	fmt.Fprintf(a.out, "snapshot:    %s\n", st.Path)
	fmt.Fprintf(a.out, "id:          %s\n", st.ID)
	fmt.Fprintf(a.out, "created:     %s\n", st.CreatedAt.Format(time.RFC3339))
	for _, k := range slices.Sorted(maps.Keys(st.Labels)) {
		fmt.Fprintf(a.out, "label:       %s=%s\n", k, st.Labels[k])
	}
	fmt.Fprintf(a.out, "parameters:  M=%d Mmax0=%d efConstruction=%d mL=%g\n",
		st.Config.M, st.Config.Mmax0, st.Config.EfConstruction, st.Config.ML)
	fmt.Fprintf(a.out, "templates:   %d\n", st.Templates)
	fmt.Fprintf(a.out, "entry point: %v\n", st.EntryPoint)
	if st.JournalRecords > 0 || st.JournalTorn {
		fmt.Fprintf(a.out, "journal:     %d records not yet in the snapshot", st.JournalRecords)
		if st.JournalTorn {
			fmt.Fprint(a.out, " (partial tail)")
		}
		fmt.Fprintln(a.out)
	}
	fmt.Fprintln(a.out)

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "LAYER\tNODES\tMEAN LINKS\tMAX LINKS\tISOLATED\t")
	for _, ls := range st.Layers {
		fmt.Fprintf(tw, "%d\t%d\t%.2f\t%d\t%d\t\n", ls.Level, ls.Nodes, ls.MeanLinks, ls.MaxLinks, ls.Isolated)
	}
	return tw.Flush()
}
