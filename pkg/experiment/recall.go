// Package experiment measures search quality: recall against an exhaustive
// scan, identification rates on noisy templates, and a baseline comparison
// with an independent HNSW implementation.
package experiment

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sanonone/irishnsw/pkg/core/hnsw"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// BruteForce returns the exact k nearest stored vectors to q by scanning
// every vector of idx. Ties are broken by id.
func BruteForce[Q, V any](idx *hnsw.Index[Q, V], dist hnsw.DistanceFunc[Q, V], q Q, k int) ([]hnsw.Neighbor, error) {
	n := idx.Len()
	all := make([]hnsw.Neighbor, 0, n)
	for id := uint32(0); int(id) < n; id++ {
		v, err := idx.Vector(id)
		if err != nil {
			return nil, err
		}
		d, err := dist(q, v)
		if err != nil {
			return nil, fmt.Errorf("distance to node %d: %w", id, err)
		}
		all = append(all, hnsw.Neighbor{Distance: d, ID: id})
	}
	slices.SortFunc(all, func(a, b hnsw.Neighbor) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return int(a.ID) - int(b.ID)
	})
	return all[:min(k, len(all))], nil
}

// Recall is the fraction of the exact result want matched by got.
// A result counts when its distance is within the k-th exact distance, so
// a different id at a tied distance is not a miss.
func Recall(got, want []hnsw.Neighbor) float64 {
	if len(want) == 0 {
		return 1
	}
	bound := want[len(want)-1].Distance
	hits := 0
	for _, n := range got {
		if n.Distance <= bound {
			hits++
		}
	}
	return float64(min(hits, len(want))) / float64(len(want))
}

// Summary aggregates one beam width of a recall sweep.
type Summary struct {
	Ef            int           `json:"ef"`
	Queries       int           `json:"queries"`
	MeanRecall    float64       `json:"mean_recall"`
	StdDev        float64       `json:"std_dev"`
	MinRecall     float64       `json:"min_recall"`
	MeanDistances float64       `json:"mean_distances"`
	Elapsed       time.Duration `json:"elapsed"`
}

// RecallSweep searches every query at each beam width in efs and compares the
// results with the exhaustive scan. Queries run on up to workers goroutines.
//
// The index counters are drained with ResetStats around every beam width to
// attribute distance evaluations, so concurrent users of the index skew
// MeanDistances.
func RecallSweep[Q, V any](ctx context.Context, idx *hnsw.Index[Q, V], dist hnsw.DistanceFunc[Q, V], queries []Q, k int, efs []int, workers int) ([]Summary, error) {
	if k <= 0 {
		return nil, &hnsw.InvalidParameterError{Name: "k", Value: k}
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries")
	}
	if workers <= 0 {
		workers = 1
	}

	exact := make([][]hnsw.Neighbor, len(queries))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, q := range queries {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res, err := BruteForce(idx, dist, q, k)
			if err != nil {
				return err
			}
			exact[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("exhaustive scan failed: %w", err)
	}

	out := make([]Summary, 0, len(efs))
	for _, ef := range efs {
		idx.ResetStats()
		start := time.Now()

		recalls := make([]float64, len(queries))
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, q := range queries {
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				got, err := idx.SearchWithEf(q, k, ef)
				if err != nil {
					return err
				}
				recalls[i] = Recall(got, exact[i])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("sweep at ef=%d failed: %w", ef, err)
		}

		stats := idx.ResetStats()
		mean, std := stat.MeanStdDev(recalls, nil)
		if len(recalls) < 2 {
			std = 0
		}
		out = append(out, Summary{
			Ef:            ef,
			Queries:       len(queries),
			MeanRecall:    mean,
			StdDev:        std,
			MinRecall:     slices.Min(recalls),
			MeanDistances: float64(stats.Distances) / float64(len(queries)),
			Elapsed:       time.Since(start),
		})
	}
	return out, nil
}
