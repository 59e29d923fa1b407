package experiment

import (
	"fmt"
	"slices"
	"time"

	coderhnsw "github.com/coder/hnsw"
	"github.com/sanonone/irishnsw/pkg/core/distance"
	"gonum.org/v1/gonum/stat"
)

// BaselineParams configure the reference graph.
type BaselineParams struct {
	M        int     `json:"m"`
	Ml       float64 `json:"ml"`
	EfSearch int     `json:"ef_search"`
	K        int     `json:"k"`
}

// BaselineResult is the recall of the reference graph.
type BaselineResult struct {
	Params     BaselineParams `json:"params"`
	MeanRecall float64        `json:"mean_recall"`
	StdDev     float64        `json:"std_dev"`
	BuildTime  time.Duration  `json:"build_time"`
	SearchTime time.Duration  `json:"search_time"`
}

// BaselineRecall indexes bit vectors with github.com/coder/hnsw and measures
// its recall@K against an exhaustive Hamming scan. Bits are expanded to 0/1
// floats, where Euclidean distance is the square root of Hamming distance, so
// both rank neighbors identically.
func BaselineRecall(vectors, queries [][]uint64, p BaselineParams) (BaselineResult, error) {
	res := BaselineResult{Params: p}
	if len(vectors) == 0 || len(queries) == 0 {
		return res, fmt.Errorf("baseline needs vectors and queries")
	}

	start := time.Now()
	g := coderhnsw.NewGraph[uint32]()
	g.Distance = coderhnsw.EuclideanDistance
	if p.M > 0 {
		g.M = p.M
	}
	if p.Ml > 0 {
		g.Ml = p.Ml
	}
	if p.EfSearch > 0 {
		g.EfSearch = p.EfSearch
	}
	for i, v := range vectors {
		g.Add(coderhnsw.MakeNode(uint32(i), distance.ToBinaryFloats(v)))
	}
	res.BuildTime = time.Since(start)

	start = time.Now()
	recalls := make([]float64, len(queries))
	for qi, q := range queries {
		exact, err := exactHamming(vectors, q, p.K)
		if err != nil {
			return res, err
		}
		nodes := g.Search(distance.ToBinaryFloats(q), p.K)

		bound := exact[len(exact)-1]
		hits := 0
		for _, n := range nodes {
			d, err := distance.HammingWords(q, vectors[n.Key])
			if err != nil {
				return res, err
			}
			if d <= bound {
				hits++
			}
		}
		recalls[qi] = float64(min(hits, len(exact))) / float64(len(exact))
	}
	res.SearchTime = time.Since(start)

	if len(recalls) > 1 {
		res.MeanRecall, res.StdDev = stat.MeanStdDev(recalls, nil)
	} else {
		res.MeanRecall = recalls[0]
	}
	return res, nil
}

// exactHamming returns the k smallest Hamming distances from q, ascending.
func exactHamming(vectors [][]uint64, q []uint64, k int) ([]float64, error) {
	ds := make([]float64, len(vectors))
	for i, v := range vectors {
		d, err := distance.HammingWords(q, v)
		if err != nil {
			return nil, err
		}
		ds[i] = d
	}
	slices.Sort(ds)
	return ds[:min(k, len(ds))], nil
}
