package experiment

import (
	"fmt"
	"math/rand"

	"github.com/sanonone/irishnsw/pkg/iris"
	"gonum.org/v1/gonum/stat"
)

// ThresholdParams drive an identification run.
type ThresholdParams struct {
	Queries    int     `json:"queries"`
	Impostors  int     `json:"impostors"`
	K          int     `json:"k"`
	Ef         int     `json:"ef"`
	Threshold  float64 `json:"threshold"`
	NoiseLevel float64 `json:"noise_level"`
	// Rotate applies a random rotation within the matcher's range to every probe.
	Rotate bool `json:"rotate"`
}

// ThresholdResult counts the outcomes of an identification run.
type ThresholdResult struct {
	Params ThresholdParams `json:"params"`
	// FoundInTopK counts genuine probes whose template is among the K results.
	FoundInTopK int `json:"found_in_top_k"`
	// UnderThreshold counts genuine probes whose nearest result is under the threshold.
	UnderThreshold int `json:"under_threshold"`
	// Identified counts genuine probes matched to the right template under the threshold.
	Identified int `json:"identified"`
	// FalseMatches counts impostor probes matched to any template.
	FalseMatches int     `json:"false_matches"`
	MeanDistance float64 `json:"mean_distance"`
	StdDistance  float64 `json:"std_distance"`
}

// ThresholdRun probes m with noisy copies of randomly chosen enrolled
// templates, then with fresh random templates that were never enrolled.
func ThresholdRun(m *iris.Matcher, rng *rand.Rand, p ThresholdParams) (ThresholdResult, error) {
	res := ThresholdResult{Params: p}
	n := m.Index().Len()
	if n == 0 {
		return res, fmt.Errorf("no enrolled templates")
	}

	dists := make([]float64, 0, p.Queries)
	for i := 0; i < p.Queries; i++ {
		target := uint32(rng.Intn(n))
		tpl, err := m.Template(target)
		if err != nil {
			return res, err
		}
		if p.Rotate && m.MaxRotation() > 0 {
			tpl = tpl.Rotated(rng.Intn(2*m.MaxRotation()+1) - m.MaxRotation())
		}
		probe := iris.WithNoise(rng, tpl, p.NoiseLevel)

		top, err := m.TopK(probe, p.K, p.Ef)
		if err != nil {
			return res, err
		}
		if len(top) == 0 {
			continue
		}
		for _, r := range top {
			if r.ID == target {
				res.FoundInTopK++
				break
			}
		}
		nearest := top[0]
		dists = append(dists, nearest.Distance)
		if nearest.Distance < p.Threshold {
			res.UnderThreshold++
			if nearest.ID == target {
				res.Identified++
			}
		}
	}

	for i := 0; i < p.Impostors; i++ {
		_, found, err := m.Identify(iris.Random(rng, m.Dim()), p.Ef, p.Threshold)
		if err != nil {
			return res, err
		}
		if found {
			res.FalseMatches++
		}
	}

	if len(dists) > 1 {
		res.MeanDistance, res.StdDistance = stat.MeanStdDev(dists, nil)
	} else if len(dists) == 1 {
		res.MeanDistance = dists[0]
	}
	return res, nil
}

// EnrollRandom enrolls n random templates and returns their ids.
func EnrollRandom(m *iris.Matcher, rng *rand.Rand, n int) ([]uint32, error) {
	ids := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		id, err := m.Enroll(iris.Random(rng, m.Dim()))
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
