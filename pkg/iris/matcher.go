package iris

import (
	"fmt"

	"github.com/sanonone/irishnsw/pkg/core/hnsw"
)

// Index is an HNSW index over iris templates.
type Index = hnsw.Index[Query, Vector]

// NewIndex creates an empty iris index.
func NewIndex(cfg hnsw.Config, opts ...hnsw.Option) (*Index, error) {
	return hnsw.New(cfg, Distance, QueryToVector, opts...)
}

// Match is an identification result.
type Match struct {
	ID       uint32  `json:"id"`
	Distance float64 `json:"distance"`
}

// Matcher enrolls and identifies templates of one shape.
type Matcher struct {
	dim         Dim
	maxRotation int
	index       *Index
}

// NewMatcher wraps index. Every template passed to the matcher must have shape dim.
func NewMatcher(index *Index, dim Dim, maxRotation int) (*Matcher, error) {
	if err := dim.Validate(); err != nil {
		return nil, err
	}
	if maxRotation < 0 || maxRotation >= dim.Cols {
		return nil, fmt.Errorf("invalid max rotation %d for %d columns", maxRotation, dim.Cols)
	}
	return &Matcher{dim: dim, maxRotation: maxRotation, index: index}, nil
}

// Index returns the underlying index.
func (m *Matcher) Index() *Index { return m.index }

// Dim returns the template shape.
func (m *Matcher) Dim() Dim { return m.dim }

// MaxRotation returns the rotation range searched on every comparison.
func (m *Matcher) MaxRotation() int { return m.maxRotation }

// Query builds the rotated query for t.
func (m *Matcher) Query(t Template) (Query, error) {
	if t.Dim != m.dim {
		return nil, fmt.Errorf("%w: template %s, matcher %s", ErrDimensionMismatch, t.Dim, m.dim)
	}
	if len(t.Code) != m.dim.Words() || len(t.Mask) != m.dim.Words() {
		return nil, fmt.Errorf("%w: template holds %d/%d words, want %d",
			ErrDimensionMismatch, len(t.Code), len(t.Mask), m.dim.Words())
	}
	return MakeQuery(t, m.maxRotation), nil
}

// Enroll stores t and returns its id.
func (m *Matcher) Enroll(t Template) (uint32, error) {
	q, err := m.Query(t)
	if err != nil {
		return 0, err
	}
	return m.index.Insert(q)
}

// TopK returns the k enrolled templates closest to t.
func (m *Matcher) TopK(t Template, k, ef int) ([]Match, error) {
	q, err := m.Query(t)
	if err != nil {
		return nil, err
	}
	res, err := m.index.SearchWithEf(q, k, ef)
	if err != nil {
		return nil, err
	}
	out := make([]Match, len(res))
	for i, n := range res {
		out[i] = Match{ID: n.ID, Distance: n.Distance}
	}
	return out, nil
}

// Identify returns the nearest enrolled template when it is closer than threshold.
func (m *Matcher) Identify(t Template, ef int, threshold float64) (Match, bool, error) {
	res, err := m.TopK(t, 1, ef)
	if err != nil || len(res) == 0 {
		return Match{}, false, err
	}
	if res[0].Distance < threshold {
		return res[0], true, nil
	}
	return res[0], false, nil
}

// Template returns the enrolled template with the given id.
func (m *Matcher) Template(id uint32) (Template, error) {
	v, err := m.index.Vector(id)
	if err != nil {
		return Template{}, err
	}
	return FromVector(m.dim, v)
}
