package hnsw

import (
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Config holds the construction parameters of an index.
type Config struct {
	// M is the maximum number of neighbors per node on layers above 0,
	// and the number of neighbors a new node links to on every layer.
	M int `yaml:"m" json:"m"`
	// Mmax0 is the maximum number of neighbors per node on layer 0.
	// Zero means "same as M".
	Mmax0 int `yaml:"m_max0" json:"m_max0"`
	// EfConstruction is the beam width used while inserting. It is also the
	// default beam width of a search when none is given.
	EfConstruction int `yaml:"ef_construction" json:"ef_construction"`
	// ML is the level decay constant: a new node gets level floor(-ln(U) * ML).
	// A common choice is 1/ln(M).
	ML float64 `yaml:"m_l" json:"m_l"`
}

// DefaultConfig returns the parameters used by the biometric demo: M=128,
// efConstruction=128, mL=0.3 and Mmax0 equal to M.
func DefaultConfig() Config {
	return Config{
		M:              128,
		Mmax0:          128,
		EfConstruction: 128,
		ML:             0.3,
	}
}

// NormalizedML returns 1/ln(m), rounded to two decimals.
func NormalizedML(m int) float64 {
	if m < 2 {
		return 0
	}
	return math.Round(100/math.Log(float64(m))) / 100
}

func (c Config) withDefaults() Config {
	if c.Mmax0 == 0 {
		c.Mmax0 = c.M
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.M < 1:
		return &InvalidParameterError{Name: "M", Value: c.M}
	case c.Mmax0 < 1:
		return &InvalidParameterError{Name: "Mmax0", Value: c.Mmax0}
	case c.EfConstruction < 1:
		return &InvalidParameterError{Name: "efConstruction", Value: c.EfConstruction}
	case c.ML < 0 || math.IsNaN(c.ML) || math.IsInf(c.ML, 0):
		return &InvalidParameterError{Name: "mL", Value: c.ML}
	}
	return nil
}

type options struct {
	logger *slog.Logger
	rng    *rand.Rand
	tracer Tracer
}

// Option customizes an Index at construction time.
type Option func(o *options)

// WithLogger sets the logger used for graph diagnostics. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRand sets the random source used for level assignment.
// The source is only used under the index write lock.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		if r != nil {
			o.rng = r
		}
	}
}

// WithSeed is a shorthand for WithRand(rand.New(rand.NewSource(seed))).
func WithSeed(seed int64) Option {
	return WithRand(rand.New(rand.NewSource(seed))) // nolint gosec
}

// WithTracer installs a search tracer. Tracing is off when no tracer is set.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

func buildOptions(optFns []Option) options {
	o := options{
		logger: slog.New(slog.DiscardHandler),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())), // nolint gosec
	}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}
