package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/sanonone/irishnsw/pkg/core/hnsw"
	"github.com/sanonone/irishnsw/pkg/iris"
	"github.com/sanonone/irishnsw/pkg/persistence"
)

// Enroll stores a template and returns its id.
func (e *Engine) Enroll(t iris.Template) (uint32, error) {
	if e.isClosed.Load() {
		return 0, ErrClosed
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	// Close may have started while waiting for the lock.
	if e.isClosed.Load() {
		return 0, ErrClosed
	}

	id, err := e.matcher.Enroll(t)
	if err != nil {
		return 0, err
	}
	e.dirtyCounter.Add(1)

	if e.journal != nil {
		if err := persistence.AppendValue(e.journal, journalRecord{ID: id, Vector: t.Vector()}); err != nil {
			e.logger.Error("template enrolled but not journaled, it is lost on a crash before the next save",
				"id", id, "error", err)
			return id, err
		}
	}
	return id, nil
}

// Identify returns the closest enrolled template when its distance is below threshold.
func (e *Engine) Identify(t iris.Template, ef int, threshold float64) (iris.Match, bool, error) {
	if e.isClosed.Load() {
		return iris.Match{}, false, ErrClosed
	}
	start := time.Now()
	m, found, err := e.matcher.Identify(t, ef, threshold)
	e.observe(start)
	return m, found, err
}

// TopK returns the k enrolled templates closest to t.
func (e *Engine) TopK(t iris.Template, k, ef int) ([]iris.Match, error) {
	if e.isClosed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	res, err := e.matcher.TopK(t, k, ef)
	e.observe(start)
	return res, err
}

func (e *Engine) observe(start time.Time) {
	if e.recorder != nil {
		e.recorder.ObserveSearch(time.Since(start))
	}
}

// Template returns the enrolled template with the given id.
func (e *Engine) Template(id uint32) (iris.Template, error) {
	return e.matcher.Template(id)
}

// Len returns the number of enrolled templates.
func (e *Engine) Len() int {
	return e.matcher.Index().Len()
}

// Stats returns the index counters accumulated since the last metrics flush.
func (e *Engine) Stats() hnsw.Stats {
	return e.matcher.Index().Stats()
}

// Index exposes the underlying index for read-only tooling such as experiments.
func (e *Engine) Index() *iris.Index {
	return e.matcher.Index()
}

// Matcher returns the template matcher.
func (e *Engine) Matcher() *iris.Matcher {
	return e.matcher
}

// SnapshotID returns the id of the last snapshot loaded or saved.
func (e *Engine) SnapshotID() uuid.UUID {
	e.adminMu.Lock()
	defer e.adminMu.Unlock()
	return e.snapshotID
}
