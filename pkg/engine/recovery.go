package engine

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sanonone/irishnsw/pkg/iris"
	"github.com/sanonone/irishnsw/pkg/persistence"
)

const (
	labelDim         = "dim"
	labelMaxRotation = "max_rotation"
)

// loadSnapshot restores the index from the snapshot file if one exists.
func (e *Engine) loadSnapshot() error {
	if _, err := os.Stat(e.snapPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	start := time.Now()
	snap, err := persistence.ReadSnapshotFile[iris.Vector](e.snapPath)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if dim := snap.Labels[labelDim]; dim != "" && dim != e.opts.Dim.String() {
		return fmt.Errorf("%w: snapshot holds %s templates, engine expects %s",
			iris.ErrDimensionMismatch, dim, e.opts.Dim)
	}
	if rot := snap.Labels[labelMaxRotation]; rot != "" && rot != strconv.Itoa(e.opts.MaxRotation) {
		e.logger.Warn("snapshot built with a different max rotation", "snapshot", rot, "engine", e.opts.MaxRotation)
	}

	if err := e.matcher.Index().Restore(snap.State); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	e.snapshotID = snap.ID

	e.logger.Info("snapshot loaded",
		"id", snap.ID,
		"created_at", snap.CreatedAt,
		"templates", len(snap.State.Vectors),
		"duration", time.Since(start))
	return nil
}

// journalRecord is one enrollment as written to the journal.
type journalRecord struct {
	ID     uint32
	Vector iris.Vector
}

// replayJournal re-enrolls the templates recorded after the snapshot.
// Records the snapshot already holds are skipped; they remain when a crash
// happened between writing a snapshot and truncating the journal.
func (e *Engine) replayJournal() error {
	idx := e.matcher.Index()
	base := uint32(idx.Len())
	skipped := 0

	res, err := persistence.ReplayValues(e.journalPath, func(rec journalRecord) error {
		if rec.ID < base {
			skipped++
			return nil
		}
		if next := uint32(idx.Len()); rec.ID != next {
			return fmt.Errorf("journal record for id %d, expected %d", rec.ID, next)
		}
		t, err := iris.FromVector(e.opts.Dim, rec.Vector)
		if err != nil {
			return err
		}
		id, err := e.matcher.Enroll(t)
		if err != nil {
			return err
		}
		if id != rec.ID {
			return fmt.Errorf("journal replay assigned id %d, recorded %d", id, rec.ID)
		}
		e.dirtyCounter.Add(1)
		return nil
	})
	if err != nil {
		return err
	}
	if res.Torn {
		e.logger.Warn("journal ends with a partial record, ignored", "path", e.journalPath)
	}
	if skipped > 0 {
		e.logger.Warn("journal records already in the snapshot, skipped", "records", skipped)
	}
	if res.Records > skipped {
		e.logger.Info("journal replayed", "records", res.Records-skipped)
	}
	return nil
}

// Save writes a snapshot and truncates the journal.
func (e *Engine) Save() error {
	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	start := time.Now()
	snap := persistence.NewSnapshot(e.matcher.Index().Snapshot(), map[string]string{
		labelDim:         e.opts.Dim.String(),
		labelMaxRotation: strconv.Itoa(e.opts.MaxRotation),
	})

	if err := persistence.WriteSnapshotFile(e.snapPath, snap, e.opts.Codec); err != nil {
		return err
	}
	if e.journal != nil {
		if err := e.journal.Truncate(); err != nil {
			return fmt.Errorf("failed to truncate journal: %w", err)
		}
	}

	e.snapshotID = snap.ID
	e.dirtyCounter.Store(0)
	e.lastSaveTime = time.Now()

	e.logger.Info("snapshot saved", "id", snap.ID, "templates", len(snap.State.Vectors), "duration", time.Since(start))
	return nil
}

// LastSave returns when the last snapshot was written.
func (e *Engine) LastSave() time.Time {
	e.adminMu.Lock()
	defer e.adminMu.Unlock()
	return e.lastSaveTime
}
