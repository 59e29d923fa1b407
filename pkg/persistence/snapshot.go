package persistence

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/google/uuid"
	"github.com/sanonone/irishnsw/pkg/core/hnsw"
)

// Snapshot is the on-disk envelope of an index state.
type Snapshot[V any] struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Labels    map[string]string
	State     hnsw.State[V]
}

// NewSnapshot wraps state with a fresh id and timestamp.
func NewSnapshot[V any](state hnsw.State[V], labels map[string]string) Snapshot[V] {
	return Snapshot[V]{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Labels:    labels,
		State:     state,
	}
}

// SaveSnapshot gob-encodes snap and writes it as a single frame.
func SaveSnapshot[V any](w io.Writer, snap Snapshot[V], codec Codec) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if _, err := NewFrameWriter(w, codec).WriteFrame(KindSnapshot, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write snapshot frame: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot frame written by SaveSnapshot.
func LoadSnapshot[V any](r io.Reader) (Snapshot[V], error) {
	var snap Snapshot[V]
	frame, err := ReadFrame(r)
	if err == io.EOF {
		return snap, ErrIncompleteFrame
	}
	if err != nil {
		return snap, err
	}
	if frame.Kind != KindSnapshot {
		return snap, fmt.Errorf("unexpected frame kind %d, want snapshot", frame.Kind)
	}
	if err := gob.NewDecoder(bytes.NewReader(frame.Payload)).Decode(&snap); err != nil {
		return snap, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// WriteSnapshotFile saves snap to path. The previous file is replaced
// atomically, so a crash never leaves a partial snapshot behind.
func WriteSnapshotFile[V any](path string, snap Snapshot[V], codec Codec) error {
	f, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer f.Cleanup()

	bw := bufio.NewWriter(f)
	if err := SaveSnapshot(bw, snap, codec); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ReadSnapshotFile loads the snapshot stored at path.
func ReadSnapshotFile[V any](path string) (Snapshot[V], error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot[V]{}, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()
	return LoadSnapshot[V](bufio.NewReader(f))
}
