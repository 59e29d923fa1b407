// Package engine provides the embedded iris identification database.
//
// It ties an in-memory HNSW index over iris templates to on-disk
// persistence: a compressed snapshot of the whole graph plus a journal of the
// templates enrolled since that snapshot.
//
// Basic usage:
//
//	opts := engine.DefaultOptions("./data")
//	db, err := engine.Open(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sanonone/irishnsw/pkg/core/hnsw"
	"github.com/sanonone/irishnsw/pkg/iris"
	"github.com/sanonone/irishnsw/pkg/metrics"
	"github.com/sanonone/irishnsw/pkg/persistence"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("engine closed")

// Options configures an Engine.
type Options struct {
	// DataDir holds the snapshot and journal files. Created if missing.
	DataDir string

	// SnapshotFile is the snapshot name inside DataDir.
	SnapshotFile string

	// JournalFile is the journal name inside DataDir. Empty disables the
	// journal: enrollments since the last Save are lost on a crash.
	JournalFile string

	// Codec compresses snapshots and journal records.
	Codec persistence.Codec

	// Index holds the graph parameters of a new database. A loaded snapshot
	// keeps the parameters it was built with.
	Index hnsw.Config

	// Dim and MaxRotation describe the templates.
	Dim         iris.Dim
	MaxRotation int

	// Seed seeds level assignment. Zero means time-seeded.
	Seed int64

	// AutoSaveInterval triggers a background Save when at least
	// AutoSaveThreshold enrollments happened since the last one.
	// Zero disables background saves.
	AutoSaveInterval  time.Duration
	AutoSaveThreshold int64

	// MetricsName labels the Prometheus series of this engine.
	// Empty disables metrics.
	MetricsName string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the standard configuration.
//
// Defaults:
//   - full size templates (2x32x200, rotation 15)
//   - M=128, efConstruction=128, mL=0.3
//   - zstd snapshots, journal enabled
//   - auto-save every 5 minutes when at least 1000 templates were enrolled
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:           dataDir,
		SnapshotFile:      "index.snap",
		JournalFile:       "journal.log",
		Codec:             persistence.CodecZstd,
		Index:             hnsw.DefaultConfig(),
		Dim:               iris.DefaultDim(),
		MaxRotation:       iris.DefaultMaxRotation,
		AutoSaveInterval:  5 * time.Minute,
		AutoSaveThreshold: 1000,
		MetricsName:       "iris",
	}
}

// Engine is an iris template database.
//
// Use Open to initialize an Engine and Close to shut it down.
type Engine struct {
	matcher  *iris.Matcher
	journal  *persistence.Journal
	recorder *metrics.Recorder
	logger   *slog.Logger

	opts        Options
	snapPath    string
	journalPath string

	// writeMu orders enrollments so journal records follow id order, and
	// keeps Save from truncating records the snapshot does not hold.
	writeMu sync.Mutex
	// adminMu serializes Save.
	adminMu sync.Mutex

	snapshotID   uuid.UUID
	dirtyCounter atomic.Int64
	lastSaveTime time.Time // guarded by adminMu

	closed    chan struct{}
	closeOnce sync.Once
	isClosed  atomic.Bool
	wg        sync.WaitGroup
}

// Open initializes an Engine.
//
// It performs the following actions:
// 1. Creates DataDir if missing.
// 2. Loads the snapshot if available.
// 3. Replays the journal to recover later enrollments.
// 4. Starts the background auto-save loop.
func Open(opts Options) (*Engine, error) {
	if err := opts.Dim.Validate(); err != nil {
		return nil, err
	}
	if opts.SnapshotFile == "" {
		return nil, fmt.Errorf("snapshot file name is required")
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")

	idxOpts := []hnsw.Option{hnsw.WithLogger(logger)}
	if opts.Seed != 0 {
		idxOpts = append(idxOpts, hnsw.WithSeed(opts.Seed))
	}
	idx, err := iris.NewIndex(opts.Index, idxOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	matcher, err := iris.NewMatcher(idx, opts.Dim, opts.MaxRotation)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		matcher:      matcher,
		logger:       logger,
		opts:         opts,
		snapPath:     filepath.Join(opts.DataDir, opts.SnapshotFile),
		lastSaveTime: time.Now(),
		closed:       make(chan struct{}),
	}
	if opts.MetricsName != "" {
		e.recorder = metrics.NewRecorder(opts.MetricsName)
	}

	if err := e.loadSnapshot(); err != nil {
		return nil, err
	}

	if opts.JournalFile != "" {
		e.journalPath = filepath.Join(opts.DataDir, opts.JournalFile)
		if err := e.replayJournal(); err != nil {
			return nil, fmt.Errorf("failed to replay journal: %w", err)
		}
		j, err := persistence.OpenJournal(e.journalPath, opts.Codec)
		if err != nil {
			return nil, err
		}
		e.journal = j
	}

	e.FlushMetrics()

	if opts.AutoSaveInterval > 0 {
		e.wg.Add(1)
		go e.backgroundTasks()
	}

	logger.Info("engine ready", "templates", idx.Len(), "layers", idx.NumLayers(), "dim", opts.Dim.String())
	return e, nil
}

// Close stops background tasks, saves a snapshot when there are unsaved
// enrollments and closes the journal.
func (e *Engine) Close() error {
	var err error

	e.closeOnce.Do(func() {
		close(e.closed)
		e.wg.Wait()

		// Reject new enrollments, then wait for the one in flight.
		e.isClosed.Store(true)
		e.writeMu.Lock()
		e.writeMu.Unlock() //nolint:staticcheck

		if e.dirtyCounter.Load() > 0 {
			err = e.Save()
		}

		if e.journal != nil {
			err = errors.Join(err, e.journal.Close())
		}
	})
	return err
}

func (e *Engine) backgroundTasks() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.AutoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.checkMaintenance()
		}
	}
}

// checkMaintenance saves when the auto-save policy says so and publishes metrics.
func (e *Engine) checkMaintenance() {
	dirty := e.dirtyCounter.Load()
	if dirty > 0 && dirty >= e.opts.AutoSaveThreshold {
		if err := e.Save(); err != nil {
			e.logger.Error("background snapshot failed", "error", err)
		}
	} else if e.journal != nil {
		if err := e.journal.Flush(); err != nil {
			e.logger.Error("background journal flush failed", "error", err)
		}
	}
	e.FlushMetrics()
}

// FlushMetrics drains the index counters into Prometheus. It is a no-op when
// metrics are disabled.
func (e *Engine) FlushMetrics() {
	if e.recorder == nil {
		return
	}
	e.recorder.Flush(e.matcher.Index().ResetStats())
}
