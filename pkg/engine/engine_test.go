package engine

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sanonone/irishnsw/pkg/config"
	"github.com/sanonone/irishnsw/pkg/core/hnsw"
	"github.com/sanonone/irishnsw/pkg/iris"
	"github.com/sanonone/irishnsw/pkg/logging"
	"github.com/sanonone/irishnsw/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(dir string) Options {
	opts := DefaultOptions(dir)
	opts.Dim = iris.FastDim()
	opts.MaxRotation = iris.FastMaxRotation
	opts.Index = hnsw.Config{M: 16, EfConstruction: 32, ML: 0.3}
	opts.Seed = 1
	opts.AutoSaveInterval = 0
	opts.MetricsName = ""
	opts.Logger = logging.Nop()
	return opts
}

func enrollRandom(t *testing.T, e *Engine, rng *rand.Rand, n int) []iris.Template {
	t.Helper()
	out := make([]iris.Template, n)
	for i := range out {
		out[i] = iris.Random(rng, iris.FastDim())
		_, err := e.Enroll(out[i])
		require.NoError(t, err)
	}
	return out
}

func TestEnrollIdentify(t *testing.T) {
	e, err := Open(testOptions(t.TempDir()))
	require.NoError(t, err)
	defer e.Close()

	rng := rand.New(rand.NewSource(1))
	tpls := enrollRandom(t, e, rng, 50)
	assert.Equal(t, 50, e.Len())

	query := iris.WithNoise(rng, tpls[9], 0.2)
	m, found, err := e.Identify(query, 32, 0.36)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint32(9), m.ID)

	top, err := e.TopK(query, 3, 32)
	require.NoError(t, err)
	assert.Len(t, top, 3)

	got, err := e.Template(9)
	require.NoError(t, err)
	assert.Equal(t, tpls[9].Code, got.Code)

	assert.Equal(t, int64(50), e.Stats().Insertions)
}

func TestSaveAndReopen(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(2))

	e, err := Open(testOptions(dir))
	require.NoError(t, err)
	tpls := enrollRandom(t, e, rng, 30)
	require.NoError(t, e.Save())
	saved := e.SnapshotID()
	assert.NotEqual(t, uuid.Nil, saved)
	require.NoError(t, e.Close())

	e, err = Open(testOptions(dir))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, 30, e.Len())
	assert.Equal(t, saved, e.SnapshotID())

	m, found, err := e.Identify(iris.WithNoise(rng, tpls[21], 0.15), 32, 0.36)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint32(21), m.ID)
}

func TestJournalRecoversUnsavedEnrollments(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(3))

	e, err := Open(testOptions(dir))
	require.NoError(t, err)
	enrollRandom(t, e, rng, 10)
	require.NoError(t, e.Save())
	late := enrollRandom(t, e, rng, 5)

	// Simulate a crash: flush the journal but skip Close.
	require.NoError(t, e.journal.Sync())

	e2, err := Open(testOptions(dir))
	require.NoError(t, err)
	defer e2.Close()

	assert.Equal(t, 15, e2.Len())
	got, err := e2.Template(12)
	require.NoError(t, err)
	assert.Equal(t, late[2].Code, got.Code)
}

func TestJournalSkipsRecordsAlreadyInSnapshot(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	rng := rand.New(rand.NewSource(11))

	e, err := Open(opts)
	require.NoError(t, err)
	enrolled := enrollRandom(t, e, rng, 3)
	require.NoError(t, e.journal.Sync())

	// Keep the journal as it was before the save truncated it, as after a
	// crash between writing the snapshot and truncating the journal.
	stale, err := os.ReadFile(e.journalPath)
	require.NoError(t, err)
	require.NotEmpty(t, stale)
	require.NoError(t, e.Save())
	require.NoError(t, e.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, opts.JournalFile), stale, 0o644))

	e, err = Open(opts)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Len())
	got, err := e.Template(2)
	require.NoError(t, err)
	assert.Equal(t, enrolled[2].Code, got.Code)

	// New enrollments continue after the snapshot ids.
	id, err := e.Enroll(iris.Random(rng, iris.FastDim()))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), id)
	require.NoError(t, e.journal.Sync())

	e2, err := Open(opts)
	require.NoError(t, err)
	defer e2.Close()
	assert.Equal(t, 4, e2.Len())
}

func TestJournalGapFailsOpen(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)

	e, err := Open(opts)
	require.NoError(t, err)
	enrollRandom(t, e, rand.New(rand.NewSource(12)), 2)
	require.NoError(t, e.Save())
	require.NoError(t, e.Close())

	j, err := persistence.OpenJournal(filepath.Join(dir, opts.JournalFile), opts.Codec)
	require.NoError(t, err)
	t5 := iris.Random(rand.New(rand.NewSource(13)), iris.FastDim())
	require.NoError(t, persistence.AppendValue(j, journalRecord{ID: 5, Vector: t5.Vector()}))
	require.NoError(t, j.Close())

	_, err = Open(opts)
	assert.ErrorContains(t, err, "expected 2")
}

func TestEnrollDuringCloseIsSavedOrRejected(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.JournalFile = ""

	e, err := Open(opts)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		accepted int
		wg       sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 50; i++ {
				_, err := e.Enroll(iris.Random(rng, iris.FastDim()))
				if err != nil {
					assert.ErrorIs(t, err, ErrClosed)
					return
				}
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(int64(20 + w))
	}
	require.NoError(t, e.Close())
	wg.Wait()

	e, err = Open(opts)
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, accepted, e.Len(), "every accepted enrollment survives close")
}

func TestCloseSavesDirtyState(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.JournalFile = ""

	e, err := Open(opts)
	require.NoError(t, err)
	enrollRandom(t, e, rand.New(rand.NewSource(4)), 8)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "close is idempotent")

	_, err = e.Enroll(iris.Random(rand.New(rand.NewSource(5)), iris.FastDim()))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = os.Stat(filepath.Join(dir, opts.SnapshotFile))
	require.NoError(t, err)

	e, err = Open(opts)
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, 8, e.Len())
}

func TestOpenRejectsForeignSnapshot(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(testOptions(dir))
	require.NoError(t, err)
	enrollRandom(t, e, rand.New(rand.NewSource(6)), 3)
	require.NoError(t, e.Close())

	opts := testOptions(dir)
	opts.Dim = iris.Dim{Codes: 1, Rows: 16, Cols: 50}
	_, err = Open(opts)
	assert.ErrorIs(t, err, iris.ErrDimensionMismatch)
}

func TestEnrollRejectsWrongShape(t *testing.T) {
	e, err := Open(testOptions(t.TempDir()))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Enroll(iris.Random(rand.New(rand.NewSource(7)), iris.DefaultDim()))
	assert.ErrorIs(t, err, iris.ErrDimensionMismatch)
	assert.Zero(t, e.Len())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.UseFastIris()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Codec = "lz4"
	cfg.Storage.Journal = false
	cfg.Index.M = 24

	opts, err := OptionsFromConfig(cfg, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, persistence.CodecLZ4, opts.Codec)
	assert.Empty(t, opts.JournalFile)
	assert.Equal(t, 24, opts.Index.M)
	assert.Equal(t, iris.FastDim(), opts.Dim)
	assert.Equal(t, iris.FastMaxRotation, opts.MaxRotation)

	cfg.Storage.Codec = "brotli"
	_, err = OptionsFromConfig(cfg, nil)
	assert.ErrorIs(t, err, persistence.ErrUnsupportedCodec)
}
