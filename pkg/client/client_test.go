package client

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sanonone/irishnsw/internal/server"
	"github.com/sanonone/irishnsw/pkg/config"
	"github.com/sanonone/irishnsw/pkg/core/hnsw"
	"github.com/sanonone/irishnsw/pkg/engine"
	"github.com/sanonone/irishnsw/pkg/experiment"
	"github.com/sanonone/irishnsw/pkg/iris"
	"github.com/sanonone/irishnsw/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, templates int) *Client {
	t.Helper()
	opts := engine.DefaultOptions(t.TempDir())
	opts.Dim = iris.FastDim()
	opts.MaxRotation = iris.FastMaxRotation
	opts.Index = hnsw.Config{M: 16, EfConstruction: 32, ML: 0.3}
	opts.Seed = 1
	opts.AutoSaveInterval = 0
	opts.MetricsName = "client_test"
	opts.Logger = logging.Nop()

	eng, err := engine.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < templates; i++ {
		_, err := eng.Enroll(iris.Random(rng, opts.Dim))
		require.NoError(t, err)
	}

	srv := server.NewServer(eng, "", config.DefaultConfig().Search, logging.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL).WithHTTPClient(ts.Client())
}

func TestClientEndpoints(t *testing.T) {
	c := newClient(t, 25)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, stats.Templates)

	noise := 0.05
	probe, err := c.Probe(ctx, server.ProbeRequest{ID: 3, Noise: &noise, K: 2, Ef: 16, Seed: 1})
	require.NoError(t, err)
	require.Len(t, probe.Matches, 2)
	assert.True(t, probe.Identified)
	assert.Equal(t, uint32(3), probe.Matches[0].ID)

	saved, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, saved.Templates)
}

func TestClientAPIError(t *testing.T) {
	c := newClient(t, 1)

	_, err := c.Probe(context.Background(), server.ProbeRequest{ID: 10})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "out of range")

	_, err = c.GetTask(context.Background(), "missing")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClientThresholdTask(t *testing.T) {
	c := newClient(t, 20)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	task, err := c.StartThreshold(ctx, experiment.ThresholdParams{Queries: 4, Impostors: 2, NoiseLevel: 0.1}, 9)
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)

	require.NoError(t, task.Wait(ctx, 10*time.Millisecond))
	assert.Equal(t, server.TaskStatusCompleted, task.Status)
	require.NotNil(t, task.Result)
	assert.Equal(t, 4, task.Result.Params.Queries)
}

func TestTaskWaitHonorsContext(t *testing.T) {
	task := &Task{TaskResponse: server.TaskResponse{ID: "x", Status: server.TaskStatusRunning}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := task.Wait(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
