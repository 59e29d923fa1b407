package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sanonone/irishnsw/pkg/core/hnsw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderFlush(t *testing.T) {
	r := NewRecorder("flush_test")
	t.Cleanup(r.Forget)

	r.Flush(hnsw.Stats{Insertions: 10, Searches: 3, Distances: 500, Comparisons: 900, Improvements: 7, DBSize: 10, Layers: 2})
	r.Flush(hnsw.Stats{Insertions: 5, Searches: 1, Distances: 100, Comparisons: 50, Improvements: 2, DBSize: 15, Layers: 3})

	assert.Equal(t, 15.0, testutil.ToFloat64(Insertions.WithLabelValues("flush_test")))
	assert.Equal(t, 4.0, testutil.ToFloat64(Searches.WithLabelValues("flush_test")))
	assert.Equal(t, 600.0, testutil.ToFloat64(DistanceEvaluations.WithLabelValues("flush_test")))
	assert.Equal(t, 950.0, testutil.ToFloat64(Comparisons.WithLabelValues("flush_test")))
	assert.Equal(t, 9.0, testutil.ToFloat64(Improvements.WithLabelValues("flush_test")))
	assert.Equal(t, 15.0, testutil.ToFloat64(Vectors.WithLabelValues("flush_test")))
	assert.Equal(t, 3.0, testutil.ToFloat64(Layers.WithLabelValues("flush_test")))
}

func TestHandlerExposesSeries(t *testing.T) {
	r := NewRecorder("handler_test")
	t.Cleanup(r.Forget)
	r.Flush(hnsw.Stats{Insertions: 1, DBSize: 1, Layers: 1})
	r.ObserveSearch(2 * time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `irishnsw_insertions_total{index_name="handler_test"} 1`))
	assert.Contains(t, body, `irishnsw_search_duration_seconds_count{index_name="handler_test"} 1`)
}
