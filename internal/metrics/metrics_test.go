package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	m := New()

	m.IncExecutions()
	m.IncExecutions()
	m.IncMemoHits()
	m.IncFailures()
	m.AddInvalidated(3)
	m.ExecutionStarted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.executions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.memoHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.invalidated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))

	m.ExecutionFinished()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	m.IncExecutions()
	m.IncMemoHits()
	m.IncFailures()
	m.AddInvalidated(5)
	m.ExecutionStarted()
	m.ExecutionFinished()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesRegisteredSeries(t *testing.T) {
	m := New()
	m.IncExecutions()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "forgegrid_node_executions_total 1")
}
