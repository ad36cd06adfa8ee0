package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/cmingest/internal/core"
)

func TestPipeline_Observer(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPipeline(reg)

	p.ArtifactProcessed("tdms", core.StatusSuccess, 20*time.Millisecond)
	p.ArtifactProcessed("tdms", core.StatusPartial, 30*time.Millisecond)
	p.ChannelProcessed("tdms", core.KindWaveform, core.ChannelSubmitted)
	p.ChannelProcessed("tdms", core.KindEmpty, core.ChannelRejected)
	p.DatapointsSubmitted("trend", 2500)
	p.RowsSubmitted("tdms", 99)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.ArtifactsTotal.WithLabelValues("tdms", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.ArtifactsTotal.WithLabelValues("tdms", "partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.ChannelsTotal.WithLabelValues("tdms", "empty", "rejected")))
	assert.Equal(t, 2500.0, testutil.ToFloat64(p.DatapointsTotal.WithLabelValues("trend")))
	assert.Equal(t, 99.0, testutil.ToFloat64(p.RowsTotal.WithLabelValues("tdms")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.ArtifactDuration))
}

func TestHTTP_MiddlewareUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTP(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Post("/api/v1/projects/{project}/timeseries", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	for _, project := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/projects/"+project+"/timeseries", nil))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodPost, "/api/v1/projects/{project}/timeseries", "201"))
	assert.Equal(t, 2.0, got)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RequestsInFlight))
}

func TestPush(t *testing.T) {
	var method, path string
	var body []byte
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	reg := prometheus.NewRegistry()
	NewPipeline(reg).DatapointsSubmitted("trend", 5)

	require.NoError(t, Push(context.Background(), gw.URL, "cmingest", reg))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/cmingest", path)
	assert.NotEmpty(t, body)
}

func TestPush_Error(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gw.Close()

	err := Push(context.Background(), gw.URL, "cmingest", prometheus.NewRegistry())
	assert.Error(t, err)
}
