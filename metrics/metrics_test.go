package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalPath(t *testing.T) {
	tests := map[string]string{
		"":                         "/",
		"/health":                  "/health",
		"/api/bots/65a1b2c3d4e5":   "/api/bots",
		"/api/runtime/engines/abc": "/api/runtime",
	}
	for in, want := range tests {
		assert.Equal(t, want, canonicalPath(in), in)
	}
}

func TestInstrumentHandlerCountsRequests(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/bots", "404"))

	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/bots/x", nil))

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/bots", "404"))
	assert.Equal(t, before+1, after)
}

func TestRecordProjection(t *testing.T) {
	before := testutil.ToFloat64(projections.WithLabelValues("engine", "error"))
	RecordProjection("engine", time.Millisecond, errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(projections.WithLabelValues("engine", "error")))
}
