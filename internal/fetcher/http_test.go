package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/tramites-sync/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
	})
}

func TestGet_SendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte("hola")) //nolint:errcheck
	}))
	defer srv.Close()

	body, err := newTestFetcher().Get(context.Background(), srv.URL+"/x")
	require.NoError(t, err)
	assert.Equal(t, "hola", string(body))
}

func TestGet_DefaultUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Mozilla/5.0", r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(HTTPOptions{}).Get(context.Background(), srv.URL)
	require.NoError(t, err)
}

func TestGet_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := newTestFetcher().Get(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Equal(t, tc.transient, resilience.IsTransient(err))

			var te *resilience.TransientError
			if tc.transient {
				require.True(t, errors.As(err, &te))
				assert.Equal(t, tc.status, te.StatusCode)
			}
		})
	}
}

func TestGet_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := newTestFetcher().Get(context.Background(), addr)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGet_429SlowsHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{RequestsPerSecond: 100, Burst: 5})
	_, err := f.Get(context.Background(), srv.URL)
	require.Error(t, err)

	require.Len(t, f.limiters, 1)
	for _, lim := range f.limiters {
		assert.Equal(t, rate.Limit(50), lim.Limit())
	}
}

func TestGetJSON_PreservesNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"costo": 12.50, "id": 9007199254740993}`)) //nolint:errcheck
	}))
	defer srv.Close()

	var got map[string]any
	require.NoError(t, newTestFetcher().GetJSON(context.Background(), srv.URL, &got))
	assert.Equal(t, json.Number("12.50"), got["costo"])
	assert.Equal(t, json.Number("9007199254740993"), got["id"])
}

func TestGetJSON_InvalidBodyIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html>mantenimiento</html>`)) //nolint:errcheck
	}))
	defer srv.Close()

	var got map[string]any
	err := newTestFetcher().GetJSON(context.Background(), srv.URL, &got)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 1)
	for range 20 {
		lim.OnSuccess()
	}
	assert.Equal(t, rate.Limit(20), lim.Limit())

	for range 20 {
		lim.OnRateLimit()
	}
	assert.Equal(t, rate.Limit(2.5), lim.Limit())
}
