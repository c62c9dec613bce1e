package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// serveInstrumented mounts the handler on a chi router behind the metrics
// middleware and issues one request against it.
func serveInstrumented(t *testing.T, metrics *HTTPMetrics, pattern, url string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get(pattern, handler)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
	return rr
}

// collectRequestTotals pulls the request counter's data points from the
// manual reader.
func collectRequestTotals(t *testing.T, reader *sdkmetric.ManualReader) []metricdata.DataPoint[int64] {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != HTTPMetricsMeterName {
			continue
		}
		for _, m := range sm.Metrics {
			if m.Name != "syncline_http_requests_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "request counter should be an int64 sum")
			return sum.DataPoints
		}
	}
	return nil
}

func TestNewHTTPMetrics(t *testing.T) {
	t.Parallel()

	t.Run("nil provider yields nil metrics", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewHTTPMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("SDK provider yields all instruments", func(t *testing.T) {
		t.Parallel()

		mp := sdkmetric.NewMeterProvider()
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewHTTPMetrics(mp)
		require.NoError(t, err)
		require.NotNil(t, metrics)
		assert.NotNil(t, metrics.requestDuration)
		assert.NotNil(t, metrics.requestsTotal)
		assert.NotNil(t, metrics.activeRequests)
	})
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	t.Parallel()

	t.Run("nil metrics passes requests through", func(t *testing.T) {
		t.Parallel()

		var metrics *HTTPMetrics
		wrapped := metrics.Middleware(okHandler())

		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/anything", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("records the route pattern, not the raw URL", func(t *testing.T) {
		t.Parallel()

		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewHTTPMetrics(mp)
		require.NoError(t, err)

		rr := serveInstrumented(t, metrics,
			"/sync-states/{account}/{family}", "/sync-states/acme/crm", okHandler())
		require.Equal(t, http.StatusOK, rr.Code)

		points := collectRequestTotals(t, reader)
		require.Len(t, points, 1)

		route, ok := points[0].Attributes.Value(attribute.Key("route"))
		require.True(t, ok, "request counter should carry a route attribute")
		assert.Equal(t, "/sync-states/{account}/{family}", route.AsString())

		status, ok := points[0].Attributes.Value(attribute.Key("status_code"))
		require.True(t, ok)
		assert.Equal(t, "200", status.AsString())
	})

	t.Run("records error responses with their status", func(t *testing.T) {
		t.Parallel()

		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewHTTPMetrics(mp)
		require.NoError(t, err)

		rr := serveInstrumented(t, metrics, "/boom", "/boom",
			func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			})
		require.Equal(t, http.StatusInternalServerError, rr.Code)

		points := collectRequestTotals(t, reader)
		require.Len(t, points, 1)

		status, ok := points[0].Attributes.Value(attribute.Key("status_code"))
		require.True(t, ok)
		assert.Equal(t, "500", status.AsString())
	})
}

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("nil provider passes requests through", func(t *testing.T) {
		t.Parallel()

		mw, err := MetricsMiddleware(nil)
		require.NoError(t, err)
		require.NotNil(t, mw)

		rr := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("works with a no-op provider", func(t *testing.T) {
		t.Parallel()

		mw, err := MetricsMiddleware(noop.NewMeterProvider())
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("works with an SDK provider", func(t *testing.T) {
		t.Parallel()

		mp := sdkmetric.NewMeterProvider()
		defer func() { _ = mp.Shutdown(context.Background()) }()

		mw, err := MetricsMiddleware(mp)
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestGetRoutePattern(t *testing.T) {
	t.Parallel()

	t.Run("falls back to a constant outside chi routing", func(t *testing.T) {
		t.Parallel()

		pattern := getRoutePattern(httptest.NewRequest(http.MethodGet, "/raw/url", nil))
		assert.Equal(t, "unknown_route", pattern)
	})

	t.Run("reads the pattern from the chi context", func(t *testing.T) {
		t.Parallel()

		r := chi.NewRouter()
		r.Get("/runs/{id}", func(_ http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "/runs/{id}", getRoutePattern(req))
		})

		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/42", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	})
}
