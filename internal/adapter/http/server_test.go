package http

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/forecast"
	"github.com/couchcryptid/air-risk-grid-service/internal/observability"
	"github.com/couchcryptid/air-risk-grid-service/internal/query"
	"github.com/couchcryptid/air-risk-grid-service/internal/store"
	"github.com/couchcryptid/air-risk-grid-service/internal/tile"
)

type staticBuilder struct{ grid *domain.Grid }

func (b staticBuilder) Run(context.Context) (*domain.Grid, error) { return b.grid, nil }

type failingBuilder struct{}

func (failingBuilder) Run(context.Context) (*domain.Grid, error) {
	return nil, context.DeadlineExceeded
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededGrid(t *testing.T) *domain.Grid {
	t.Helper()
	grid, err := domain.NewGrid(
		domain.Axis{33.6, 34.0, 34.4},
		domain.Axis{-118.7, -118.2, -117.8},
	)
	require.NoError(t, err)

	score := domain.NewLayer(domain.LayerRiskScore, 3, 3)
	score.Values = [][]float64{
		{0, 10, 20},
		{30, 50, 60},
		{math.NaN(), 90, 100},
	}
	require.NoError(t, grid.AddLayer(score))

	no2 := domain.NewLayer(domain.VarNO2, 3, 3)
	no2.Values = [][]float64{
		{1, 2, 3},
		{4, 5, 6},
		{math.NaN(), 8, 9},
	}
	require.NoError(t, grid.AddLayer(no2))
	return grid
}

func newTestServer(t *testing.T, builder store.Builder, seed *domain.Grid) *Server {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	s := store.New(builder, testLogger(), metrics)
	if seed != nil {
		s.Seed(seed)
	}
	queries := query.New(s, testLogger())
	forecasts := forecast.New(s, rand.New(rand.NewPCG(1, 2)))
	tiles := tile.NewCachedRenderer(tile.NewRenderer(s, testLogger()), s, 8)
	return NewServer(":0", queries, forecasts, tiles, testLogger(), metrics, 66.0, 2*time.Second)
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthAndReadiness(t *testing.T) {
	srv := newTestServer(t, failingBuilder{}, nil)

	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no snapshot yet")

	srv = newTestServer(t, failingBuilder{}, seededGrid(t))
	rec = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBoundsEndpoint(t *testing.T) {
	srv := newTestServer(t, failingBuilder{}, seededGrid(t))

	rec := get(t, srv, "/v1/bounds")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 33.6, body["lat_min"])
	assert.Equal(t, 34.4, body["lat_max"])
	assert.Equal(t, -118.7, body["lon_min"])
	assert.Equal(t, -117.8, body["lon_max"])
}

func TestPointEndpoint(t *testing.T) {
	srv := newTestServer(t, failingBuilder{}, seededGrid(t))

	t.Run("node lookup", func(t *testing.T) {
		rec := get(t, srv, "/v1/point?lat=34.0&lon=-118.2")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, 50.0, body["risk_score"])
		assert.Equal(t, "moderate", body["risk_class"])
	})

	t.Run("missing cell serves null score", func(t *testing.T) {
		rec := get(t, srv, "/v1/point?lat=34.4&lon=-118.7")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Nil(t, body["risk_score"])
		assert.Equal(t, "unknown", body["risk_class"])
	})

	t.Run("out of bounds is 422", func(t *testing.T) {
		rec := get(t, srv, "/v1/point?lat=40.0&lon=-118.2")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing parameters are 400", func(t *testing.T) {
		rec := get(t, srv, "/v1/point?lat=34.0")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = get(t, srv, "/v1/point?lat=north&lon=-118.2")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("internal fault degrades to 200 unknown", func(t *testing.T) {
		broken := newTestServer(t, failingBuilder{}, nil)
		rec := get(t, broken, "/v1/point?lat=34.0&lon=-118.2")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Nil(t, body["risk_score"])
		assert.Equal(t, "unknown", body["risk_class"])
		assert.Equal(t, 34.0, body["lat"])
	})
}

func TestGridEndpoint(t *testing.T) {
	srv := newTestServer(t, failingBuilder{}, seededGrid(t))

	t.Run("json dump", func(t *testing.T) {
		rec := get(t, srv, "/v1/grid")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, float64(8), body["count"], "NaN-score cell skipped")
	})

	t.Run("geojson dump", func(t *testing.T) {
		rec := get(t, srv, "/v1/grid?format=geojson")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "FeatureCollection", body["type"])
		features := body["features"].([]any)
		assert.Len(t, features, 8)

		first := features[0].(map[string]any)
		geom := first["geometry"].(map[string]any)
		coords := geom["coordinates"].([]any)
		assert.Equal(t, -118.7, coords[0], "GeoJSON is lon-first")
		assert.Equal(t, 33.6, coords[1])
	})

	t.Run("bad format", func(t *testing.T) {
		rec := get(t, srv, "/v1/grid?format=xml")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHeatmapEndpoint(t *testing.T) {
	srv := newTestServer(t, failingBuilder{}, seededGrid(t))

	rec := get(t, srv, "/v1/heatmap?resolution=5")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["data"])
	assert.NotNil(t, body["bounds"])

	rec = get(t, srv, "/v1/heatmap?resolution=500")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, srv, "/v1/heatmap?min_risk=200")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertsEndpoint(t *testing.T) {
	srv := newTestServer(t, failingBuilder{}, seededGrid(t))

	t.Run("default threshold", func(t *testing.T) {
		rec := get(t, srv, "/v1/alerts")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, float64(2), body["total_alerts"], "cells 90 and 100 exceed 66")
		assert.Equal(t, "active", body["status"])
		assert.Equal(t, 66.0, body["alert_threshold"])

		alerts := body["alerts"].([]any)
		first := alerts[0].(map[string]any)
		assert.Equal(t, 100.0, first["risk_score"], "sorted descending")
		assert.Equal(t, "critical", first["alert_level"])
	})

	t.Run("custom threshold clears", func(t *testing.T) {
		rec := get(t, srv, "/v1/alerts?threshold=100")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, float64(0), body["total_alerts"])
		assert.Equal(t, "clear", body["status"])
	})

	t.Run("geojson alerts", func(t *testing.T) {
		rec := get(t, srv, "/v1/alerts?format=geojson")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "FeatureCollection", body["type"])
		assert.Len(t, body["features"].([]any), 2)
	})

	t.Run("summary endpoint", func(t *testing.T) {
		rec := get(t, srv, "/v1/alerts/summary")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		summary := body["summary"].(map[string]any)
		assert.Equal(t, float64(8), summary["total_cells"])
		assert.Equal(t, 100.0, summary["max_risk"])
		assert.Equal(t, "critical", summary["status"])
	})

	t.Run("invalid threshold", func(t *testing.T) {
		rec := get(t, srv, "/v1/alerts?threshold=999")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestForecastEndpoint(t *testing.T) {
	srv := newTestServer(t, failingBuilder{}, seededGrid(t))

	rec := get(t, srv, "/v1/forecast?hours=3&model=persistence")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "persistence", body["model"])
	assert.Equal(t, float64(3), body["forecast_hours"])
	assert.Len(t, body["forecasts"].([]any), 3)

	rec = get(t, srv, "/v1/forecast")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "advection", body["model"], "defaults")
	assert.Equal(t, float64(6), body["forecast_hours"])

	rec = get(t, srv, "/v1/forecast?model=oracle")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, srv, "/v1/forecast?hours=48")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTileEndpoint(t *testing.T) {
	srv := newTestServer(t, failingBuilder{}, seededGrid(t))

	t.Run("png with cache headers", func(t *testing.T) {
		rec := get(t, srv, "/tiles/8/43/102.png")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rec.Body.Bytes()[:4])
	})

	t.Run("extension optional", func(t *testing.T) {
		rec := get(t, srv, "/tiles/8/43/102")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid zoom", func(t *testing.T) {
		rec := get(t, srv, "/tiles/99/0/0.png")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-numeric coordinates", func(t *testing.T) {
		rec := get(t, srv, "/tiles/8/a/b.png")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("preview", func(t *testing.T) {
		rec := get(t, srv, "/tiles/preview")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	})
}
