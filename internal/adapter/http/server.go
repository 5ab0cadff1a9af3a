// Package http exposes the query API: point lookups, bulk grid dumps,
// heatmap sampling, alerts, forecasts, raster tiles, and the operational
// endpoints (health, readiness, metrics).
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/forecast"
	"github.com/couchcryptid/air-risk-grid-service/internal/observability"
	"github.com/couchcryptid/air-risk-grid-service/internal/query"
	"github.com/couchcryptid/air-risk-grid-service/internal/tile"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the query API over HTTP.
type Server struct {
	httpServer *http.Server
	queries    *query.Service
	forecasts  *forecast.Service
	tiles      *tile.CachedRenderer
	ready      ReadinessChecker
	logger     *slog.Logger
	metrics    *observability.Metrics

	alertThreshold float64
	tileTimeout    time.Duration
}

// NewServer wires all routes. alertThreshold is the default for /v1/alerts;
// tileTimeout bounds a single tile render.
func NewServer(
	addr string,
	queries *query.Service,
	forecasts *forecast.Service,
	tiles *tile.CachedRenderer,
	logger *slog.Logger,
	metrics *observability.Metrics,
	alertThreshold float64,
	tileTimeout time.Duration,
) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		queries:        queries,
		forecasts:      forecasts,
		tiles:          tiles,
		ready:          queries,
		logger:         logger,
		metrics:        metrics,
		alertThreshold: alertThreshold,
		tileTimeout:    tileTimeout,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/bounds", s.handleBounds)
	mux.HandleFunc("GET /v1/point", s.handlePoint)
	mux.HandleFunc("GET /v1/grid", s.handleGrid)
	mux.HandleFunc("GET /v1/heatmap", s.handleHeatmap)
	mux.HandleFunc("GET /v1/alerts", s.handleAlerts)
	mux.HandleFunc("GET /v1/alerts/summary", s.handleAlertsSummary)
	mux.HandleFunc("GET /v1/forecast", s.handleForecast)

	mux.HandleFunc("GET /tiles/preview", s.handleTilePreview)
	mux.HandleFunc("GET /tiles/{z}/{x}/{y}", s.handleTile)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleBounds(w http.ResponseWriter, r *http.Request) {
	bounds, err := s.queries.Bounds(r.Context())
	if err != nil {
		s.serverError(w, "bounds", err)
		return
	}
	s.metrics.Requests.WithLabelValues("bounds", "ok").Inc()
	writeJSON(w, http.StatusOK, bounds)
}

// handlePoint serves the point lookup. Out-of-bounds coordinates are a
// client error (422); internal faults degrade to a 200 with class unknown
// and null numerics, because downstream consumers assume this endpoint is
// always answerable.
func (s *Server) handlePoint(w http.ResponseWriter, r *http.Request) {
	lat, err := floatParam(r, "lat")
	if err != nil {
		s.clientError(w, "point", err)
		return
	}
	lon, err := floatParam(r, "lon")
	if err != nil {
		s.clientError(w, "point", err)
		return
	}

	result, err := s.queries.PointLookup(r.Context(), lat, lon)
	switch {
	case errors.Is(err, domain.ErrOutOfBounds):
		s.metrics.Requests.WithLabelValues("point", "client_error").Inc()
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.logger.Error("point lookup degraded", "lat", lat, "lon", lon, "error", err)
		s.metrics.Requests.WithLabelValues("point", "degraded").Inc()
		writeJSON(w, http.StatusOK, query.DegradedPointResult(lat, lon))
		return
	}
	s.metrics.Requests.WithLabelValues("point", "ok").Inc()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	format, err := formatParam(r)
	if err != nil {
		s.clientError(w, "grid", err)
		return
	}
	var variables []string
	if v := r.URL.Query().Get("variables"); v != "" {
		variables = strings.Split(v, ",")
	}

	cells, err := s.queries.GridDump(r.Context(), variables)
	if err != nil {
		s.serverError(w, "grid", err)
		return
	}
	s.metrics.Requests.WithLabelValues("grid", "ok").Inc()

	if format == "geojson" {
		writeJSON(w, http.StatusOK, cellsToGeoJSON(cells))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(cells),
		"cells": cells,
	})
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	format, err := formatParam(r)
	if err != nil {
		s.clientError(w, "heatmap", err)
		return
	}
	resolution, err := intParamDefault(r, "resolution", 20)
	if err != nil {
		s.clientError(w, "heatmap", err)
		return
	}
	minRisk, err := floatParamDefault(r, "min_risk", 0)
	if err != nil || minRisk < 0 || minRisk > 100 {
		s.clientError(w, "heatmap", errors.New("min_risk must be in [0, 100]"))
		return
	}

	points, err := s.queries.Heatmap(r.Context(), resolution, minRisk)
	if err != nil {
		if errors.Is(err, domain.ErrNoSnapshot) {
			s.serverError(w, "heatmap", err)
			return
		}
		s.clientError(w, "heatmap", err)
		return
	}
	s.metrics.Requests.WithLabelValues("heatmap", "ok").Inc()

	bounds, _ := s.queries.Bounds(r.Context())
	if format == "geojson" {
		writeJSON(w, http.StatusOK, heatmapToGeoJSON(points, bounds))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(points),
		"bounds": bounds,
		"data":   points,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	format, err := formatParam(r)
	if err != nil {
		s.clientError(w, "alerts", err)
		return
	}
	threshold, err := floatParamDefault(r, "threshold", s.alertThreshold)
	if err != nil || threshold < 0 || threshold > 100 {
		s.clientError(w, "alerts", errors.New("threshold must be in [0, 100]"))
		return
	}

	alerts, summary, err := s.queries.Alerts(r.Context(), threshold)
	if err != nil {
		s.serverError(w, "alerts", err)
		return
	}
	s.metrics.Requests.WithLabelValues("alerts", "ok").Inc()

	now := domain.Clock().Now().UTC()
	if format == "geojson" {
		writeJSON(w, http.StatusOK, alertsToGeoJSON(alerts, threshold, now))
		return
	}
	status := "clear"
	if len(alerts) > 0 {
		status = "active"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp":       now.Format(time.RFC3339),
		"alert_threshold": threshold,
		"total_alerts":    len(alerts),
		"status":          status,
		"alerts":          alerts,
		"summary":         summary,
	})
}

func (s *Server) handleAlertsSummary(w http.ResponseWriter, r *http.Request) {
	_, summary, err := s.queries.Alerts(r.Context(), s.alertThreshold)
	if err != nil {
		s.serverError(w, "alerts_summary", err)
		return
	}
	s.metrics.Requests.WithLabelValues("alerts_summary", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": domain.Clock().Now().UTC().Format(time.RFC3339),
		"summary":   summary,
	})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	hours, err := intParamDefault(r, "hours", 6)
	if err != nil {
		s.clientError(w, "forecast", err)
		return
	}
	model := forecast.Model(r.URL.Query().Get("model"))
	if model == "" {
		model = forecast.ModelAdvection
	}

	forecasts, err := s.forecasts.Forecast(r.Context(), hours, model)
	if err != nil {
		if errors.Is(err, domain.ErrNoSnapshot) {
			s.serverError(w, "forecast", err)
			return
		}
		s.clientError(w, "forecast", err)
		return
	}
	s.metrics.Requests.WithLabelValues("forecast", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp":      domain.Clock().Now().UTC().Format(time.RFC3339),
		"model":          model,
		"forecast_hours": hours,
		"forecasts":      forecasts,
	})
}

// handleTile serves one slippy-map tile as PNG. Invalid coordinates are a
// client error; tiles with no data render transparent, not failed.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	z, x, y, err := tileCoords(r)
	if err != nil {
		s.clientError(w, "tile", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.tileTimeout)
	defer cancel()

	start := time.Now()
	data, err := s.tiles.RenderPNG(ctx, z, x, y)
	switch {
	case errors.Is(err, domain.ErrInvalidZoom):
		s.clientError(w, "tile", err)
		return
	case err != nil:
		s.serverError(w, "tile", err)
		return
	}
	s.metrics.TileRenderDuration.Observe(time.Since(start).Seconds())
	s.metrics.Requests.WithLabelValues("tile", "ok").Inc()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // client disconnects are not actionable
}

func (s *Server) handleTilePreview(w http.ResponseWriter, r *http.Request) {
	img, err := s.tiles.Preview(r.Context(), 512, 512)
	if err != nil {
		s.serverError(w, "tile_preview", err)
		return
	}
	s.metrics.Requests.WithLabelValues("tile_preview", "ok").Inc()
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(img) //nolint:errcheck // client disconnects are not actionable
}

// --- helpers ---

func (s *Server) clientError(w http.ResponseWriter, endpoint string, err error) {
	s.metrics.Requests.WithLabelValues(endpoint, "client_error").Inc()
	writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) serverError(w http.ResponseWriter, endpoint string, err error) {
	s.logger.Error("request failed", "endpoint", endpoint, "error", err)
	s.metrics.Requests.WithLabelValues(endpoint, "error").Inc()
	writeError(w, http.StatusInternalServerError, "internal error")
}

func tileCoords(r *http.Request) (z, x, y int, err error) {
	z, err = strconv.Atoi(r.PathValue("z"))
	if err != nil {
		return 0, 0, 0, errors.New("tile z must be an integer")
	}
	x, err = strconv.Atoi(r.PathValue("x"))
	if err != nil {
		return 0, 0, 0, errors.New("tile x must be an integer")
	}
	yRaw := strings.TrimSuffix(r.PathValue("y"), ".png")
	y, err = strconv.Atoi(yRaw)
	if err != nil {
		return 0, 0, 0, errors.New("tile y must be an integer")
	}
	return z, x, y, nil
}

func formatParam(r *http.Request) (string, error) {
	format := r.URL.Query().Get("format")
	switch format {
	case "":
		return "json", nil
	case "json", "geojson":
		return format, nil
	default:
		return "", errors.New("format must be json or geojson")
	}
}

func floatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errors.New("missing required parameter " + name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("parameter " + name + " must be a number")
	}
	return v, nil
}

func floatParamDefault(r *http.Request, name string, def float64) (float64, error) {
	if r.URL.Query().Get(name) == "" {
		return def, nil
	}
	return floatParam(r, name)
}

func intParamDefault(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("parameter " + name + " must be an integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
