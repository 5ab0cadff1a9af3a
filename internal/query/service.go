// Package query serves read-only spatial queries against the current grid
// snapshot: point lookups, bulk dumps, heatmap sampling, and alert scans.
package query

import (
	"context"
	"fmt"
	"math"
	"sort"

	"log/slog"

	"gonum.org/v1/gonum/floats"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/store"
)

// Heatmap resolution limits, matching the API contract.
const (
	MinHeatmapResolution = 5
	MaxHeatmapResolution = 100
)

// PointResult is the answer to a point lookup. Variable values are
// individually nullable: a nil entry means that layer has no value at the
// node, independent of the others.
type PointResult struct {
	Lat       float64             `json:"lat"`
	Lon       float64             `json:"lon"`
	RiskScore *float64            `json:"risk_score"`
	RiskClass domain.RiskClass    `json:"risk_class"`
	Variables map[string]*float64 `json:"variables"`
}

// DegradedPointResult is the documented fallback the API boundary serves
// when an internal fault prevents a real lookup: class unknown, all numeric
// fields null. Downstream consumers assume this endpoint is total.
func DegradedPointResult(lat, lon float64) PointResult {
	return PointResult{
		Lat:       lat,
		Lon:       lon,
		RiskClass: domain.RiskUnknown,
		Variables: map[string]*float64{},
	}
}

// Cell is one valid-scored grid node in a bulk dump.
type Cell struct {
	Lat       float64             `json:"lat"`
	Lon       float64             `json:"lon"`
	CellID    string              `json:"cell_id"`
	RiskScore float64             `json:"risk_score"`
	RiskClass domain.RiskClass    `json:"risk_class"`
	Variables map[string]*float64 `json:"variables,omitempty"`
}

// HeatmapPoint is one sample of the resampled heatmap grid.
type HeatmapPoint struct {
	Lat       float64          `json:"lat"`
	Lon       float64          `json:"lon"`
	RiskScore float64          `json:"risk_score"`
	RiskClass domain.RiskClass `json:"risk_class"`
}

// Alert is one cell exceeding the alert threshold.
type Alert struct {
	Cell
	Severity   domain.AlertSeverity `json:"alert_level"`
	ExceededBy float64              `json:"exceeded_by"`
	Message    string               `json:"message"`
}

// AlertSummary aggregates an alert scan.
type AlertSummary struct {
	TotalCells    int     `json:"total_cells"`
	Critical      int     `json:"critical"`
	Severe        int     `json:"severe"`
	High          int     `json:"high"`
	Moderate      int     `json:"moderate"`
	MaxRisk       float64 `json:"max_risk"`
	OverallStatus string  `json:"status"`
}

// Service answers spatial queries against a region's grid store.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a query Service.
func New(s *store.Store, logger *slog.Logger) *Service {
	return &Service{store: s, logger: logger}
}

// Bounds returns the grid extent.
func (s *Service) Bounds(ctx context.Context) (domain.BoundingBox, error) {
	return s.store.Bounds(ctx)
}

// Ready reports whether a snapshot is available without triggering a build.
func (s *Service) Ready() bool { return s.store.Ready() }

// CheckReadiness implements the HTTP readiness contract.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.store.Ready() {
		return domain.ErrNoSnapshot
	}
	return nil
}

// PointLookup validates the coordinate against the grid bounds and returns
// the nearest node's score, class, and every variable value. Outside the
// bounds it fails with ErrOutOfBounds; other errors are internal faults the
// API boundary converts to the degraded result.
func (s *Service) PointLookup(ctx context.Context, lat, lon float64) (PointResult, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return PointResult{}, fmt.Errorf("%w: non-finite coordinate", domain.ErrOutOfBounds)
	}

	grid, err := s.store.Get(ctx)
	if err != nil {
		return PointResult{}, err
	}
	if !grid.Bounds().Contains(lat, lon) {
		return PointResult{}, fmt.Errorf("%w: (%.4f, %.4f)", domain.ErrOutOfBounds, lat, lon)
	}

	i, j := grid.NearestNode(lat, lon)
	score := grid.At(domain.LayerRiskScore, i, j)

	result := PointResult{
		Lat:       lat,
		Lon:       lon,
		RiskClass: domain.Classify(score),
		Variables: make(map[string]*float64),
	}
	if !math.IsNaN(score) {
		result.RiskScore = &score
	}
	for _, name := range grid.Variables() {
		if name == domain.LayerRiskScore || name == domain.LayerRiskClass {
			continue
		}
		v := grid.At(name, i, j)
		if math.IsNaN(v) {
			result.Variables[name] = nil
			continue
		}
		value := v
		result.Variables[name] = &value
	}
	return result, nil
}

// GridDump returns every cell with a valid risk score, optionally restricted
// to a set of variable layers. NaN-score cells are skipped.
func (s *Service) GridDump(ctx context.Context, variables []string) ([]Cell, error) {
	grid, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	wanted := variableFilter(grid, variables)
	var cells []Cell
	for i, lat := range grid.Lats {
		for j, lon := range grid.Lons {
			score := grid.At(domain.LayerRiskScore, i, j)
			if math.IsNaN(score) {
				continue
			}
			cell := Cell{
				Lat:       lat,
				Lon:       lon,
				CellID:    fmt.Sprintf("%d_%d", i, j),
				RiskScore: score,
				RiskClass: domain.Classify(score),
				Variables: make(map[string]*float64, len(wanted)),
			}
			for _, name := range wanted {
				v := grid.At(name, i, j)
				if math.IsNaN(v) {
					cell.Variables[name] = nil
					continue
				}
				value := v
				cell.Variables[name] = &value
			}
			cells = append(cells, cell)
		}
	}
	return cells, nil
}

// Heatmap samples the grid at an arbitrary resolution: two linear-spaced
// axes across the bounds, nearest-node lookup per sample, filtered by
// minScore. Resolution is independent of the native grid resolution.
func (s *Service) Heatmap(ctx context.Context, resolution int, minScore float64) ([]HeatmapPoint, error) {
	if resolution < MinHeatmapResolution || resolution > MaxHeatmapResolution {
		return nil, fmt.Errorf("heatmap resolution %d outside [%d, %d]",
			resolution, MinHeatmapResolution, MaxHeatmapResolution)
	}

	grid, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	bounds := grid.Bounds()

	lats := make([]float64, resolution)
	lons := make([]float64, resolution)
	floats.Span(lats, bounds.South, bounds.North)
	floats.Span(lons, bounds.West, bounds.East)

	var points []HeatmapPoint
	for _, lat := range lats {
		for _, lon := range lons {
			i, j := grid.NearestNode(lat, lon)
			score := grid.At(domain.LayerRiskScore, i, j)
			if math.IsNaN(score) || score < minScore {
				continue
			}
			points = append(points, HeatmapPoint{
				Lat:       lat,
				Lon:       lon,
				RiskScore: score,
				RiskClass: domain.Classify(score),
			})
		}
	}
	return points, nil
}

// Alerts scans the grid for cells with score > threshold, tiers them by
// severity, and returns them sorted descending by score alongside an
// aggregate summary. The sort is stable, so equal scores keep scan order.
func (s *Service) Alerts(ctx context.Context, threshold float64) ([]Alert, AlertSummary, error) {
	cells, err := s.GridDump(ctx, nil)
	if err != nil {
		return nil, AlertSummary{}, err
	}

	summary := AlertSummary{TotalCells: len(cells)}
	var alerts []Alert
	for _, cell := range cells {
		if cell.RiskScore > summary.MaxRisk {
			summary.MaxRisk = cell.RiskScore
		}
		if cell.RiskScore <= threshold {
			continue
		}
		severity := domain.SeverityFor(cell.RiskScore)
		alerts = append(alerts, Alert{
			Cell:       cell,
			Severity:   severity,
			ExceededBy: cell.RiskScore - threshold,
			Message:    domain.AdvisoryFor(cell.RiskScore),
		})
		switch severity {
		case domain.SeverityCritical:
			summary.Critical++
		case domain.SeveritySevere:
			summary.Severe++
		case domain.SeverityHigh:
			summary.High++
		default:
			summary.Moderate++
		}
	}

	sort.SliceStable(alerts, func(a, b int) bool {
		return alerts[a].RiskScore > alerts[b].RiskScore
	})
	summary.OverallStatus = overallStatus(summary)
	return alerts, summary, nil
}

// overallStatus condenses a scan into one operator-facing word.
func overallStatus(s AlertSummary) string {
	high := s.Critical + s.Severe + s.High
	switch {
	case s.Critical > 0:
		return "critical"
	case high > 5:
		return "severe"
	case high > 0 || s.Moderate > 0:
		return "alert"
	default:
		return "normal"
	}
}

// variableFilter resolves the requested variable names against the layers
// actually present, excluding the derived risk layers. Nil means all.
func variableFilter(grid *domain.Grid, variables []string) []string {
	var out []string
	if variables == nil {
		for _, name := range grid.Variables() {
			if name == domain.LayerRiskScore || name == domain.LayerRiskClass {
				continue
			}
			out = append(out, name)
		}
		return out
	}
	for _, name := range variables {
		if _, ok := grid.Layer(name); ok && name != domain.LayerRiskScore && name != domain.LayerRiskClass {
			out = append(out, name)
		}
	}
	return out
}
