package http

import (
	"time"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/query"
)

// GeoJSON wire types. Geometry coordinates are [lon, lat] per RFC 7946.
type featureCollection struct {
	Type       string         `json:"type"`
	Features   []feature      `json:"features"`
	Properties map[string]any `json:"properties,omitempty"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func pointFeature(lat, lon float64, props map[string]any) feature {
	return feature{
		Type:       "Feature",
		Geometry:   geometry{Type: "Point", Coordinates: []float64{lon, lat}},
		Properties: props,
	}
}

func cellsToGeoJSON(cells []query.Cell) featureCollection {
	features := make([]feature, 0, len(cells))
	for _, c := range cells {
		features = append(features, pointFeature(c.Lat, c.Lon, map[string]any{
			"cell_id":    c.CellID,
			"risk_score": c.RiskScore,
			"risk_class": c.RiskClass,
			"color":      domain.HexColorFor(c.RiskClass),
		}))
	}
	return featureCollection{Type: "FeatureCollection", Features: features}
}

func heatmapToGeoJSON(points []query.HeatmapPoint, bounds domain.BoundingBox) featureCollection {
	features := make([]feature, 0, len(points))
	for _, p := range points {
		features = append(features, pointFeature(p.Lat, p.Lon, map[string]any{
			"risk_score": p.RiskScore,
			"risk_class": p.RiskClass,
			"color":      domain.HexColorFor(p.RiskClass),
		}))
	}
	return featureCollection{
		Type:     "FeatureCollection",
		Features: features,
		Properties: map[string]any{
			"bounds": bounds,
		},
	}
}

func alertsToGeoJSON(alerts []query.Alert, threshold float64, now time.Time) featureCollection {
	features := make([]feature, 0, len(alerts))
	for _, a := range alerts {
		features = append(features, pointFeature(a.Lat, a.Lon, map[string]any{
			"cell_id":     a.CellID,
			"risk_score":  a.RiskScore,
			"alert_level": a.Severity,
			"exceeded_by": a.ExceededBy,
			"message":     a.Message,
			"color":       domain.SeverityHexColor(a.Severity),
		}))
	}
	return featureCollection{
		Type:     "FeatureCollection",
		Features: features,
		Properties: map[string]any{
			"timestamp":       now.Format(time.RFC3339),
			"alert_threshold": threshold,
			"total_alerts":    len(alerts),
		},
	}
}
