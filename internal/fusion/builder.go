// Package fusion implements the grid fusion engine: building the canonical
// grid from a reference source, projecting heterogeneous observations onto
// it, normalizing variable layers, and composing the risk score.
package fusion

import (
	"fmt"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
)

// BuildGrid derives the canonical grid from the reference observation set,
// typically the satellite NO₂ product. The output axes are the sorted unique
// coordinates present in that source, so the reference may arrive with its
// axes in any order, descending-latitude satellite scans included. No side
// effects; the returned grid has no layers yet.
func BuildGrid(reference domain.ObservationSet) (*domain.Grid, error) {
	if reference.Variable == "" {
		return nil, fmt.Errorf("reference source missing variable name")
	}
	if reference.Gridded() && len(reference.Points) > 0 {
		return nil, fmt.Errorf("reference source %q has both gridded and point data", reference.Variable)
	}
	if !reference.Gridded() && len(reference.Points) == 0 {
		return nil, fmt.Errorf("reference source %q is empty", reference.Variable)
	}

	var latVals, lonVals []float64
	if reference.Gridded() {
		latVals = reference.Field.Lats
		lonVals = reference.Field.Lons
	} else {
		for _, p := range reference.Points {
			latVals = append(latVals, p.Lat)
			lonVals = append(lonVals, p.Lon)
		}
	}

	lats, err := domain.NewAxis(latVals)
	if err != nil {
		return nil, fmt.Errorf("reference %q latitudes: %w", reference.Variable, err)
	}
	lons, err := domain.NewAxis(lonVals)
	if err != nil {
		return nil, fmt.Errorf("reference %q longitudes: %w", reference.Variable, err)
	}
	return domain.NewGrid(lats, lons)
}
