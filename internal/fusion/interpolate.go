package fusion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
)

// Interpolation constants. The station radius approximates 50 km at
// mid-latitudes; epsilon keeps IDW finite when a station sits exactly on a
// grid node.
const (
	DefaultStationRadiusDeg = 0.5
	idwEpsilon              = 0.01
)

// Interpolator projects observation sets onto a target grid.
type Interpolator struct {
	// StationRadiusDeg is the IDW cutoff radius for point sources, in
	// degrees. Zero means DefaultStationRadiusDeg.
	StationRadiusDeg float64
}

func (ip Interpolator) radius() float64 {
	if ip.StationRadiusDeg > 0 {
		return ip.StationRadiusDeg
	}
	return DefaultStationRadiusDeg
}

// Project maps one observation set onto the target grid, producing a layer
// with one cell per grid node. Gridded sources resample by nearest source
// cell center; point sources use inverse-distance weighting within the
// cutoff radius, with unfilled cells backfilled by the global mean of all
// valid point values. "No data near a node" is never an error; only
// malformed input is.
func (ip Interpolator) Project(obs domain.ObservationSet, grid *domain.Grid) (*domain.Layer, error) {
	if grid == nil || len(grid.Lats) == 0 || len(grid.Lons) == 0 {
		return nil, fmt.Errorf("interpolate %q: empty target grid", obs.Variable)
	}
	if err := obs.Validate(); err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}

	layer := domain.NewLayer(obs.Variable, len(grid.Lats), len(grid.Lons))
	layer.Unit = obs.Unit
	layer.Source = obs.Source
	layer.LongName = obs.LongName

	if obs.Gridded() {
		ip.projectGridded(obs.Field, grid, layer)
		return layer, nil
	}
	ip.projectPoints(obs.Points, grid, layer)
	return layer, nil
}

// projectGridded fills each target node with the value of the closest source
// cell center by Euclidean lat/lon distance. Iteration order over source
// cells is fixed, so distance ties resolve to the first cell encountered and
// the result is deterministic. NaN source cells never win a lookup.
func (ip Interpolator) projectGridded(field *domain.GriddedField, grid *domain.Grid, layer *domain.Layer) {
	for i, lat := range grid.Lats {
		for j, lon := range grid.Lons {
			best := math.Inf(1)
			value := math.NaN()
			for si, slat := range field.Lats {
				for sj, slon := range field.Lons {
					v := field.Values[si][sj]
					if math.IsNaN(v) {
						continue
					}
					d := sq(slat-lat) + sq(slon-lon)
					if d < best {
						best = d
						value = v
					}
				}
			}
			layer.Values[i][j] = value
		}
	}
}

// projectPoints computes the IDW mean of stations within the cutoff radius
// of each node, weight 1/(d+ε). Nodes with no station in range stay NaN
// during the pass and are backfilled with the arithmetic mean of all valid
// point values afterwards.
func (ip Interpolator) projectPoints(points []domain.PointObservation, grid *domain.Grid, layer *domain.Layer) {
	radius := ip.radius()

	var valid []float64
	for _, p := range points {
		if !math.IsNaN(p.Value) {
			valid = append(valid, p.Value)
		}
	}

	for i, lat := range grid.Lats {
		for j, lon := range grid.Lons {
			var weightedSum, weightSum float64
			for _, p := range points {
				if math.IsNaN(p.Value) {
					continue
				}
				d := math.Sqrt(sq(p.Lat-lat) + sq(p.Lon-lon))
				if d >= radius {
					continue
				}
				w := 1.0 / (d + idwEpsilon)
				weightedSum += w * p.Value
				weightSum += w
			}
			if weightSum > 0 {
				layer.Values[i][j] = weightedSum / weightSum
			}
		}
	}

	if len(valid) == 0 {
		return
	}
	mean := stat.Mean(valid, nil)
	for i := range layer.Values {
		for j, v := range layer.Values[i] {
			if math.IsNaN(v) {
				layer.Values[i][j] = mean
			}
		}
	}
}

func sq(v float64) float64 { return v * v }
