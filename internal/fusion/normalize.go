package fusion

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
)

// normEpsilon guards the min-max denominator against exact-zero ranges that
// survive the constant-layer check through float rounding.
const normEpsilon = 1e-9

// Normalize min-max scales a layer into [0,1] using the global minimum and
// maximum over all valid cells. A constant or all-missing layer normalizes
// to all zeros over its valid cells. Missing cells stay NaN.
//
// Scaling is global across the whole grid extent, so absolute normalized
// values depend on the extent of the fusion run; see the domain package doc.
func Normalize(layer *domain.Layer) *domain.Layer {
	rows, cols := layer.Shape()
	out := domain.NewLayer(layer.Name, rows, cols)
	out.Unit = "1"
	out.Source = layer.Source
	out.LongName = layer.LongName

	valid := layer.Valid()
	if len(valid) == 0 {
		return out
	}

	minVal := floats.Min(valid)
	maxVal := floats.Max(valid)
	span := maxVal - minVal

	for i, row := range layer.Values {
		for j, v := range row {
			if math.IsNaN(v) {
				continue
			}
			if span == 0 {
				out.Values[i][j] = 0
				continue
			}
			out.Values[i][j] = (v - minVal) / (span + normEpsilon)
		}
	}
	return out
}
