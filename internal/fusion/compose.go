package fusion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
)

// Compositor combines variable layers into the risk_score and risk_class
// layers. Weights default to domain.DefaultWeights.
type Compositor struct {
	Weights map[string]float64
}

func (c Compositor) weights() map[string]float64 {
	if len(c.Weights) > 0 {
		return c.Weights
	}
	return domain.DefaultWeights
}

// Compose derives risk_score and risk_class from the grid's variable layers
// and attaches both to the grid. Pollutant layers contribute their
// normalized value; temperature and wind contribute derived risk factors;
// precipitation applies a washout dampening after weighting. Weights of
// variables missing at a cell are excluded and the remainder renormalized
// per cell, so partial coverage never biases the score downward. Cells with
// no contributing variable stay NaN and classify as unknown.
func (c Compositor) Compose(grid *domain.Grid) error {
	weights := c.weights()
	rows, cols := len(grid.Lats), len(grid.Lons)

	type contribution struct {
		factor *domain.Layer
		weight float64
	}
	var contribs []contribution
	totalWeight := 0.0

	for _, name := range []string{domain.VarNO2, domain.VarO3, domain.VarPM25} {
		layer, ok := grid.Layer(name)
		if !ok {
			continue
		}
		contribs = append(contribs, contribution{Normalize(layer), weights[name]})
		totalWeight += weights[name]
	}
	if layer, ok := grid.Layer(domain.VarTemp); ok {
		contribs = append(contribs, contribution{temperatureFactor(layer), weights[domain.VarTemp]})
		totalWeight += weights[domain.VarTemp]
	}
	if layer, ok := grid.Layer(domain.VarWind); ok {
		contribs = append(contribs, contribution{windFactor(layer), weights[domain.VarWind]})
		totalWeight += weights[domain.VarWind]
	}

	if totalWeight == 0 {
		return fmt.Errorf("compose: no weighted variable layers present")
	}

	score := domain.NewLayer(domain.LayerRiskScore, rows, cols)
	score.Unit = "1"
	score.LongName = "composite atmospheric risk index"

	rain, hasRain := grid.Layer(domain.VarRain)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sum := 0.0
			cellWeight := 0.0
			for _, cb := range contribs {
				v := cb.factor.Values[i][j]
				if math.IsNaN(v) {
					continue
				}
				sum += cb.weight * v
				cellWeight += cb.weight
			}
			if cellWeight == 0 {
				continue
			}
			s := sum / cellWeight * 100
			if hasRain {
				s *= washoutFactor(rain.Values[i][j])
			}
			score.Values[i][j] = clamp(s, 0, 100)
		}
	}

	class := domain.NewLayer(domain.LayerRiskClass, rows, cols)
	class.LongName = "risk class code (0 low, 1 moderate, 2 high)"
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			class.Values[i][j] = domain.ClassCode(domain.Classify(score.Values[i][j]))
		}
	}

	if err := grid.AddLayer(score); err != nil {
		return err
	}
	return grid.AddLayer(class)
}

// temperatureFactor maps temperature to a photochemical risk factor:
// 0 at or below 25°C, rising linearly to 1 at 40°C. Kelvin inputs are
// detected by the layer mean and converted first.
func temperatureFactor(layer *domain.Layer) *domain.Layer {
	rows, cols := layer.Shape()
	out := domain.NewLayer(layer.Name, rows, cols)

	offset := 0.0
	if valid := layer.Valid(); len(valid) > 0 && stat.Mean(valid, nil) > 200 {
		offset = 273.15
	}

	for i, row := range layer.Values {
		for j, v := range row {
			if math.IsNaN(v) {
				continue
			}
			celsius := v - offset
			if celsius <= 25 {
				out.Values[i][j] = 0
				continue
			}
			out.Values[i][j] = clamp((celsius-25)/15, 0, 1)
		}
	}
	return out
}

// windFactor maps wind speed to a dispersion penalty: 1 below 2 m/s, linear
// decay to 0 between 2 and 5 m/s, 0 above. Low wind means poor dispersion.
func windFactor(layer *domain.Layer) *domain.Layer {
	rows, cols := layer.Shape()
	out := domain.NewLayer(layer.Name, rows, cols)
	for i, row := range layer.Values {
		for j, w := range row {
			switch {
			case math.IsNaN(w):
			case w < 2.0:
				out.Values[i][j] = 1.0
			case w < 5.0:
				out.Values[i][j] = (5.0 - w) / 3.0
			default:
				out.Values[i][j] = 0
			}
		}
	}
	return out
}

// washoutFactor dampens the score where precipitation scavenges pollutants:
// ×0.9 above 1 mm/hr, ×0.95 above 0.1 mm/hr. Missing rain means no damping.
func washoutFactor(rain float64) float64 {
	switch {
	case math.IsNaN(rain):
		return 1.0
	case rain > 1.0:
		return 0.9
	case rain > 0.1:
		return 0.95
	default:
		return 1.0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
