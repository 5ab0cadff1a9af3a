// Package forecast produces toy short-horizon risk projections over the
// current grid. The models are deliberately simplistic placeholders
// (persistence, wind advection, diurnal cycle); their contracts are stable,
// their predictive skill is not a goal.
package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/store"
	"gonum.org/v1/gonum/stat"
)

// Model selects the projection scheme.
type Model string

const (
	// ModelPersistence assumes conditions hold, with a ±5% jitter.
	ModelPersistence Model = "persistence"
	// ModelAdvection drifts the field with the mean wind speed.
	ModelAdvection Model = "advection"
	// ModelDiurnal applies a rush-hour / overnight cycle.
	ModelDiurnal Model = "diurnal"
)

// Horizon limits, in hours.
const (
	MinHours = 1
	MaxHours = 24
)

// CellForecast is one cell's projected score for one hour.
type CellForecast struct {
	Lat        float64          `json:"lat"`
	Lon        float64          `json:"lon"`
	RiskScore  float64          `json:"risk_score"`
	RiskClass  domain.RiskClass `json:"risk_class"`
	Confidence float64          `json:"confidence"`
}

// HourForecast is the full grid projection for one hour offset.
type HourForecast struct {
	ForecastTime time.Time      `json:"forecast_time"`
	HourOffset   int            `json:"hour_offset"`
	Trend        string         `json:"trend,omitempty"`
	Cells        []CellForecast `json:"cells"`
}

// Service projects the current snapshot forward.
type Service struct {
	store *store.Store

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a forecast Service. A nil rng gets a randomly seeded source;
// tests inject a fixed-seed source for deterministic output.
func New(s *store.Store, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Service{store: s, rng: rng}
}

// Forecast projects hours steps ahead with the chosen model. Cells without a
// valid score are skipped; every prediction is clamped to [0,100].
func (s *Service) Forecast(ctx context.Context, hours int, model Model) ([]HourForecast, error) {
	if hours < MinHours || hours > MaxHours {
		return nil, fmt.Errorf("forecast hours %d outside [%d, %d]", hours, MinHours, MaxHours)
	}
	switch model {
	case ModelPersistence, ModelAdvection, ModelDiurnal:
	default:
		return nil, fmt.Errorf("unknown forecast model %q", model)
	}

	grid, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	base := domain.Clock().Now().UTC()
	meanWind := meanLayer(grid, domain.VarWind, 2.0)

	out := make([]HourForecast, 0, hours)
	for h := 1; h <= hours; h++ {
		hf := HourForecast{
			ForecastTime: base.Add(time.Duration(h) * time.Hour),
			HourOffset:   h,
		}

		factor := 1.0
		confidence := 0.8
		switch model {
		case ModelAdvection:
			factor = 1.0 + meanWind*float64(h)*0.1
			confidence = math.Max(0.3, 1.0-float64(h)*0.1)
		case ModelDiurnal:
			factor = diurnalFactor((base.Hour() + h) % 24)
			confidence = math.Max(0.5, 1.0-float64(h)*0.08)
			hf.Trend = trendLabel(factor)
		}

		for i, lat := range grid.Lats {
			for j, lon := range grid.Lons {
				score := grid.At(domain.LayerRiskScore, i, j)
				if math.IsNaN(score) {
					continue
				}
				predicted := clamp(score*factor*s.jitter(model), 0, 100)
				hf.Cells = append(hf.Cells, CellForecast{
					Lat:        lat,
					Lon:        lon,
					RiskScore:  predicted,
					RiskClass:  domain.Classify(predicted),
					Confidence: confidence,
				})
			}
		}
		out = append(out, hf)
	}
	return out, nil
}

// jitter draws the per-cell random perturbation for a model.
func (s *Service) jitter(model Model) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch model {
	case ModelPersistence:
		return uniform(s.rng, 0.95, 1.05)
	case ModelAdvection:
		return uniform(s.rng, 0.8, 1.2)
	default:
		return uniform(s.rng, 0.9, 1.1)
	}
}

// diurnalFactor encodes the toy daily cycle: traffic peaks worsen the
// index, pre-dawn hours improve it.
func diurnalFactor(hourOfDay int) float64 {
	switch {
	case hourOfDay >= 9 && hourOfDay <= 11, hourOfDay >= 17 && hourOfDay <= 19:
		return 1.3
	case hourOfDay >= 2 && hourOfDay <= 5:
		return 0.7
	default:
		return 1.0
	}
}

func trendLabel(factor float64) string {
	switch {
	case factor > 1.1:
		return "worse"
	case factor < 0.9:
		return "better"
	default:
		return "stable"
	}
}

// meanLayer averages a layer's valid cells, falling back when absent.
func meanLayer(grid *domain.Grid, name string, fallback float64) float64 {
	layer, ok := grid.Layer(name)
	if !ok {
		return fallback
	}
	valid := layer.Valid()
	if len(valid) == 0 {
		return fallback
	}
	return stat.Mean(valid, nil)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
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
