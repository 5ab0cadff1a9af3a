package forecast

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/observability"
	"github.com/couchcryptid/air-risk-grid-service/internal/store"
)

type staticBuilder struct{ grid *domain.Grid }

func (b staticBuilder) Run(context.Context) (*domain.Grid, error) { return b.grid, nil }

func fixedRNG() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func seededService(t *testing.T, wind float64) *Service {
	t.Helper()
	grid, err := domain.NewGrid(
		domain.Axis{33.6, 34.0},
		domain.Axis{-118.7, -118.2},
	)
	require.NoError(t, err)

	score := domain.NewLayer(domain.LayerRiskScore, 2, 2)
	score.Values = [][]float64{{40, 60}, {80, math.NaN()}}
	require.NoError(t, grid.AddLayer(score))

	if wind > 0 {
		w := domain.NewLayer(domain.VarWind, 2, 2)
		w.Values = [][]float64{{wind, wind}, {wind, wind}}
		require.NoError(t, grid.AddLayer(w))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.New(staticBuilder{grid}, logger, observability.NewMetricsForTesting())
	s.Seed(grid)
	return New(s, fixedRNG())
}

func TestForecastValidation(t *testing.T) {
	svc := seededService(t, 0)
	ctx := context.Background()

	_, err := svc.Forecast(ctx, 0, ModelPersistence)
	require.Error(t, err)
	_, err = svc.Forecast(ctx, MaxHours+1, ModelPersistence)
	require.Error(t, err)
	_, err = svc.Forecast(ctx, 6, Model("oracle"))
	require.ErrorContains(t, err, "unknown forecast model")
}

func TestForecastPersistence(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	svc := seededService(t, 0)
	forecasts, err := svc.Forecast(context.Background(), 3, ModelPersistence)
	require.NoError(t, err)
	require.Len(t, forecasts, 3)

	for h, hf := range forecasts {
		assert.Equal(t, h+1, hf.HourOffset)
		assert.Equal(t, time.Date(2026, 8, 30, 13+h, 0, 0, 0, time.UTC), hf.ForecastTime)
		assert.Len(t, hf.Cells, 3, "NaN cell skipped")
		for _, c := range hf.Cells {
			assert.Equal(t, 0.8, c.Confidence)
			assert.GreaterOrEqual(t, c.RiskScore, 0.0)
			assert.LessOrEqual(t, c.RiskScore, 100.0)
			assert.Equal(t, domain.Classify(c.RiskScore), c.RiskClass)
		}
	}

	// Persistence jitter stays within ±5% of the base score.
	base := []float64{40, 60, 80}
	for i, c := range forecasts[0].Cells {
		assert.InDelta(t, base[i], c.RiskScore, base[i]*0.05+1e-9)
	}
}

func TestForecastAdvection(t *testing.T) {
	svc := seededService(t, 3.0)
	forecasts, err := svc.Forecast(context.Background(), 10, ModelAdvection)
	require.NoError(t, err)

	// Confidence decays by 0.1 per hour with a floor at 0.3.
	assert.InDelta(t, 0.9, forecasts[0].Cells[0].Confidence, 1e-9)
	assert.InDelta(t, 0.5, forecasts[4].Cells[0].Confidence, 1e-9)
	assert.InDelta(t, 0.3, forecasts[9].Cells[0].Confidence, 1e-9)

	// Mean wind 3 m/s at hour 10 gives factor 4; scores clamp at 100.
	for _, c := range forecasts[9].Cells {
		assert.Equal(t, 100.0, c.RiskScore)
	}
}

func TestForecastDiurnal(t *testing.T) {
	// Base at 07:00 UTC: +2h..+4h hit the morning traffic peak, +19h..+22h
	// the pre-dawn trough.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 7, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	svc := seededService(t, 0)
	forecasts, err := svc.Forecast(context.Background(), 24, ModelDiurnal)
	require.NoError(t, err)
	require.Len(t, forecasts, 24)

	assert.Equal(t, "stable", forecasts[0].Trend, "08:00 off-peak")
	assert.Equal(t, "worse", forecasts[1].Trend, "09:00 rush hour")
	assert.Equal(t, "worse", forecasts[3].Trend, "11:00 rush hour")
	assert.Equal(t, "stable", forecasts[4].Trend, "12:00 midday")
	assert.Equal(t, "worse", forecasts[10].Trend, "18:00 evening peak")
	assert.Equal(t, "better", forecasts[19].Trend, "03:00 overnight")

	// Confidence floor at 0.5.
	assert.InDelta(t, 0.5, forecasts[23].Cells[0].Confidence, 1e-9)
}

func TestForecastDeterministicWithFixedSeed(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	a, err := seededService(t, 0).Forecast(context.Background(), 6, ModelPersistence)
	require.NoError(t, err)
	b, err := seededService(t, 0).Forecast(context.Background(), 6, ModelPersistence)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
