package fusion

import (
	"context"
	"fmt"
	"math"
	"time"

	"log/slog"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/observability"
)

// Source supplies one fusion run's worth of observation sets. Implementations
// are the ingestion collaborators (file fixtures, object stores); the engine
// only consumes the batch.
type Source interface {
	FetchObservations(ctx context.Context) ([]domain.ObservationSet, error)
}

// Wind component variable names. When both are present as gridded sources
// the pipeline derives the wind-speed layer from their magnitude instead of
// expecting a pre-computed wind variable.
const (
	varUWind = "u_wind"
	varVWind = "v_wind"
)

// Pipeline runs the full fusion: build grid from the reference source,
// project every variable onto it, derive wind speed, compose the risk layers.
type Pipeline struct {
	source       Source
	interpolator Interpolator
	compositor   Compositor
	referenceVar string
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// New creates a Pipeline. referenceVar names the observation set whose
// coordinates define the canonical grid; empty means domain.VarNO2 with a
// fallback to the first gridded set.
func New(source Source, interp Interpolator, comp Compositor, referenceVar string, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if referenceVar == "" {
		referenceVar = domain.VarNO2
	}
	return &Pipeline{
		source:       source,
		interpolator: interp,
		compositor:   comp,
		referenceVar: referenceVar,
		logger:       logger,
		metrics:      metrics,
	}
}

// Run executes one fusion over a fresh observation batch and returns the
// finished immutable grid. Any failure aborts this run only; callers keep
// serving the previous snapshot.
func (p *Pipeline) Run(ctx context.Context) (*domain.Grid, error) {
	start := time.Now()

	sets, err := p.source.FetchObservations(ctx)
	if err != nil {
		p.metrics.FusionRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch observations: %w", err)
	}
	if len(sets) == 0 {
		p.metrics.FusionRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch observations: empty batch")
	}

	grid, err := p.buildFromReference(sets)
	if err != nil {
		p.metrics.FusionRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	p.logger.Info("canonical grid built",
		"reference", p.referenceVar,
		"lats", len(grid.Lats),
		"lons", len(grid.Lons),
	)

	var uLayer, vLayer *domain.Layer
	for _, obs := range sets {
		layer, err := p.interpolator.Project(obs, grid)
		if err != nil {
			p.metrics.InterpolationFaults.Inc()
			p.metrics.FusionRuns.WithLabelValues("error").Inc()
			return nil, err
		}
		switch obs.Variable {
		case varUWind:
			uLayer = layer
		case varVWind:
			vLayer = layer
		default:
			if err := grid.AddLayer(layer); err != nil {
				p.metrics.FusionRuns.WithLabelValues("error").Inc()
				return nil, err
			}
		}
		p.logger.Debug("variable projected", "variable", obs.Variable, "gridded", obs.Gridded())
	}

	if uLayer != nil && vLayer != nil {
		if err := grid.AddLayer(windSpeed(uLayer, vLayer)); err != nil {
			p.metrics.FusionRuns.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	if err := p.compositor.Compose(grid); err != nil {
		p.metrics.FusionRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("compose risk layers: %w", err)
	}

	p.metrics.FusionRuns.WithLabelValues("success").Inc()
	p.metrics.FusionDuration.Observe(time.Since(start).Seconds())
	p.metrics.GridCells.Set(float64(len(grid.Lats) * len(grid.Lons)))

	p.logger.Info("fusion run complete",
		"variables", grid.Variables(),
		"cells", len(grid.Lats)*len(grid.Lons),
		"duration", time.Since(start),
	)
	return grid, nil
}

// buildFromReference builds the grid axes from the configured reference set,
// falling back to the first gridded set, then the first set of any kind.
func (p *Pipeline) buildFromReference(sets []domain.ObservationSet) (*domain.Grid, error) {
	var ref *domain.ObservationSet
	for i := range sets {
		if sets[i].Variable == p.referenceVar {
			ref = &sets[i]
			break
		}
	}
	if ref == nil {
		for i := range sets {
			if sets[i].Gridded() {
				p.logger.Warn("reference variable missing, using first gridded source",
					"wanted", p.referenceVar, "using", sets[i].Variable)
				ref = &sets[i]
				break
			}
		}
	}
	if ref == nil {
		p.logger.Warn("no gridded source available, building grid from point source",
			"using", sets[0].Variable)
		ref = &sets[0]
	}
	return BuildGrid(*ref)
}

// windSpeed combines U/V component layers into a wind-speed magnitude layer.
func windSpeed(u, v *domain.Layer) *domain.Layer {
	rows, cols := u.Shape()
	out := domain.NewLayer(domain.VarWind, rows, cols)
	out.Unit = "m/s"
	out.Source = u.Source
	out.LongName = "wind speed from U/V components"
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			uv, vv := u.Values[i][j], v.Values[i][j]
			if math.IsNaN(uv) || math.IsNaN(vv) {
				continue
			}
			out.Values[i][j] = math.Hypot(uv, vv)
		}
	}
	return out
}
