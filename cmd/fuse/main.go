// Command fuse runs a single fusion pass over a directory of observation
// files and writes the resulting grid artifact to SQLite. The long-running
// service can then seed its store from the artifact at startup.
//
// Usage:
//
//	go run ./cmd/fuse -obs-dir data/observations -out data/airgrid.db
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/air-risk-grid-service/internal/adapter/gridio"
	"github.com/couchcryptid/air-risk-grid-service/internal/adapter/obsfile"
	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/fusion"
	"github.com/couchcryptid/air-risk-grid-service/internal/observability"
)

func main() {
	obsDir := flag.String("obs-dir", "data/observations", "directory of observation set JSON files")
	out := flag.String("out", "data/airgrid.db", "output path for the SQLite grid artifact")
	referenceVar := flag.String("reference-var", "no2", "variable whose field defines the target grid")
	radius := flag.Float64("radius", fusion.DefaultStationRadiusDeg, "IDW influence radius in degrees")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := observability.NewLogger(*logLevel, "text")
	metrics := observability.NewMetricsForTesting()

	pipeline := fusion.New(
		obsfile.New(*obsDir, logger),
		fusion.Interpolator{StationRadiusDeg: *radius},
		fusion.Compositor{},
		*referenceVar,
		logger,
		metrics,
	)

	ctx := context.Background()
	grid, err := pipeline.Run(ctx)
	if err != nil {
		logger.Error("fusion run failed", "error", err)
		os.Exit(1)
	}

	if err := gridio.Save(ctx, grid, *out); err != nil {
		logger.Error("artifact save failed", "path", *out, "error", err)
		os.Exit(1)
	}

	printSummary(grid, *out)
}

func printSummary(grid *domain.Grid, path string) {
	bounds := grid.Bounds()
	fmt.Printf("artifact: %s\n", path)
	fmt.Printf("grid: %d x %d cells, lat [%.3f, %.3f], lon [%.3f, %.3f]\n",
		len(grid.Lats), len(grid.Lons), bounds.South, bounds.North, bounds.West, bounds.East)
	fmt.Printf("layers: %v\n", grid.Variables())

	scores := grid.Layers[domain.LayerRiskScore]
	if scores == nil {
		return
	}

	var sum float64
	var valid, high, moderate, low int
	maxScore := math.Inf(-1)
	for _, row := range scores.Values {
		for _, v := range row {
			if math.IsNaN(v) {
				continue
			}
			valid++
			sum += v
			if v > maxScore {
				maxScore = v
			}
			switch domain.Classify(v) {
			case domain.RiskHigh:
				high++
			case domain.RiskModerate:
				moderate++
			default:
				low++
			}
		}
	}
	if valid == 0 {
		fmt.Println("risk: no scored cells")
		return
	}
	fmt.Printf("risk: mean %.1f, max %.1f over %d cells (high=%d moderate=%d low=%d)\n",
		sum/float64(valid), maxScore, valid, high, moderate, low)
}
