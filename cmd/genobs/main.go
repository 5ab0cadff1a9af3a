// Command genobs generates a deterministic set of synthetic observation
// files covering the Los Angeles basin, one JSON file per variable, in the
// format the obsfile source reads. The fixtures exercise every fusion path:
// gridded fields on mismatched axes, sparse station points, missing cells,
// and wind components that must be combined into speed.
//
// Usage:
//
//	go run ./cmd/genobs -out data/observations
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
)

// Basin extent and target resolution. The reference no2 grid defines the
// fused grid's axes; the other fields deliberately use offset axes so the
// nearest-cell projection path gets exercised.
const (
	latMin, latMax = 33.6, 34.4
	lonMin, lonMax = -118.7, -117.8
	gridN          = 24
	seed           = 20260830
)

func main() {
	out := flag.String("out", "data/observations", "output directory for observation JSON files")
	flag.Parse()

	if err := run(*out); err != nil {
		log.Fatal(err)
	}
}

func run(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(seed, 0))
	lats := axis(latMin, latMax, gridN)
	lons := axis(lonMin, lonMax, gridN)
	offLats := axis(latMin+0.01, latMax+0.01, gridN-3)
	offLons := axis(lonMin+0.01, lonMax+0.01, gridN-3)

	sets := []domain.ObservationSet{
		{
			Variable: domain.VarNO2,
			Unit:     "molec/cm^2",
			Source:   "tempo",
			LongName: "tropospheric NO2 column",
			Field:    plumeField(rng, lats, lons, 8e15, 4e15, 0.02),
		},
		{
			Variable: domain.VarO3,
			Unit:     "DU",
			Source:   "tempo",
			LongName: "total column ozone",
			Field:    plumeField(rng, offLats, offLons, 310, 25, 0.0),
		},
		{
			Variable: domain.VarPM25,
			Unit:     "ug/m^3",
			Source:   "openaq",
			LongName: "fine particulate matter",
			Points:   stations(rng, 18, 8, 35),
		},
		{
			Variable: domain.VarTemp,
			Unit:     "K",
			Source:   "merra2",
			LongName: "2-metre air temperature",
			Field:    plumeField(rng, offLats, offLons, 300, 6, 0.0),
		},
		{
			Variable: "u_wind",
			Unit:     "m/s",
			Source:   "merra2",
			LongName: "eastward wind at 10m",
			Field:    plumeField(rng, offLats, offLons, 1.5, 2.0, 0.0),
		},
		{
			Variable: "v_wind",
			Unit:     "m/s",
			Source:   "merra2",
			LongName: "northward wind at 10m",
			Field:    plumeField(rng, offLats, offLons, 0.5, 1.5, 0.0),
		},
		{
			Variable: domain.VarRain,
			Unit:     "mm/hr",
			Source:   "imerg",
			LongName: "precipitation rate",
			Field:    sparseRain(rng, offLats, offLons),
		},
	}

	for i, set := range sets {
		name := fmt.Sprintf("%02d_%s.json", i, set.Variable)
		if err := writeSet(filepath.Join(dir, name), set); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		log.Printf("wrote %s (%s from %s)", name, set.Variable, set.Source)
	}
	return nil
}

func axis(lo, hi float64, n int) domain.Axis {
	values := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range values {
		values[i] = lo + step*float64(i)
	}
	return values
}

// plumeField builds a gridded field with a smooth hotspot near downtown plus
// noise. gapFrac cells are dropped to NaN to exercise missing-data handling.
func plumeField(rng *rand.Rand, lats, lons domain.Axis, base, amplitude, gapFrac float64) *domain.GriddedField {
	const hotLat, hotLon = 34.05, -118.25

	values := make([][]float64, len(lats))
	for i, lat := range lats {
		row := make([]float64, len(lons))
		for j, lon := range lons {
			if rng.Float64() < gapFrac {
				row[j] = math.NaN()
				continue
			}
			d2 := (lat-hotLat)*(lat-hotLat) + (lon-hotLon)*(lon-hotLon)
			plume := amplitude * math.Exp(-d2/0.08)
			noise := amplitude * 0.1 * (rng.Float64() - 0.5)
			row[j] = base + plume + noise
		}
		values[i] = row
	}
	return &domain.GriddedField{Lats: lats, Lons: lons, Values: values}
}

// sparseRain is mostly dry with a wet band in the north, so washout applies
// to some cells and not others.
func sparseRain(rng *rand.Rand, lats, lons domain.Axis) *domain.GriddedField {
	values := make([][]float64, len(lats))
	for i, lat := range lats {
		row := make([]float64, len(lons))
		for j := range lons {
			if lat > 34.25 {
				row[j] = 0.5 + 1.5*rng.Float64()
			} else {
				row[j] = 0
			}
		}
		values[i] = row
	}
	return &domain.GriddedField{Lats: lats, Lons: lons, Values: values}
}

// stations scatters point monitors across the basin. A deliberate gap in the
// northwest corner leaves cells outside every station's radius, which the
// interpolator backfills with the station mean.
func stations(rng *rand.Rand, count int, base, spread float64) []domain.PointObservation {
	points := make([]domain.PointObservation, 0, count)
	for len(points) < count {
		lat := latMin + rng.Float64()*(latMax-latMin)
		lon := lonMin + rng.Float64()*(lonMax-lonMin)
		if lat > 34.2 && lon < -118.5 {
			continue
		}
		points = append(points, domain.PointObservation{
			Lat:   lat,
			Lon:   lon,
			Value: base + rng.Float64()*spread,
		})
	}
	return points
}

func writeSet(path string, set domain.ObservationSet) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
