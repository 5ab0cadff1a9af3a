package domain

import (
	"fmt"
	"math"
	"sort"
)

// Axis is an ordered, strictly increasing sequence of coordinate values
// (latitudes or longitudes) in decimal degrees.
type Axis []float64

// NewAxis sorts and deduplicates values into a valid Axis. Non-finite values
// are dropped. Returns ErrInsufficientCoverage when fewer than two distinct
// finite values remain.
func NewAxis(values []float64) (Axis, error) {
	uniq := make([]float64, 0, len(values))
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		uniq = append(uniq, v)
	}
	if len(uniq) < 2 {
		return nil, fmt.Errorf("%w: %d distinct values", ErrInsufficientCoverage, len(uniq))
	}
	sort.Float64s(uniq)
	return Axis(uniq), nil
}

// Validate reports whether the axis is strictly increasing with length ≥ 2.
func (a Axis) Validate() error {
	if len(a) < 2 {
		return fmt.Errorf("%w: axis length %d", ErrInsufficientCoverage, len(a))
	}
	for i := 1; i < len(a); i++ {
		if !(a[i] > a[i-1]) {
			return fmt.Errorf("axis not strictly increasing at index %d (%v >= %v)", i, a[i-1], a[i])
		}
	}
	return nil
}

// Nearest returns the index of the axis value closest to v.
// Ties resolve to the lower index, which keeps lookups deterministic.
func (a Axis) Nearest(v float64) int {
	i := sort.SearchFloat64s(a, v)
	if i == 0 {
		return 0
	}
	if i == len(a) {
		return len(a) - 1
	}
	if v-a[i-1] <= a[i]-v {
		return i - 1
	}
	return i
}

// Min returns the first (smallest) axis value.
func (a Axis) Min() float64 { return a[0] }

// Max returns the last (largest) axis value.
func (a Axis) Max() float64 { return a[len(a)-1] }

// BoundingBox is a geographic extent: west < east, south < north.
type BoundingBox struct {
	West  float64 `json:"lon_min"`
	South float64 `json:"lat_min"`
	East  float64 `json:"lon_max"`
	North float64 `json:"lat_max"`
}

// Contains reports whether the point lies inside the box (edges inclusive).
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// Intersects reports whether two boxes overlap at all.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.West <= o.East && o.West <= b.East && b.South <= o.North && o.South <= b.North
}

// Layer is one named variable's values across every grid node. Values[i][j]
// pairs with (lats[i], lons[j]); NaN marks a missing cell.
type Layer struct {
	Name     string      `json:"name"`
	Unit     string      `json:"unit,omitempty"`
	Source   string      `json:"source,omitempty"`
	LongName string      `json:"long_name,omitempty"`
	Values   [][]float64 `json:"values"`
}

// NewLayer allocates an all-NaN layer with the given shape.
func NewLayer(name string, nLat, nLon int) *Layer {
	values := make([][]float64, nLat)
	for i := range values {
		row := make([]float64, nLon)
		for j := range row {
			row[j] = math.NaN()
		}
		values[i] = row
	}
	return &Layer{Name: name, Values: values}
}

// Shape returns (rows, cols) of the layer.
func (l *Layer) Shape() (int, int) {
	if len(l.Values) == 0 {
		return 0, 0
	}
	return len(l.Values), len(l.Values[0])
}

// Valid collects every finite cell value into a flat slice, in row-major order.
func (l *Layer) Valid() []float64 {
	var out []float64
	for _, row := range l.Values {
		for _, v := range row {
			if !math.IsNaN(v) {
				out = append(out, v)
			}
		}
	}
	return out
}

// Grid is the canonical lat/lon product grid with its variable layers.
// A Grid is built once per fusion run and never mutated afterwards; all
// query paths treat it as an immutable snapshot.
type Grid struct {
	Lats   Axis              `json:"lats"`
	Lons   Axis              `json:"lons"`
	Layers map[string]*Layer `json:"layers"`

	// order preserves layer insertion order for deterministic iteration.
	order []string
}

// NewGrid creates an empty grid over validated axes.
func NewGrid(lats, lons Axis) (*Grid, error) {
	if err := lats.Validate(); err != nil {
		return nil, fmt.Errorf("lat axis: %w", err)
	}
	if err := lons.Validate(); err != nil {
		return nil, fmt.Errorf("lon axis: %w", err)
	}
	return &Grid{Lats: lats, Lons: lons, Layers: make(map[string]*Layer)}, nil
}

// AddLayer attaches a layer after checking its shape against the axes.
// Re-adding a name replaces the previous layer.
func (g *Grid) AddLayer(l *Layer) error {
	rows, cols := l.Shape()
	if rows != len(g.Lats) || cols != len(g.Lons) {
		return fmt.Errorf("layer %q shape %dx%d does not match grid %dx%d",
			l.Name, rows, cols, len(g.Lats), len(g.Lons))
	}
	if _, exists := g.Layers[l.Name]; !exists {
		g.order = append(g.order, l.Name)
	}
	g.Layers[l.Name] = l
	return nil
}

// Layer returns the named layer, if present.
func (g *Grid) Layer(name string) (*Layer, bool) {
	l, ok := g.Layers[name]
	return l, ok
}

// Variables lists layer names in insertion order.
func (g *Grid) Variables() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Bounds returns the grid extent from the axis endpoints.
func (g *Grid) Bounds() BoundingBox {
	return BoundingBox{
		West:  g.Lons.Min(),
		South: g.Lats.Min(),
		East:  g.Lons.Max(),
		North: g.Lats.Max(),
	}
}

// NearestNode returns the indices of the grid node closest to (lat, lon).
func (g *Grid) NearestNode(lat, lon float64) (int, int) {
	return g.Lats.Nearest(lat), g.Lons.Nearest(lon)
}

// At reads one cell of a named layer. Returns NaN when the layer is absent.
func (g *Grid) At(name string, i, j int) float64 {
	l, ok := g.Layers[name]
	if !ok {
		return math.NaN()
	}
	return l.Values[i][j]
}
