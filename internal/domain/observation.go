package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// PointObservation is a single station reading.
type PointObservation struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Value float64 `json:"value"`
}

// GriddedField carries a source's own axes and row-major values, which may
// differ in resolution and extent from the canonical grid. Source axes come
// as delivered by the instrument and are not required to be sorted;
// descending-latitude satellite scans are common.
type GriddedField struct {
	Lats   Axis        `json:"lats"`
	Lons   Axis        `json:"lons"`
	Values [][]float64 `json:"values"`
}

// griddedFieldJSON is the wire form of GriddedField: JSON has no NaN, so
// missing cells travel as null.
type griddedFieldJSON struct {
	Lats   Axis         `json:"lats"`
	Lons   Axis         `json:"lons"`
	Values [][]*float64 `json:"values"`
}

// MarshalJSON encodes missing (NaN) cells as null.
func (f GriddedField) MarshalJSON() ([]byte, error) {
	out := griddedFieldJSON{Lats: f.Lats, Lons: f.Lons, Values: make([][]*float64, len(f.Values))}
	for i, row := range f.Values {
		outRow := make([]*float64, len(row))
		for j := range row {
			if !math.IsNaN(row[j]) {
				outRow[j] = &row[j]
			}
		}
		out.Values[i] = outRow
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes null cells back to NaN.
func (f *GriddedField) UnmarshalJSON(data []byte) error {
	var in griddedFieldJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	f.Lats = in.Lats
	f.Lons = in.Lons
	f.Values = make([][]float64, len(in.Values))
	for i, row := range in.Values {
		outRow := make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				outRow[j] = math.NaN()
			} else {
				outRow[j] = *v
			}
		}
		f.Values[i] = outRow
	}
	return nil
}

// ObservationSet is one variable's worth of input to a fusion run: either a
// gridded field or a list of scattered points, never both.
type ObservationSet struct {
	Variable string `json:"variable"`
	Unit     string `json:"unit,omitempty"`
	Source   string `json:"source,omitempty"`
	LongName string `json:"long_name,omitempty"`

	Field  *GriddedField      `json:"field,omitempty"`
	Points []PointObservation `json:"points,omitempty"`
}

// Gridded reports whether the set carries a gridded field.
func (o ObservationSet) Gridded() bool { return o.Field != nil }

// Validate checks the structural invariants of the set.
func (o ObservationSet) Validate() error {
	if o.Variable == "" {
		return fmt.Errorf("observation set missing variable name")
	}
	if o.Field != nil && len(o.Points) > 0 {
		return fmt.Errorf("observation set %q has both gridded and point data", o.Variable)
	}
	if o.Field == nil && len(o.Points) == 0 {
		return fmt.Errorf("observation set %q is empty", o.Variable)
	}
	if o.Field != nil {
		if err := finiteCoords(o.Field.Lats); err != nil {
			return fmt.Errorf("%q field lat axis: %w", o.Variable, err)
		}
		if err := finiteCoords(o.Field.Lons); err != nil {
			return fmt.Errorf("%q field lon axis: %w", o.Variable, err)
		}
		if len(o.Field.Values) != len(o.Field.Lats) {
			return fmt.Errorf("%q field has %d rows for %d latitudes", o.Variable, len(o.Field.Values), len(o.Field.Lats))
		}
		for i, row := range o.Field.Values {
			if len(row) != len(o.Field.Lons) {
				return fmt.Errorf("%q field row %d has %d cols for %d longitudes", o.Variable, i, len(row), len(o.Field.Lons))
			}
		}
	}
	return nil
}

// finiteCoords checks a source field axis: non-empty with every coordinate
// finite. Ordering is not an input invariant; consumers that need sorted
// unique axes derive them with NewAxis.
func finiteCoords(coords Axis) error {
	if len(coords) == 0 {
		return fmt.Errorf("empty axis")
	}
	for i, v := range coords {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite coordinate at index %d", i)
		}
	}
	return nil
}
