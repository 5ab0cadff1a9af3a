package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validField() *GriddedField {
	return &GriddedField{
		Lats:   Axis{33.6, 34.0},
		Lons:   Axis{-118.7, -118.2},
		Values: [][]float64{{1, 2}, {3, 4}},
	}
}

func TestObservationSetValidate(t *testing.T) {
	t.Run("valid gridded set", func(t *testing.T) {
		set := ObservationSet{Variable: VarNO2, Field: validField()}
		require.NoError(t, set.Validate())
		assert.True(t, set.Gridded())
	})

	t.Run("valid point set", func(t *testing.T) {
		set := ObservationSet{
			Variable: VarPM25,
			Points:   []PointObservation{{Lat: 34, Lon: -118.2, Value: 12}},
		}
		require.NoError(t, set.Validate())
		assert.False(t, set.Gridded())
	})

	t.Run("missing variable name", func(t *testing.T) {
		require.Error(t, ObservationSet{Field: validField()}.Validate())
	})

	t.Run("both gridded and point data", func(t *testing.T) {
		set := ObservationSet{
			Variable: VarNO2,
			Field:    validField(),
			Points:   []PointObservation{{Lat: 34, Lon: -118.2, Value: 1}},
		}
		require.Error(t, set.Validate())
	})

	t.Run("neither gridded nor point data", func(t *testing.T) {
		require.Error(t, ObservationSet{Variable: VarNO2}.Validate())
	})

	t.Run("row count mismatch", func(t *testing.T) {
		field := validField()
		field.Values = field.Values[:1]
		require.Error(t, ObservationSet{Variable: VarNO2, Field: field}.Validate())
	})

	t.Run("ragged rows", func(t *testing.T) {
		field := validField()
		field.Values[1] = []float64{3}
		require.Error(t, ObservationSet{Variable: VarNO2, Field: field}.Validate())
	})

	t.Run("descending field axes are accepted", func(t *testing.T) {
		field := validField()
		field.Lats = Axis{34.0, 33.6}
		require.NoError(t, ObservationSet{Variable: VarNO2, Field: field}.Validate())
	})

	t.Run("non-finite field coordinate", func(t *testing.T) {
		field := validField()
		field.Lons = Axis{-118.7, math.NaN()}
		require.Error(t, ObservationSet{Variable: VarNO2, Field: field}.Validate())
	})

	t.Run("empty field axis", func(t *testing.T) {
		field := validField()
		field.Lats = Axis{}
		field.Values = nil
		require.Error(t, ObservationSet{Variable: VarNO2, Field: field}.Validate())
	})
}
