package tile

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"math"
	"testing"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/observability"
	"github.com/couchcryptid/air-risk-grid-service/internal/store"
)

type staticBuilder struct{ grid *domain.Grid }

func (b staticBuilder) Run(context.Context) (*domain.Grid, error) { return b.grid, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func laStore(t *testing.T) *store.Store {
	t.Helper()
	grid, err := domain.NewGrid(
		domain.Axis{33.6, 34.0, 34.4},
		domain.Axis{-118.7, -118.2, -117.8},
	)
	require.NoError(t, err)

	score := domain.NewLayer(domain.LayerRiskScore, 3, 3)
	score.Values = [][]float64{
		{10, 10, 10},
		{50, 50, 50},
		{90, 90, math.NaN()},
	}
	require.NoError(t, grid.AddLayer(score))

	s := store.New(staticBuilder{grid}, testLogger(), observability.NewMetricsForTesting())
	s.Seed(grid)
	return s
}

func TestBounds(t *testing.T) {
	t.Run("world tile", func(t *testing.T) {
		b, err := Bounds(0, 0, 0)
		require.NoError(t, err)
		assert.InDelta(t, -180.0, b.West, 1e-9)
		assert.InDelta(t, 180.0, b.East, 1e-9)
		assert.InDelta(t, 85.0511287798, b.North, 1e-6)
		assert.InDelta(t, -85.0511287798, b.South, 1e-6)
	})

	t.Run("quadrants at zoom 1", func(t *testing.T) {
		b, err := Bounds(1, 0, 0)
		require.NoError(t, err)
		assert.InDelta(t, -180.0, b.West, 1e-9)
		assert.InDelta(t, 0.0, b.East, 1e-9)
		assert.InDelta(t, 0.0, b.South, 1e-9)
		assert.Greater(t, b.North, 85.0)
	})

	t.Run("invalid zoom", func(t *testing.T) {
		_, err := Bounds(-1, 0, 0)
		require.ErrorIs(t, err, domain.ErrInvalidZoom)
		_, err = Bounds(MaxZoom+1, 0, 0)
		require.ErrorIs(t, err, domain.ErrInvalidZoom)
	})

	t.Run("tile index outside zoom range", func(t *testing.T) {
		_, err := Bounds(2, 4, 0)
		require.ErrorIs(t, err, domain.ErrInvalidZoom)
		_, err = Bounds(2, 0, -1)
		require.ErrorIs(t, err, domain.ErrInvalidZoom)
	})
}

func TestRender(t *testing.T) {
	r := NewRenderer(laStore(t), testLogger())
	ctx := context.Background()

	t.Run("tile over the grid has colored pixels", func(t *testing.T) {
		// Zoom 8 tile containing the LA basin: lon -118.2 → x ≈ 43, lat 34 → y ≈ 102.
		img, err := r.Render(ctx, 8, 43, 102)
		require.NoError(t, err)

		colored := 0
		for px := 0; px < TileSize; px++ {
			for py := 0; py < TileSize; py++ {
				if _, _, _, a := img.At(px, py).RGBA(); a > 0 {
					colored++
				}
			}
		}
		assert.Greater(t, colored, 0)
	})

	t.Run("blocks sample at their center pixel", func(t *testing.T) {
		img, err := r.Render(ctx, 8, 43, 102)
		require.NoError(t, err)

		// The block at (144, 64) straddles the grid's western edge: its
		// top-left corner maps to lon -118.74, outside the extent, while its
		// center maps to (33.98, -118.70), inside and nearest the score-50
		// node. The whole block takes the moderate color.
		assert.Equal(t, domain.ColorModerate, img.RGBAAt(144, 64))
		assert.Equal(t, domain.ColorModerate, img.RGBAAt(159, 79))
	})

	t.Run("disjoint tile is fully transparent", func(t *testing.T) {
		img, err := r.Render(ctx, 8, 0, 0)
		require.NoError(t, err)
		for px := 0; px < TileSize; px += 16 {
			for py := 0; py < TileSize; py += 16 {
				_, _, _, a := img.At(px, py).RGBA()
				assert.Zero(t, a)
			}
		}
	})

	t.Run("invalid zoom propagates", func(t *testing.T) {
		_, err := r.Render(ctx, 99, 0, 0)
		require.ErrorIs(t, err, domain.ErrInvalidZoom)
	})

	t.Run("expired context yields partial tile, not error", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		img, err := r.Render(cancelled, 8, 43, 102)
		require.NoError(t, err)
		require.NotNil(t, img)
	})
}

func TestRenderPreview(t *testing.T) {
	r := NewRenderer(laStore(t), testLogger())
	img, err := r.RenderPreview(context.Background(), 128, 128)
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())

	colored := 0
	for px := 0; px < 128; px++ {
		for py := 0; py < 128; py++ {
			if _, _, _, a := img.At(px, py).RGBA(); a > 0 {
				colored++
			}
		}
	}
	assert.Greater(t, colored, 0)
}

func TestCachedRenderer(t *testing.T) {
	s := laStore(t)
	cached := NewCachedRenderer(NewRenderer(s, testLogger()), s, 8)
	ctx := context.Background()

	t.Run("returns decodable png", func(t *testing.T) {
		data, err := cached.RenderPNG(ctx, 8, 43, 102)
		require.NoError(t, err)

		img, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, TileSize, img.Bounds().Dx())
	})

	t.Run("repeat render hits the cache", func(t *testing.T) {
		first, err := cached.RenderPNG(ctx, 8, 43, 102)
		require.NoError(t, err)
		second, err := cached.RenderPNG(ctx, 8, 43, 102)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("generation bump invalidates the key", func(t *testing.T) {
		before := s.Generation()
		require.NoError(t, s.Refresh(ctx))
		assert.Greater(t, s.Generation(), before)

		// A fresh key renders again rather than serving the old entry.
		data, err := cached.RenderPNG(ctx, 8, 43, 102)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	})

	t.Run("preview encodes", func(t *testing.T) {
		data, err := cached.Preview(ctx, 64, 64)
		require.NoError(t, err)
		_, err = png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
	})
}

func TestLRUCacheEviction(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", []byte("1"))
	c.put("b", []byte("2"))

	_, ok := c.get("a") // refresh "a" so "b" is the LRU entry
	require.True(t, ok)

	c.put("c", []byte("3"))
	_, ok = c.get("b")
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}
