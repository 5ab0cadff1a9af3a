// Package tile projects grid cells into Web Mercator slippy-map raster
// tiles: standard tile-to-bounding-box geometry plus block rasterization of
// the risk layer into RGBA pixel buffers.
package tile

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"log/slog"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/store"
)

// Tile geometry constants. blockSize is the sub-sampling stride: one grid
// lookup fills a blockSize×blockSize pixel square.
const (
	MinZoom   = 0
	MaxZoom   = 18
	TileSize  = 256
	blockSize = 16
)

// Bounds converts slippy-map tile coordinates to a geographic bounding box
// using the standard Web Mercator inverse projection.
func Bounds(z, x, y int) (domain.BoundingBox, error) {
	if z < MinZoom || z > MaxZoom {
		return domain.BoundingBox{}, fmt.Errorf("%w: zoom %d", domain.ErrInvalidZoom, z)
	}
	n := 1 << z
	if x < 0 || y < 0 || x >= n || y >= n {
		return domain.BoundingBox{}, fmt.Errorf("%w: tile (%d, %d) at zoom %d", domain.ErrInvalidZoom, x, y, z)
	}

	fn := float64(n)
	return domain.BoundingBox{
		West:  float64(x)/fn*360.0 - 180.0,
		East:  float64(x+1)/fn*360.0 - 180.0,
		North: mercatorLat(float64(y) / fn),
		South: mercatorLat(float64(y+1) / fn),
	}, nil
}

// mercatorLat converts a fractional tile row to latitude in degrees.
func mercatorLat(row float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*row))) * 180.0 / math.Pi
}

// Renderer rasters the risk layer of the current grid snapshot into tiles.
type Renderer struct {
	store  *store.Store
	logger *slog.Logger
}

// NewRenderer creates a tile Renderer.
func NewRenderer(s *store.Store, logger *slog.Logger) *Renderer {
	return &Renderer{store: s, logger: logger}
}

// Render rasters one tile. Tiles disjoint from the grid extent short-circuit
// to a fully transparent image. If the context deadline expires mid-render
// the partially filled tile is returned rather than an error; tile requests
// degrade to emptiness, never to failure.
func (r *Renderer) Render(ctx context.Context, z, x, y int) (*image.RGBA, error) {
	tb, err := Bounds(z, x, y)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))

	grid, err := r.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !tb.Intersects(grid.Bounds()) {
		return img, nil
	}

	r.raster(ctx, grid, tb, img)
	return img, nil
}

// RenderPreview rasters the whole grid extent into a single image, one
// filled rectangle per grid cell.
func (r *Renderer) RenderPreview(ctx context.Context, width, height int) (*image.RGBA, error) {
	grid, err := r.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	bounds := grid.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	cellW := width / len(grid.Lons)
	cellH := height / len(grid.Lats)
	if cellW < 1 {
		cellW = 1
	}
	if cellH < 1 {
		cellH = 1
	}

	for i, lat := range grid.Lats {
		for j, lon := range grid.Lons {
			score := grid.At(domain.LayerRiskScore, i, j)
			if math.IsNaN(score) {
				continue
			}
			px := int((lon - bounds.West) / (bounds.East - bounds.West) * float64(width))
			py := int((bounds.North - lat) / (bounds.North - bounds.South) * float64(height))
			fill(img, px-cellW/2, py-cellH/2, cellW, cellH, domain.ColorFor(score))
		}
	}
	return img, nil
}

// raster fills the tile block by block: each block's center pixel maps to a
// geographic coordinate, the nearest grid node supplies the score, and the
// block takes that score's color. Blocks outside the grid extent or over
// NaN cells stay transparent.
func (r *Renderer) raster(ctx context.Context, grid *domain.Grid, tb domain.BoundingBox, img *image.RGBA) {
	gb := grid.Bounds()
	for px := 0; px < TileSize; px += blockSize {
		if ctx.Err() != nil {
			r.logger.Warn("tile render deadline hit, returning partial tile")
			return
		}
		for py := 0; py < TileSize; py += blockSize {
			lon := tb.West + (tb.East-tb.West)*(float64(px+blockSize/2)/TileSize)
			lat := tb.North + (tb.South-tb.North)*(float64(py+blockSize/2)/TileSize)
			if !gb.Contains(lat, lon) {
				continue
			}
			i, j := grid.NearestNode(lat, lon)
			score := grid.At(domain.LayerRiskScore, i, j)
			if math.IsNaN(score) {
				continue
			}
			fill(img, px, py, blockSize, blockSize, domain.ColorFor(score))
		}
	}
}

func fill(img *image.RGBA, x, y, w, h int, c color.RGBA) {
	rect := image.Rect(x, y, x+w, y+h).Intersect(img.Bounds())
	draw.Draw(img, rect, image.NewUniform(c), image.Point{}, draw.Src)
}
