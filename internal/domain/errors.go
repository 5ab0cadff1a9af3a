package domain

import "errors"

// Sentinel errors shared across the fusion engine and query surface.
// Fusion-time failures (ErrInsufficientCoverage, interpolation faults) abort
// the run and leave the previous grid snapshot serving; query-time failures
// are per-request and never touch the shared grid.
var (
	// ErrInsufficientCoverage means the reference source does not span at
	// least two distinct coordinates on each axis, so no grid can be built.
	ErrInsufficientCoverage = errors.New("insufficient spatial coverage to build grid")

	// ErrOutOfBounds means a query coordinate falls outside the grid extent.
	ErrOutOfBounds = errors.New("coordinate outside grid bounds")

	// ErrInvalidZoom means a tile request is outside the supported zoom
	// range or addresses a tile that does not exist at that zoom.
	ErrInvalidZoom = errors.New("tile coordinate outside supported range")

	// ErrNoSnapshot means no grid has been built yet and none could be.
	ErrNoSnapshot = errors.New("no grid snapshot available")
)
