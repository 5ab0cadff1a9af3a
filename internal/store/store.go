// Package store owns the process-wide grid snapshot: lazily built on first
// use, shared by every query path, and refreshed by swapping in a complete
// replacement rather than serving a half-built grid.
package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/observability"
)

// Builder produces a fresh grid, typically by running the fusion pipeline.
type Builder interface {
	Run(ctx context.Context) (*domain.Grid, error)
}

// Store is an injectable grid cache with single-flight loading: concurrent
// callers during the first build await the same in-flight run instead of
// triggering duplicates. Once built, reads are lock-free against an
// immutable snapshot. Refresh builds the next snapshot first and swaps it in
// on success, so in-flight queries keep the old grid during a rebuild and a
// failed rebuild leaves the previous snapshot serving (stale-but-available).
type Store struct {
	builder Builder
	logger  *slog.Logger
	metrics *observability.Metrics

	snapshot   atomic.Pointer[domain.Grid]
	generation atomic.Int64
	group      singleflight.Group
}

// New creates a Store around a builder. No build is triggered until the
// first Get or Refresh.
func New(builder Builder, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{builder: builder, logger: logger, metrics: metrics}
}

// Seed installs a pre-built grid (for example one loaded from the persisted
// artifact) as the current snapshot.
func (s *Store) Seed(grid *domain.Grid) {
	if grid == nil {
		return
	}
	s.snapshot.Store(grid)
	s.generation.Add(1)
	s.metrics.SnapshotActive.Set(1)
}

// Generation increments whenever a new snapshot is installed. Render caches
// key on it so stale tiles age out after a refresh.
func (s *Store) Generation() int64 {
	return s.generation.Load()
}

// Get returns the current snapshot, building it on first use. A build
// failure propagates to every waiting caller but does not poison the store:
// the next Get retries.
func (s *Store) Get(ctx context.Context) (*domain.Grid, error) {
	if grid := s.snapshot.Load(); grid != nil {
		return grid, nil
	}

	v, err, _ := s.group.Do("build", func() (any, error) {
		// A concurrent Refresh may have installed a snapshot while this
		// caller queued behind the flight.
		if grid := s.snapshot.Load(); grid != nil {
			return grid, nil
		}
		return s.rebuild(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNoSnapshot, err)
	}
	return v.(*domain.Grid), nil
}

// Refresh builds a new snapshot and swaps it in on success. On failure the
// previous snapshot keeps serving and the error is returned.
func (s *Store) Refresh(ctx context.Context) error {
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.rebuild(ctx)
	})
	if err != nil {
		return err
	}
	_ = v
	return nil
}

// Invalidate drops the current snapshot so the next Get rebuilds. Prefer
// Refresh for scheduled rebuilds; Invalidate discards availability.
func (s *Store) Invalidate() {
	s.snapshot.Store(nil)
	s.metrics.SnapshotActive.Set(0)
	s.logger.Info("grid snapshot invalidated")
}

// Ready reports whether a snapshot is currently being served.
func (s *Store) Ready() bool {
	return s.snapshot.Load() != nil
}

// Bounds returns the extent of the current snapshot, building it if needed.
func (s *Store) Bounds(ctx context.Context) (domain.BoundingBox, error) {
	grid, err := s.Get(ctx)
	if err != nil {
		return domain.BoundingBox{}, err
	}
	return grid.Bounds(), nil
}

func (s *Store) rebuild(ctx context.Context) (*domain.Grid, error) {
	grid, err := s.builder.Run(ctx)
	if err != nil {
		s.metrics.StoreRebuilds.WithLabelValues("error").Inc()
		s.logger.Error("grid rebuild failed", "error", err)
		return nil, err
	}
	s.snapshot.Store(grid)
	s.generation.Add(1)
	s.metrics.StoreRebuilds.WithLabelValues("success").Inc()
	s.metrics.SnapshotActive.Set(1)
	s.logger.Info("grid snapshot swapped in",
		"lats", len(grid.Lats), "lons", len(grid.Lons), "variables", grid.Variables())
	return grid, nil
}

// Registry holds one independent Store per region key. Regions never
// coordinate; each has its own builder and snapshot lifecycle.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

// NewRegistry creates an empty region registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*Store)}
}

// Add registers a store under a region key, replacing any previous entry.
func (r *Registry) Add(region string, s *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[region] = s
}

// Get returns the store for a region key.
func (r *Registry) Get(region string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[region]
	return s, ok
}

// Regions lists registered region keys.
func (r *Registry) Regions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.stores))
	for k := range r.stores {
		out = append(out, k)
	}
	return out
}
