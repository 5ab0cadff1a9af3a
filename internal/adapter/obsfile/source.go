// Package obsfile reads observation batches from JSON files on disk. It is
// the reference implementation of the ingestion contract: upstream
// collectors (satellite, station, meteorology ETLs) drop one file per
// variable into the observations directory, and each fusion run consumes
// the whole directory.
package obsfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"log/slog"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
)

// Source loads every *.json observation set under a directory.
type Source struct {
	dir    string
	logger *slog.Logger
}

// New creates a file-backed observation source.
func New(dir string, logger *slog.Logger) *Source {
	return &Source{dir: dir, logger: logger}
}

// FetchObservations reads and validates all observation files. File order is
// lexicographic, so fusion input order is deterministic across runs. A
// malformed file fails the whole batch; partial batches would silently skew
// the composite score.
func (s *Source) FetchObservations(ctx context.Context) ([]domain.ObservationSet, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read observations dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var sets []domain.ObservationSet
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		set, err := readSet(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
		s.logger.Debug("observation set loaded",
			"file", name, "variable", set.Variable, "gridded", set.Gridded(), "points", len(set.Points))
	}
	return sets, nil
}

func readSet(path string) (domain.ObservationSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ObservationSet{}, fmt.Errorf("read %s: %w", path, err)
	}
	var set domain.ObservationSet
	if err := json.Unmarshal(data, &set); err != nil {
		return domain.ObservationSet{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := set.Validate(); err != nil {
		return domain.ObservationSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}
