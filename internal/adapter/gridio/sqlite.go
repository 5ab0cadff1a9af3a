// Package gridio persists a fused grid as a single SQLite file, the durable
// artifact of a fusion run. Missing cells round-trip as SQL NULL, so a
// loaded grid is value-identical to the one saved, NaN sentinels included.
package gridio

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS axes (
	axis  TEXT NOT NULL,
	idx   INTEGER NOT NULL,
	value REAL NOT NULL,
	PRIMARY KEY (axis, idx)
);
CREATE TABLE IF NOT EXISTS layers (
	name      TEXT PRIMARY KEY,
	unit      TEXT NOT NULL DEFAULT '',
	source    TEXT NOT NULL DEFAULT '',
	long_name TEXT NOT NULL DEFAULT '',
	position  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cells (
	layer   TEXT NOT NULL,
	lat_idx INTEGER NOT NULL,
	lon_idx INTEGER NOT NULL,
	value   REAL,
	PRIMARY KEY (layer, lat_idx, lon_idx)
);
`

// Save writes the grid to path, replacing any previous artifact content.
// The whole write runs in one transaction: readers either see the previous
// complete artifact or the new one.
func Save(ctx context.Context, grid *domain.Grid, path string) (err error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create artifact schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin artifact tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback() //nolint:errcheck // original error takes precedence
		}
	}()

	for _, table := range []string{"cells", "layers", "axes"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err = saveAxis(ctx, tx, "lat", grid.Lats); err != nil {
		return err
	}
	if err = saveAxis(ctx, tx, "lon", grid.Lons); err != nil {
		return err
	}

	for pos, name := range grid.Variables() {
		layer, _ := grid.Layer(name)
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO layers (name, unit, source, long_name, position) VALUES (?, ?, ?, ?, ?)`,
			layer.Name, layer.Unit, layer.Source, layer.LongName, pos,
		); err != nil {
			return fmt.Errorf("save layer %q: %w", name, err)
		}
		if err = saveCells(ctx, tx, layer); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit artifact: %w", err)
	}
	return nil
}

func saveAxis(ctx context.Context, tx *sql.Tx, axis string, values domain.Axis) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO axes (axis, idx, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare axis insert: %w", err)
	}
	defer stmt.Close()
	for i, v := range values {
		if _, err := stmt.ExecContext(ctx, axis, i, v); err != nil {
			return fmt.Errorf("save %s axis: %w", axis, err)
		}
	}
	return nil
}

func saveCells(ctx context.Context, tx *sql.Tx, layer *domain.Layer) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cells (layer, lat_idx, lon_idx, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare cell insert: %w", err)
	}
	defer stmt.Close()
	for i, row := range layer.Values {
		for j, v := range row {
			var value any
			if !math.IsNaN(v) {
				value = v
			}
			if _, err := stmt.ExecContext(ctx, layer.Name, i, j, value); err != nil {
				return fmt.Errorf("save cells of %q: %w", layer.Name, err)
			}
		}
	}
	return nil
}

// Load reads a complete grid from an artifact file.
func Load(ctx context.Context, path string) (*domain.Grid, error) {
	// The driver creates missing files on open; stat first so a bad path is
	// an error instead of an empty database.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer db.Close()

	lats, err := loadAxis(ctx, db, "lat")
	if err != nil {
		return nil, err
	}
	lons, err := loadAxis(ctx, db, "lon")
	if err != nil {
		return nil, err
	}
	grid, err := domain.NewGrid(lats, lons)
	if err != nil {
		return nil, fmt.Errorf("artifact axes: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT name, unit, source, long_name FROM layers ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load layers: %w", err)
	}
	defer rows.Close()

	type meta struct{ name, unit, source, longName string }
	var metas []meta
	for rows.Next() {
		var m meta
		if err := rows.Scan(&m.name, &m.unit, &m.source, &m.longName); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load layers: %w", err)
	}

	for _, m := range metas {
		layer := domain.NewLayer(m.name, len(lats), len(lons))
		layer.Unit = m.unit
		layer.Source = m.source
		layer.LongName = m.longName
		if err := loadCells(ctx, db, layer); err != nil {
			return nil, err
		}
		if err := grid.AddLayer(layer); err != nil {
			return nil, err
		}
	}
	return grid, nil
}

func loadAxis(ctx context.Context, db *sql.DB, axis string) (domain.Axis, error) {
	rows, err := db.QueryContext(ctx, `SELECT value FROM axes WHERE axis = ? ORDER BY idx`, axis)
	if err != nil {
		return nil, fmt.Errorf("load %s axis: %w", axis, err)
	}
	defer rows.Close()

	var values domain.Axis
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s axis: %w", axis, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s axis: %w", axis, err)
	}
	return values, nil
}

func loadCells(ctx context.Context, db *sql.DB, layer *domain.Layer) error {
	rows, err := db.QueryContext(ctx,
		`SELECT lat_idx, lon_idx, value FROM cells WHERE layer = ?`, layer.Name)
	if err != nil {
		return fmt.Errorf("load cells of %q: %w", layer.Name, err)
	}
	defer rows.Close()

	nLat, nLon := layer.Shape()
	for rows.Next() {
		var i, j int
		var value sql.NullFloat64
		if err := rows.Scan(&i, &j, &value); err != nil {
			return fmt.Errorf("scan cell of %q: %w", layer.Name, err)
		}
		if i < 0 || i >= nLat || j < 0 || j >= nLon {
			return fmt.Errorf("cell (%d, %d) of %q outside grid shape %dx%d", i, j, layer.Name, nLat, nLon)
		}
		if value.Valid {
			layer.Values[i][j] = value.Float64
		}
	}
	return rows.Err()
}
