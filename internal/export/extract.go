package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/lox/lapweather/internal/models"
)

// ErrExport means an output file could not be written.
var ErrExport = errors.New("export: write failed")

// The container is a SQLite file attached under the schema name "Extract",
// holding a single table also named "Extract".
const extractSchema = `
CREATE TABLE "Extract"."Extract" (
    LapNumber INTEGER NOT NULL,
    Driver TEXT NOT NULL,
    LapTimeSeconds REAL,
    temp REAL,
    rhum REAL,
    wspd REAL,
    Rain BOOLEAN NOT NULL,
    KMeans_Cluster INTEGER,
    DBSCAN_Cluster INTEGER
)`

const insertExtract = `
INSERT INTO "Extract"."Extract" (LapNumber, Driver, LapTimeSeconds, temp, rhum, wspd, Rain, KMeans_Cluster, DBSCAN_Cluster)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectExtract = `
SELECT LapNumber, Driver, LapTimeSeconds, temp, rhum, wspd, Rain, KMeans_Cluster, DBSCAN_Cluster
FROM "Extract"."Extract"
ORDER BY rowid`

// WriteExtract recreates the container at path from rows. Any existing file
// is removed first; nothing is appended.
func WriteExtract(ctx context.Context, path string, rows []models.FeatureRow) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", ErrExport, path, err)
	}

	if err := withExtract(ctx, path, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, extractSchema); err != nil {
			return fmt.Errorf("create table: %w", err)
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, insertExtract)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx,
				r.LapNumber, r.Driver, r.LapTimeSeconds,
				r.Temperature, r.RelativeHumidity, r.WindSpeed,
				r.IsRaining, r.KMeansCluster, r.DBSCANCluster,
			); err != nil {
				tx.Rollback()
				return fmt.Errorf("insert lap %d %s: %w", r.LapNumber, r.Driver, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExport, path, err)
	}
	return nil
}

// ReadExtract returns the rows stored in the container at path. LapStartTime
// is not part of the container and is left zero.
func ReadExtract(ctx context.Context, path string) ([]models.FeatureRow, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	var rows []models.FeatureRow
	err := withExtract(ctx, path, func(conn *sql.Conn) error {
		rs, err := conn.QueryContext(ctx, selectExtract)
		if err != nil {
			return err
		}
		defer rs.Close()

		for rs.Next() {
			var r models.FeatureRow
			if err := rs.Scan(&r.LapNumber, &r.Driver, &r.LapTimeSeconds,
				&r.Temperature, &r.RelativeHumidity, &r.WindSpeed,
				&r.IsRaining, &r.KMeansCluster, &r.DBSCANCluster); err != nil {
				return err
			}
			rows = append(rows, r)
		}
		return rs.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("read extract %s: %w", path, err)
	}
	return rows, nil
}

// withExtract attaches the file at path as schema "Extract" on a single
// connection, since ATTACH only applies to the connection that ran it.
func withExtract(ctx context.Context, path string, fn func(*sql.Conn) error) error {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS "Extract"`, path); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	if err := fn(conn); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `DETACH DATABASE "Extract"`); err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	return nil
}
