package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, &model.ConfigurationError{Item: "store.path", Err: eris.New("sqlite: empty path")}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS locations (
	uprn     TEXT PRIMARY KEY,
	x        REAL NOT NULL,
	y        REAL NOT NULL,
	lat      REAL NOT NULL,
	lng      REAL NOT NULL,
	address  TEXT NOT NULL DEFAULT '',
	street   TEXT NOT NULL DEFAULT '',
	town     TEXT NOT NULL DEFAULT '',
	postcode TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS location_rounds (
	uprn  TEXT NOT NULL REFERENCES locations(uprn),
	round TEXT NOT NULL,
	PRIMARY KEY (uprn, round)
);

CREATE TABLE IF NOT EXISTS print_log (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	round      TEXT NOT NULL DEFAULT '',
	group_key  TEXT NOT NULL,
	path       TEXT NOT NULL,
	status     TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_locations_postcode ON locations(postcode);
CREATE INDEX IF NOT EXISTS idx_location_rounds_round ON location_rounds(round);
CREATE INDEX IF NOT EXISTS idx_print_log_run_id ON print_log(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteSelectLocations = `SELECT l.uprn, l.x, l.y, l.lat, l.lng, l.address, l.street, l.town, l.postcode,
	COALESCE(group_concat(r.round, ','), '')
FROM locations l LEFT JOIN location_rounds r ON r.uprn = l.uprn`

func (s *SQLiteStore) Location(ctx context.Context, uprn string) (*model.Location, error) {
	if err := checkUPRN(uprn); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, sqliteSelectLocations+` WHERE l.uprn = ? GROUP BY l.uprn`, uprn)
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(uprn)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get location %s", uprn)
	}
	return &loc, nil
}

func (s *SQLiteStore) Locations(ctx context.Context, scope model.Scope) ([]model.Location, error) {
	query := sqliteSelectLocations
	var args []any
	switch {
	case scope.UPRN != "":
		if err := checkUPRN(scope.UPRN); err != nil {
			return nil, err
		}
		query += ` WHERE l.uprn = ?`
		args = append(args, scope.UPRN)
	case scope.Round != "":
		query += ` WHERE l.uprn IN (SELECT uprn FROM location_rounds WHERE round = ?)`
		args = append(args, scope.Round)
	}
	query += ` GROUP BY l.uprn ORDER BY l.uprn`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list locations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location")
		}
		out = append(out, loc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate locations")
}

func (s *SQLiteStore) Rounds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT round FROM location_rounds WHERE round <> '' ORDER BY round`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rounds")
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan round")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate rounds")
}

func (s *SQLiteStore) RecordPrint(ctx context.Context, rec model.PrintRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO print_log (id, run_id, round, group_key, path, status, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), rec.RunID, rec.Round, rec.GroupKey, rec.Path, string(rec.Status), rec.Detail, rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: record print")
}

// Prints returns the print log entries of a run in insertion order.
func (s *SQLiteStore) Prints(ctx context.Context, runID string) ([]model.PrintRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, round, group_key, path, status, detail, created_at FROM print_log WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prints")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PrintRecord
	for rows.Next() {
		var (
			rec    model.PrintRecord
			status string
		)
		if err := rows.Scan(&rec.RunID, &rec.Round, &rec.GroupKey, &rec.Path, &status, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan print")
		}
		rec.Status = model.PrintStatus(status)
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate prints")
}

// Import upserts locations and their round tags in one transaction.
func (s *SQLiteStore) Import(ctx context.Context, locs []model.Location) (int64, error) {
	for _, l := range locs {
		if err := checkUPRN(l.UPRN); err != nil {
			return 0, err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	locRows, roundRows := importRows(locs)
	var n int64
	for _, r := range locRows {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO locations (uprn, x, y, lat, lng, address, street, town, postcode) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (uprn) DO UPDATE SET x = excluded.x, y = excluded.y, lat = excluded.lat, lng = excluded.lng,
			address = excluded.address, street = excluded.street, town = excluded.town, postcode = excluded.postcode`, r...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import location %v", r[0])
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	for _, r := range roundRows {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO location_rounds (uprn, round) VALUES (?, ?)`, r...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import round %v", r)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return n, nil
}
