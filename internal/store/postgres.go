package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/avery-whitehead/StreetMapsDownload/internal/db"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, &model.ConfigurationError{Item: "store.database_url", Err: eris.Wrap(err, "postgres: parse config")}
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS locations (
	uprn     TEXT PRIMARY KEY,
	x        DOUBLE PRECISION NOT NULL,
	y        DOUBLE PRECISION NOT NULL,
	lat      DOUBLE PRECISION NOT NULL,
	lng      DOUBLE PRECISION NOT NULL,
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
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_locations_postcode ON locations(postcode);
CREATE INDEX IF NOT EXISTS idx_location_rounds_round ON location_rounds(round);
CREATE INDEX IF NOT EXISTS idx_print_log_run_id ON print_log(run_id);
`

// Migrate creates the location, round and print log tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgSelectLocations = `SELECT l.uprn, l.x, l.y, l.lat, l.lng, l.address, l.street, l.town, l.postcode,
	COALESCE(string_agg(r.round, ',' ORDER BY r.round), '')
FROM locations l LEFT JOIN location_rounds r ON r.uprn = l.uprn`

// Location returns the location with the given UPRN.
func (s *PostgresStore) Location(ctx context.Context, uprn string) (*model.Location, error) {
	if err := checkUPRN(uprn); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, pgSelectLocations+` WHERE l.uprn = $1 GROUP BY l.uprn`, uprn)
	loc, err := scanLocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(uprn)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get location %s", uprn)
	}
	return &loc, nil
}

// Locations returns the locations in scope ordered by UPRN.
func (s *PostgresStore) Locations(ctx context.Context, scope model.Scope) ([]model.Location, error) {
	query := pgSelectLocations
	var args []any
	switch {
	case scope.UPRN != "":
		if err := checkUPRN(scope.UPRN); err != nil {
			return nil, err
		}
		query += ` WHERE l.uprn = $1`
		args = append(args, scope.UPRN)
	case scope.Round != "":
		query += ` WHERE l.uprn IN (SELECT uprn FROM location_rounds WHERE round = $1)`
		args = append(args, scope.Round)
	}
	query += ` GROUP BY l.uprn ORDER BY l.uprn`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list locations")
	}
	defer rows.Close()

	var out []model.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan location")
		}
		out = append(out, loc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate locations")
}

// Rounds returns the distinct round tags.
func (s *PostgresStore) Rounds(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT round FROM location_rounds WHERE round <> '' ORDER BY round`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rounds")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, eris.Wrap(err, "postgres: scan round")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate rounds")
}

// RecordPrint inserts one print log entry.
func (s *PostgresStore) RecordPrint(ctx context.Context, rec model.PrintRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO print_log (id, run_id, round, group_key, path, status, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), rec.RunID, rec.Round, rec.GroupKey, rec.Path, string(rec.Status), rec.Detail, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record print")
}

// Import upserts locations and their round tags.
func (s *PostgresStore) Import(ctx context.Context, locs []model.Location) (int64, error) {
	for _, l := range locs {
		if err := checkUPRN(l.UPRN); err != nil {
			return 0, err
		}
	}
	locRows, roundRows := importRows(locs)
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "locations",
		Columns:      locationColumns,
		ConflictKeys: []string{"uprn"},
	}, locRows)
	if err != nil {
		return 0, err
	}
	if _, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "location_rounds",
		Columns:      roundColumns,
		ConflictKeys: roundColumns,
	}, roundRows); err != nil {
		return n, err
	}
	return n, nil
}
