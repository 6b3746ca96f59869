// Package store reads location records and keeps the print log.
package store

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/avery-whitehead/StreetMapsDownload/internal/config"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// Store is the location source used by the pipeline.
type Store interface {
	// Location returns one location. The UPRN is validated before any lookup.
	Location(ctx context.Context, uprn string) (*model.Location, error)
	// Locations returns every location in scope with its round tags.
	Locations(ctx context.Context, scope model.Scope) ([]model.Location, error)
	// Rounds returns the distinct non-empty round tags, sorted.
	Rounds(ctx context.Context) ([]string, error)
	// RecordPrint appends an entry to the print log.
	RecordPrint(ctx context.Context, rec model.PrintRecord) error
	Close() error
}

// Migrator is implemented by stores that own their schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Importer is implemented by stores that accept bulk location loads.
type Importer interface {
	Import(ctx context.Context, locs []model.Location) (int64, error)
}

// New opens the store selected by cfg.Driver. Database stores are migrated.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "sqlite":
		dsn := cfg.Path
		if dsn == "" {
			dsn = cfg.DatabaseURL
		}
		st, err = NewSQLite(dsn)
	case "csv", "xlsx":
		st, err = NewFile(cfg.Path, cfg.Sheet)
	default:
		return nil, &model.ConfigurationError{Item: "store.driver", Err: eris.Errorf("store: unknown driver %q", cfg.Driver)}
	}
	if err != nil {
		return nil, err
	}
	if m, ok := st.(Migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	return st, nil
}

// LoadAll fetches the locations in scope and the known rounds concurrently.
func LoadAll(ctx context.Context, st Store, scope model.Scope) ([]model.Location, []string, error) {
	var (
		locs   []model.Location
		rounds []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		locs, err = st.Locations(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		rounds, err = st.Rounds(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return locs, rounds, nil
}

func checkUPRN(uprn string) error {
	if !model.ValidUPRN(uprn) {
		return &model.DataError{Group: uprn, Reason: "uprn must be 12 digits"}
	}
	return nil
}

func notFound(uprn string) error {
	return &model.DataError{Group: uprn, Reason: "uprn not found"}
}

// normalize rounds coordinates the way locations are loaded: grid
// coordinates to 2 dp, geographic to 15 dp.
func normalize(l *model.Location) {
	l.X = roundTo(l.X, 2)
	l.Y = roundTo(l.Y, 2)
	l.Lat = roundTo(l.Lat, 15)
	l.Lng = roundTo(l.Lng, 15)
}

func roundTo(v float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// splitRounds parses an aggregated round list into sorted distinct tags.
func splitRounds(s string) []string {
	var out []string
	for _, r := range strings.FieldsFunc(s, func(c rune) bool { return c == ',' || c == ';' || c == '|' }) {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanLocation reads the column list shared by the database stores.
func scanLocation(row rowScanner) (model.Location, error) {
	var (
		l      model.Location
		rounds string
	)
	if err := row.Scan(&l.UPRN, &l.X, &l.Y, &l.Lat, &l.Lng, &l.Address, &l.Street, &l.Town, &l.Postcode, &rounds); err != nil {
		return model.Location{}, err
	}
	l.Rounds = splitRounds(rounds)
	normalize(&l)
	return l, nil
}

// importRows flattens locations into the locations and location_rounds column sets.
func importRows(locs []model.Location) (loc, rounds [][]any) {
	loc = make([][]any, 0, len(locs))
	for _, l := range locs {
		loc = append(loc, []any{l.UPRN, l.X, l.Y, l.Lat, l.Lng, l.Address, l.Street, l.Town, l.Postcode})
		for _, r := range l.Rounds {
			rounds = append(rounds, []any{l.UPRN, r})
		}
	}
	return loc, rounds
}

var (
	locationColumns = []string{"uprn", "x", "y", "lat", "lng", "address", "street", "town", "postcode"}
	roundColumns    = []string{"uprn", "round"}
)
