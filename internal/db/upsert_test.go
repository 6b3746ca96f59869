package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var locationsUpsert = UpsertConfig{
	Table:        "locations",
	Columns:      []string{"uprn", "postcode"},
	ConflictKeys: []string{"uprn"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, locationsUpsert, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "locations",
		ConflictKeys: []string{"uprn"},
	}, [][]any{{"100000000001"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "locations",
		Columns: []string{"uprn", "postcode"},
	}, [][]any{{"100000000001", "DL6 2AA"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_locations" \(LIKE "locations"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_locations"}, []string{"uprn", "postcode"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "locations" .* ON CONFLICT \("uprn"\) DO UPDATE SET "postcode" = EXCLUDED."postcode"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, locationsUpsert, [][]any{
		{"100000000001", "DL6 2AA"},
		{"100000000002", "DL6 2AB"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_locations"}, []string{"uprn", "postcode"}).
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, locationsUpsert, [][]any{{"100000000001", "DL6 2AA"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into temp table for locations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL_AllKeyColumnsSkipConflicts(t *testing.T) {
	sql := upsertSQL(UpsertConfig{
		Table:        "location_rounds",
		Columns:      []string{"uprn", "round"},
		ConflictKeys: []string{"uprn", "round"},
	}, `"_tmp_location_rounds"`)
	assert.Equal(t,
		`INSERT INTO "location_rounds" ("uprn", "round") SELECT "uprn", "round" FROM "_tmp_location_rounds" ON CONFLICT ("uprn", "round") DO NOTHING`,
		sql)
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"locations", `"locations"`},
		{"public.locations", `"public"."locations"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"uprn", "postcode", "town"`, quoteAndJoin([]string{"uprn", "postcode", "town"}))
}
