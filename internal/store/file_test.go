package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

const locationsCSV = `UPRN,X,Y,Lat,Lng,Address,Street,Town,Postcode,Refuse_Round,Recycling_Round
100000000001,436512.456,493821.1,54.338912345678912,-1.4345,"1 HIGH STREET, NORTHALLERTON",HIGH STREET,NORTHALLERTON,DL6 2AA,REF R1,RECY R34
100000000002,,,54.339,-1.433,"2 HIGH STREET, NORTHALLERTON",HIGH STREET,NORTHALLERTON,DL6 2AA,REF R1,
100000000003,437000,494000,54.34,-1.43,3 LOW LANE,LOW LANE,NORTHALLERTON,DL6 2AB,,
`

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "locations.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFileStore_CSV(t *testing.T) {
	st, err := NewFile(writeCSV(t, locationsCSV), "")
	require.NoError(t, err)
	ctx := context.Background()

	loc, err := st.Location(ctx, "100000000001")
	require.NoError(t, err)
	assert.Equal(t, 436512.46, loc.X)
	assert.Equal(t, "1 HIGH STREET, NORTHALLERTON", loc.Address)
	assert.Equal(t, []string{"RECY R34", "REF R1"}, loc.Rounds)

	projected, err := st.Location(ctx, "100000000002")
	require.NoError(t, err)
	assert.InDelta(t, 436600, projected.X, 2000)
	assert.InDelta(t, 493900, projected.Y, 2000)

	rounds, err := st.Rounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"RECY R34", "REF R1"}, rounds)

	inRound, err := st.Locations(ctx, model.Scope{Round: "REF R1"})
	require.NoError(t, err)
	assert.Len(t, inRound, 2)

	all, err := st.Locations(ctx, model.Scope{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = st.Location(ctx, "100000000009")
	var de *model.DataError
	assert.True(t, errors.As(err, &de))

	assert.NoError(t, st.RecordPrint(ctx, model.PrintRecord{RunID: "r", GroupKey: "DL6 2AA"}))
	assert.NoError(t, st.Close())
}

func TestFileStore_MissingColumn(t *testing.T) {
	st, err := NewFile(writeCSV(t, "uprn,postcode\n100000000001,DL6 2AA\n"), "")
	require.NoError(t, err)

	_, err = st.Locations(context.Background(), model.Scope{})
	var ce *model.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestFileStore_BadRow(t *testing.T) {
	st, err := NewFile(writeCSV(t, "uprn,lat,lng\n100000000001,north,-1.4\n"), "")
	require.NoError(t, err)

	_, err = st.Locations(context.Background(), model.Scope{})
	var de *model.DataError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, de.Reason, "row 2")
}

func TestFileStore_BadUPRN(t *testing.T) {
	st, err := NewFile(writeCSV(t, "uprn,lat,lng\n12AB,54.3,-1.4\n"), "")
	require.NoError(t, err)

	_, err = st.Locations(context.Background(), model.Scope{})
	var de *model.DataError
	assert.True(t, errors.As(err, &de))
}

func TestFileStore_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("locations")
	require.NoError(t, err)
	for _, r := range [][]string{
		{"uprn", "x", "y", "lat", "lng", "postcode", "rounds"},
		{"100000000001", "436512", "493821", "54.3389", "-1.4345", "DL6 2AA", "RECY R34; GARD R2"},
	} {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "locations.xlsx")
	require.NoError(t, f.Save(path))

	st, err := NewFile(path, "locations")
	require.NoError(t, err)
	locs, err := st.Locations(context.Background(), model.Scope{})
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, []string{"GARD R2", "RECY R34"}, locs[0].Rounds)
	assert.Equal(t, 436512.0, locs[0].X)
}

func TestNewFile_Rejects(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "locations.csv"), "")
	var ce *model.ConfigurationError
	assert.True(t, errors.As(err, &ce))

	_, err = NewFile("locations.json", "")
	assert.True(t, errors.As(err, &ce))
}
