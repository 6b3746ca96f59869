package export

import (
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

func groups() []model.Group {
	return []model.Group{
		{
			Key:  "DL6 2AA",
			Fill: model.Color{R: 0xe6, G: 0xf0, B: 0xfa, A: 0xff},
			Members: []model.Location{
				{UPRN: "100000000001", X: 436512.46, Y: 493821.1, Lat: 54.3, Lng: -1.4, Postcode: "dl6 2aa"},
				{UPRN: "100000000002", X: 436600, Y: 493900, Lat: 54.5, Lng: -1.2, Postcode: "DL6 2AA"},
			},
			Rounds: []string{"RECY R34", "GARD R2"},
		},
		{
			Key:     "noise",
			Noise:   true,
			Members: []model.Location{{UPRN: "100000000003", X: 437000, Y: 494000, Lat: 54.4, Lng: -1.3, Postcode: "DL6 2AB"}},
		},
	}
}

func TestShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "groups.shp")
	require.NoError(t, Shapefile(path, groups()))

	r, err := shp.Open(path)
	require.NoError(t, err)
	defer r.Close()

	var got [][]string
	var xs []float64
	for r.Next() {
		n, s := r.Shape()
		p, ok := s.(*shp.Point)
		require.True(t, ok)
		xs = append(xs, p.X)
		got = append(got, []string{
			r.ReadAttribute(n, fieldGroup),
			r.ReadAttribute(n, fieldUPRN),
			r.ReadAttribute(n, fieldPostcode),
			r.ReadAttribute(n, fieldFill),
		})
	}
	assert.Equal(t, []float64{436512.46, 436600, 437000}, xs)
	assert.Equal(t, []string{"DL6 2AA", "100000000001", "DL6 2AA", "e6f0fa"}, got[0])
	assert.Equal(t, []string{"noise", "100000000003", "DL6 2AB", "000000"}, got[2])
}

func TestWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.xlsx")
	require.NoError(t, Workbook(path, groups()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet["groups"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0]
	assert.Equal(t, "group", header.Cells[0].String())
	row := sheet.Rows[1]
	assert.Equal(t, "DL6 2AA", row.Cells[0].String())
	assert.Equal(t, "2", row.Cells[1].String())
	assert.Equal(t, "RECY R34, GARD R2", row.Cells[2].String())
	lat, err := row.Cells[3].Float()
	require.NoError(t, err)
	assert.InDelta(t, 54.4, lat, 1e-9)
	assert.Equal(t, "e6f0fa", row.Cells[5].String())
}
