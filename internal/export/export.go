// Package export writes group membership as a point shapefile and a summary
// workbook for checking groupings in GIS and spreadsheet tools.
package export

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/avery-whitehead/StreetMapsDownload/internal/geometry"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// Shapefile field order.
const (
	fieldGroup = iota
	fieldUPRN
	fieldPostcode
	fieldFill
)

// Shapefile writes every group member as a point in British National Grid
// coordinates with its group key, UPRN, postcode and fill color.
func Shapefile(path string, groups []model.Group) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create dir")
	}
	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrap(err, "export: create shapefile")
	}
	defer w.Close()

	fields := []shp.Field{
		shp.StringField("GROUP", 32),
		shp.StringField("UPRN", model.UPRNLength),
		shp.StringField("POSTCODE", 10),
		shp.StringField("FILL", 6),
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "export: set fields")
	}

	for _, g := range groups {
		for _, m := range g.Members {
			row := int(w.Write(&shp.Point{X: m.X, Y: m.Y}))
			for field, v := range []string{g.Key, m.UPRN, strings.ToUpper(m.Postcode), g.Fill.Hex()} {
				if size := int(fields[field].Size); len(v) > size {
					v = v[:size]
				}
				if err := w.WriteAttribute(row, field, v); err != nil {
					return eris.Wrapf(err, "export: write attribute %d of %s", field, m.UPRN)
				}
			}
		}
	}
	return nil
}

// Workbook writes one summary row per group: key, member count, rounds,
// centroid and fill color.
func Workbook(path string, groups []model.Group) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("groups")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, "group", "members", "rounds", "lat", "lng", "fill", "noise")

	for _, g := range groups {
		row := sheet.AddRow()
		row.AddCell().SetString(g.Key)
		row.AddCell().SetInt(len(g.Members))
		row.AddCell().SetString(strings.Join(g.Rounds, ", "))
		if c, err := geometry.Centroid(geometry.MemberPoints(g), 1); err == nil {
			row.AddCell().SetFloat(c.Lat)
			row.AddCell().SetFloat(c.Lng)
		} else {
			row.AddCell().SetString("")
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(g.Fill.Hex())
		row.AddCell().SetBool(g.Noise)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create dir")
	}
	return eris.Wrap(f.Save(path), "export: save workbook")
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
