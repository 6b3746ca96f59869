package store

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/avery-whitehead/StreetMapsDownload/internal/geometry"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// FileStore serves locations from a CSV file or an XLSX sheet. It is
// read-only: the print log goes to the application log.
type FileStore struct {
	path  string
	sheet string

	once sync.Once
	locs []model.Location
	err  error
}

// NewFile returns a FileStore for path. The format follows the extension.
func NewFile(path, sheet string) (*FileStore, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx":
	default:
		return nil, &model.ConfigurationError{Item: "store.path", Err: eris.Errorf("file: unsupported location file %q", path)}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &model.ConfigurationError{Item: "store.path", Err: eris.Wrap(err, "file: stat")}
	}
	return &FileStore{path: path, sheet: sheet}, nil
}

func (s *FileStore) load() ([]model.Location, error) {
	s.once.Do(func() {
		var rows [][]string
		if strings.EqualFold(filepath.Ext(s.path), ".xlsx") {
			rows, s.err = readXLSX(s.path, s.sheet)
		} else {
			rows, s.err = readCSV(s.path)
		}
		if s.err == nil {
			s.locs, s.err = parseRows(rows)
		}
	})
	return s.locs, s.err
}

func (s *FileStore) Location(_ context.Context, uprn string) (*model.Location, error) {
	if err := checkUPRN(uprn); err != nil {
		return nil, err
	}
	locs, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, l := range locs {
		if l.UPRN == uprn {
			return &l, nil
		}
	}
	return nil, notFound(uprn)
}

func (s *FileStore) Locations(_ context.Context, scope model.Scope) ([]model.Location, error) {
	if scope.UPRN != "" {
		if err := checkUPRN(scope.UPRN); err != nil {
			return nil, err
		}
	}
	locs, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []model.Location
	for _, l := range locs {
		switch {
		case scope.UPRN != "" && l.UPRN != scope.UPRN:
		case scope.Round != "" && !slices.Contains(l.Rounds, scope.Round):
		default:
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *FileStore) Rounds(_ context.Context) ([]string, error) {
	locs, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, l := range locs {
		out = append(out, l.Rounds...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (s *FileStore) RecordPrint(_ context.Context, rec model.PrintRecord) error {
	zap.L().Info("print recorded",
		zap.String("run_id", rec.RunID),
		zap.String("round", rec.Round),
		zap.String("group", rec.GroupKey),
		zap.String("path", rec.Path),
		zap.String("status", string(rec.Status)),
	)
	return nil
}

func (s *FileStore) Close() error { return nil }

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open file")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		rows = append(rows, rec)
	}
}

func readXLSX(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	var sheet *xlsx.Sheet
	switch {
	case sheetName != "":
		sh, ok := f.Sheet[sheetName]
		if !ok && len(f.Sheets) == 1 {
			sh, ok = f.Sheets[0], true
		}
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", sheetName)
		}
		sheet = sh
	case len(f.Sheets) > 0:
		sheet = f.Sheets[0]
	default:
		return nil, eris.New("xlsx: workbook has no sheets")
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// header maps lower-cased column names to indices. Columns named "rounds"
// hold separated tags; any other column starting with "round" holds one tag.
type header struct {
	idx        map[string]int
	roundCols  []int
	roundsList int
}

func newHeader(row []string) (header, error) {
	h := header{idx: make(map[string]int, len(row)), roundsList: -1}
	for i, name := range row {
		name = strings.ToLower(strings.TrimSpace(name))
		h.idx[name] = i
		switch {
		case name == "rounds":
			h.roundsList = i
		case strings.HasPrefix(name, "round"):
			h.roundCols = append(h.roundCols, i)
		}
	}
	for _, req := range []string{"uprn", "lat", "lng"} {
		if _, ok := h.idx[req]; !ok {
			return h, &model.ConfigurationError{Item: "store.path", Err: eris.Errorf("file: missing %q column", req)}
		}
	}
	return h, nil
}

func (h header) get(row []string, name string) string {
	i, ok := h.idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h header) float(row []string, name string) (float64, bool, error) {
	s := h.get(row, name)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, true, err
}

func (h header) rounds(row []string) []string {
	var tags []string
	if h.roundsList >= 0 && h.roundsList < len(row) {
		tags = append(tags, row[h.roundsList])
	}
	for _, i := range h.roundCols {
		if i < len(row) {
			tags = append(tags, row[i])
		}
	}
	return splitRounds(strings.Join(tags, ","))
}

// parseRows converts a header row plus data rows into locations. Missing
// grid coordinates are projected from lat/lng.
func parseRows(rows [][]string) ([]model.Location, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	h, err := newHeader(rows[0])
	if err != nil {
		return nil, err
	}
	var bng geometry.BNG
	out := make([]model.Location, 0, len(rows)-1)
	for n, row := range rows[1:] {
		uprn := h.get(row, "uprn")
		if uprn == "" {
			continue
		}
		if err := checkUPRN(uprn); err != nil {
			return nil, err
		}
		l := model.Location{
			UPRN:     uprn,
			Address:  h.get(row, "address"),
			Street:   h.get(row, "street"),
			Town:     h.get(row, "town"),
			Postcode: h.get(row, "postcode"),
			Rounds:   h.rounds(row),
		}
		var ok bool
		if l.Lat, ok, err = h.float(row, "lat"); err != nil || !ok {
			return nil, &model.DataError{Group: uprn, Reason: "row " + strconv.Itoa(n+2) + ": invalid lat"}
		}
		if l.Lng, ok, err = h.float(row, "lng"); err != nil || !ok {
			return nil, &model.DataError{Group: uprn, Reason: "row " + strconv.Itoa(n+2) + ": invalid lng"}
		}
		x, hasX, errX := h.float(row, "x")
		y, hasY, errY := h.float(row, "y")
		if errX != nil || errY != nil {
			return nil, &model.DataError{Group: uprn, Reason: "row " + strconv.Itoa(n+2) + ": invalid grid coordinate"}
		}
		if hasX && hasY {
			l.X, l.Y = x, y
		} else {
			l.X, l.Y = bng.Project(geometry.LatLng{Lat: l.Lat, Lng: l.Lng})
		}
		normalize(&l)
		out = append(out, l)
	}
	return out, nil
}
