package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avery-whitehead/StreetMapsDownload/internal/compose"
	"github.com/avery-whitehead/StreetMapsDownload/internal/layout"
	"github.com/avery-whitehead/StreetMapsDownload/internal/mapclient"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
	"github.com/avery-whitehead/StreetMapsDownload/internal/webmap"
)

// memStore is an in-memory store.Store.
type memStore struct {
	mu     sync.Mutex
	locs   []model.Location
	rounds []string
	prints []model.PrintRecord
	err    error
}

func (s *memStore) Location(_ context.Context, uprn string) (*model.Location, error) {
	if !model.ValidUPRN(uprn) {
		return nil, &model.DataError{Reason: "uprn must be 12 digits"}
	}
	for _, l := range s.locs {
		if l.UPRN == uprn {
			l := l
			return &l, nil
		}
	}
	return nil, &model.DataError{Reason: "uprn not found: " + uprn}
}

func (s *memStore) Locations(_ context.Context, scope model.Scope) ([]model.Location, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []model.Location
	for _, l := range s.locs {
		switch {
		case scope.UPRN != "" && l.UPRN != scope.UPRN:
			continue
		case scope.Round != "" && !hasRound(l, scope.Round):
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func hasRound(l model.Location, round string) bool {
	for _, r := range l.Rounds {
		if r == round {
			return true
		}
	}
	return false
}

func (s *memStore) Rounds(context.Context) ([]string, error) { return s.rounds, nil }

func (s *memStore) RecordPrint(_ context.Context, rec model.PrintRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prints = append(s.prints, rec)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) statuses() map[string]model.PrintStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.PrintStatus)
	for _, p := range s.prints {
		out[filepath.Base(p.Path)] = p.Status
	}
	return out
}

// fakeClient serves a small gray PNG for every request unless fail
// matches it.
type fakeClient struct {
	provider string
	fail     func(req mapclient.Request) bool

	mu   sync.Mutex
	reqs []mapclient.Request
}

func (c *fakeClient) Provider() string { return c.provider }

func (c *fakeClient) Fetch(ctx context.Context, req mapclient.Request) ([]byte, error) {
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.fail != nil && c.fail(req) {
		return nil, &model.ExternalServiceError{Provider: c.provider, Op: req.Label, StatusCode: 502}
	}
	return mapPNG, nil
}

func (c *fakeClient) requests() []mapclient.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]mapclient.Request(nil), c.reqs...)
}

var mapPNG = func() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.Gray{Y: 0x80})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

// fakePublisher remembers what it was asked to upload.
type fakePublisher struct {
	err  error
	sent []string
}

func (f *fakePublisher) Publish(_ context.Context, localPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, localPath)
	return "s3://prints/" + filepath.Base(localPath), nil
}

const testLayouts = `
esri:
  single:
    template: page.png
    page: [200, 300]
    label: {anchor: [10, 120], size: 12}
    ring_width: 4
    markers:
      - [40, 40, 60, 60]
    slots:
      - {scale: 1500, width: 180, height: 100, dpi: 96, offset: [10, 10]}
      - {scale: 10000, width: 80, height: 100, dpi: 96, offset: [10, 180]}
  group:
    template: page.png
    page: [200, 300]
    label: {anchor: [10, 120], size: 12}
    slots:
      - {scale: 1750, width: 180, height: 100, dpi: 96, marker_size: 20, outline_width: 3, offset: [10, 10]}
      - {scale: 10000, width: 180, height: 100, dpi: 96, marker_size: 10, outline_width: 1.5, offset: [10, 180]}
  overview:
    template: page.png
    page: [200, 300]
    label: {anchor: [10, 250], size: 12}
    slots:
      - {scale: 36000, width: 180, height: 200, dpi: 96, marker_size: 90, outline_width: 15, offset: [10, 10]}
mapbox:
  single:
    template: page.png
    page: [200, 300]
    label: {anchor: [10, 120], size: 12}
    slots:
      - {scale: 17, width: 180, height: 100, offset: [10, 10]}
  group:
    template: page.png
    page: [200, 300]
    label: {anchor: [10, 120], size: 12}
    slots:
      - {scale: 16, width: 180, height: 100, offset: [10, 10]}
  overview:
    template: page.png
    page: [200, 300]
    label: {anchor: [10, 250], size: 12}
    slots:
      - {scale: 13, width: 180, height: 200, offset: [10, 10]}
`

// fixture holds a pipeline wired to fakes and temporary directories.
type fixture struct {
	store     *memStore
	client    *fakeClient
	publisher *fakePublisher
	deps      Deps
	set       Settings
}

func newFixture(t *testing.T, provider string) *fixture {
	t.Helper()
	root := t.TempDir()
	assets := filepath.Join(root, "assets")
	require.NoError(t, os.MkdirAll(assets, 0o755))
	writeTemplate(t, filepath.Join(assets, "page.png"))

	layouts, err := layout.Parse([]byte(testLayouts))
	require.NoError(t, err)

	st := &memStore{locs: testLocations(), rounds: []string{"GARD R9", "RECY R1", "RECY R2"}}
	client := &fakeClient{provider: provider}
	pub := &fakePublisher{}

	f := &fixture{
		store:     st,
		client:    client,
		publisher: pub,
		deps: Deps{
			Store:     st,
			Client:    client,
			Layouts:   layouts,
			Publisher: pub,
		},
		set: Settings{
			Provider:  provider,
			WorkDir:   filepath.Join(root, "img"),
			OutputDir: filepath.Join(root, "prints"),
			AssetsDir: assets,
			Format:    "pdf",
			DPI:       96,
			OnFailure: OnFailureMark,
		},
	}
	if provider == mapclient.ProviderEsri {
		point, err := webmap.LoadTemplate("../../assets/web_map.json")
		require.NoError(t, err)
		clustered, err := webmap.LoadClusteredTemplate("../../assets/web_map_clustered.json")
		require.NoError(t, err)
		f.deps.Builder = webmap.NewBuilder(point, clustered, "")
	}
	return f
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(f.deps, f.set)
	require.NoError(t, err)
	return p
}

func writeTemplate(t *testing.T, path string) {
	t.Helper()
	out, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(out, compose.Blank(image.Pt(200, 300))))
	require.NoError(t, out.Close())
}

func testLocations() []model.Location {
	return []model.Location{
		{UPRN: "100000000001", X: 436512.4, Y: 493821.1, Lat: 54.3389, Lng: -1.4345, Address: "1 High Street, Northallerton", Street: "HIGH STREET", Town: "NORTHALLERTON", Postcode: "DL6 2AA", Rounds: []string{"RECY R1"}},
		{UPRN: "100000000002", X: 436530.0, Y: 493840.0, Lat: 54.3391, Lng: -1.4342, Address: "2 High Street, Northallerton", Street: "HIGH STREET", Town: "NORTHALLERTON", Postcode: "DL6 2AA", Rounds: []string{"RECY R1"}},
		{UPRN: "100000000003", X: 437010.0, Y: 494210.0, Lat: 54.3425, Lng: -1.4268, Address: "3 Low Lane, Northallerton", Street: "LOW LANE", Town: "NORTHALLERTON", Postcode: "DL7 8BB", Rounds: []string{"RECY R1", "RECY R2"}},
	}
}
