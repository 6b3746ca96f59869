// Package layout describes where maps, labels and ring markers sit on each
// provider's page template.
package layout

import (
	_ "embed"
	"fmt"
	"image"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

//go:embed layouts.yaml
var defaultTables []byte

// PageKind is the purpose of a page.
type PageKind string

const (
	KindSingle   PageKind = "single"
	KindGroup    PageKind = "group"
	KindOverview PageKind = "overview"
)

// Slot is one map image on a page. Scale holds the ArcGIS scale or the
// Mapbox zoom level.
type Slot struct {
	Scale        float64
	Width        int
	Height       int
	DPI          int
	MarkerSize   float64
	OutlineWidth float64
	Offset       image.Point
}

// Bounds returns the rectangle the slot's image covers on the page.
func (s Slot) Bounds() image.Rectangle {
	return image.Rect(s.Offset.X, s.Offset.Y, s.Offset.X+s.Width, s.Offset.Y+s.Height)
}

// Name returns the scale formatted for filenames and logs.
func (s Slot) Name() string {
	return fmt.Sprintf("%g", s.Scale)
}

// Layout is the page geometry a provider offers for one page kind.
type Layout interface {
	Provider() string
	Kind() PageKind
	Template() string
	PageSize() image.Point
	Slots() []Slot
	LabelAnchor() image.Point
	LabelSize() float64
	MarkerBounds() []image.Rectangle
	RingWidth() int
}

// table is the decoded geometry shared by both provider variants.
type table struct {
	kind      PageKind
	template  string
	page      image.Point
	anchor    image.Point
	labelSize float64
	ringWidth int
	markers   []image.Rectangle
	slots     []Slot
}

func (t *table) Kind() PageKind                  { return t.kind }
func (t *table) Template() string                { return t.template }
func (t *table) PageSize() image.Point           { return t.page }
func (t *table) LabelAnchor() image.Point        { return t.anchor }
func (t *table) LabelSize() float64              { return t.labelSize }
func (t *table) RingWidth() int                  { return t.ringWidth }
func (t *table) Slots() []Slot                   { return append([]Slot(nil), t.slots...) }
func (t *table) MarkerBounds() []image.Rectangle { return append([]image.Rectangle(nil), t.markers...) }

// Esri pages hold ArcGIS export images on the large template.
type Esri struct{ table }

func (Esri) Provider() string { return "esri" }

// Mapbox pages hold static API images, which are capped in size, on the
// small template.
type Mapbox struct{ table }

func (Mapbox) Provider() string { return "mapbox" }

// Set holds every layout keyed by provider and kind.
type Set struct {
	layouts map[string]map[PageKind]Layout
}

// For returns the layout for a provider and page kind.
func (s *Set) For(provider string, kind PageKind) (Layout, error) {
	if l, ok := s.layouts[provider][kind]; ok {
		return l, nil
	}
	return nil, &model.ConfigurationError{
		Item: "layouts",
		Err:  eris.Errorf("layout: no %s layout for provider %q", kind, provider),
	}
}

// Templates returns the distinct template filenames across all layouts,
// sorted.
func (s *Set) Templates() []string {
	sizes := s.TemplateSizes()
	out := make([]string, 0, len(sizes))
	for t := range sizes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// TemplateSizes maps each template filename to its page size in pixels.
func (s *Set) TemplateSizes() map[string]image.Point {
	out := make(map[string]image.Point)
	for _, kinds := range s.layouts {
		for _, l := range kinds {
			out[l.Template()] = l.PageSize()
		}
	}
	return out
}

// Default returns the built-in layouts.
func Default() *Set {
	s, err := Parse(defaultTables)
	if err != nil {
		panic(err)
	}
	return s
}

// Load reads layouts from path, or the built-in tables when path is empty.
// A file that cannot be read or validated is a ConfigurationError.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ConfigurationError{Item: path, Err: eris.Wrap(err, "layout: read file")}
	}
	s, err := Parse(data)
	if err != nil {
		return nil, &model.ConfigurationError{Item: path, Err: err}
	}
	return s, nil
}

type fileSlot struct {
	Scale        float64 `yaml:"scale"`
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	DPI          int     `yaml:"dpi"`
	MarkerSize   float64 `yaml:"marker_size"`
	OutlineWidth float64 `yaml:"outline_width"`
	Offset       [2]int  `yaml:"offset"`
}

type fileTable struct {
	Template string `yaml:"template"`
	Page     [2]int `yaml:"page"`
	Label    struct {
		Anchor [2]int  `yaml:"anchor"`
		Size   float64 `yaml:"size"`
	} `yaml:"label"`
	RingWidth int        `yaml:"ring_width"`
	Markers   [][4]int   `yaml:"markers"`
	Slots     []fileSlot `yaml:"slots"`
}

// Parse decodes and validates layout tables.
func Parse(data []byte) (*Set, error) {
	var raw map[string]map[PageKind]fileTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "layout: decode")
	}

	s := &Set{layouts: make(map[string]map[PageKind]Layout)}
	for provider, kinds := range raw {
		s.layouts[provider] = make(map[PageKind]Layout)
		for kind, ft := range kinds {
			t, err := ft.build(kind)
			if err != nil {
				return nil, eris.Wrapf(err, "layout: %s %s", provider, kind)
			}
			switch provider {
			case "esri":
				s.layouts[provider][kind] = &Esri{t}
			case "mapbox":
				s.layouts[provider][kind] = &Mapbox{t}
			default:
				return nil, eris.Errorf("layout: unknown provider %q", provider)
			}
		}
	}
	return s, nil
}

func (ft fileTable) build(kind PageKind) (table, error) {
	switch kind {
	case KindSingle, KindGroup, KindOverview:
	default:
		return table{}, eris.Errorf("unknown page kind %q", kind)
	}
	t := table{
		kind:      kind,
		template:  ft.Template,
		page:      image.Pt(ft.Page[0], ft.Page[1]),
		anchor:    image.Pt(ft.Label.Anchor[0], ft.Label.Anchor[1]),
		labelSize: ft.Label.Size,
		ringWidth: ft.RingWidth,
	}
	if t.template == "" {
		return table{}, eris.New("template is required")
	}
	if t.page.X <= 0 || t.page.Y <= 0 {
		return table{}, eris.New("page size must be positive")
	}
	if len(ft.Slots) == 0 {
		return table{}, eris.New("at least one slot is required")
	}
	pageRect := image.Rectangle{Max: t.page}
	for i, fs := range ft.Slots {
		sl := Slot{
			Scale:        fs.Scale,
			Width:        fs.Width,
			Height:       fs.Height,
			DPI:          fs.DPI,
			MarkerSize:   fs.MarkerSize,
			OutlineWidth: fs.OutlineWidth,
			Offset:       image.Pt(fs.Offset[0], fs.Offset[1]),
		}
		if sl.Scale <= 0 || sl.Width <= 0 || sl.Height <= 0 {
			return table{}, eris.Errorf("slot %d: scale and size must be positive", i)
		}
		if !sl.Bounds().In(pageRect) {
			return table{}, eris.Errorf("slot %d: %v does not fit page %v", i, sl.Bounds(), pageRect)
		}
		t.slots = append(t.slots, sl)
	}
	for i, m := range ft.Markers {
		r := image.Rect(m[0], m[1], m[2], m[3])
		if r.Empty() || !r.In(pageRect) {
			return table{}, eris.Errorf("marker %d: %v is empty or off the page", i, r)
		}
		t.markers = append(t.markers, r)
	}
	if len(t.markers) > 0 && t.ringWidth <= 0 {
		return table{}, eris.New("ring_width must be positive when markers are set")
	}
	return t, nil
}
