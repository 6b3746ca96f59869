package webmap

import (
	"github.com/rotisserie/eris"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// Coord is a center in the provider's native coordinate system.
type Coord struct {
	X float64
	Y float64
}

// Frame sets the scale and raster size of one map slot.
type Frame struct {
	Scale  float64
	Width  int
	Height int
	DPI    int
}

// Marker styles a group's member points.
type Marker struct {
	Size         float64
	OutlineWidth float64
	Fill         model.Color
	Outline      model.Color
}

// MarkerLayer is one group's members drawn with its own marker.
type MarkerLayer struct {
	ID      string
	Marker  Marker
	Members []model.Location
}

// GroupLayer returns the marker layer for g sized for a slot.
func GroupLayer(g model.Group, size, outlineWidth float64) MarkerLayer {
	return MarkerLayer{
		ID: g.Key,
		Marker: Marker{
			Size:         size,
			OutlineWidth: outlineWidth,
			Fill:         g.Fill,
			Outline:      g.Outline,
		},
		Members: g.Members,
	}
}

// Builder fills copies of read-only templates. It is safe for concurrent use.
type Builder struct {
	point      *WebMap
	clustered  *WebMap
	basemapURL string
}

// NewBuilder keeps private copies of both templates. clustered may be nil
// when only point maps are requested.
func NewBuilder(point, clustered *WebMap, basemapURL string) *Builder {
	return &Builder{
		point:      point.Clone(),
		clustered:  clustered.Clone(),
		basemapURL: basemapURL,
	}
}

// Point frames a single location.
func (b *Builder) Point(center Coord, f Frame) (*WebMap, error) {
	if !b.point.complete() {
		return nil, &model.ConfigurationError{Item: "web_map", Err: eris.New("webmap: no point template")}
	}
	w := b.point.Clone()
	frame(w, center, f)
	return w, nil
}

// Clustered frames a group and draws one marker per member.
func (b *Builder) Clustered(center Coord, f Frame, m Marker, members []model.Location) (*WebMap, error) {
	w, idx, err := b.fromClustered(center, f)
	if err != nil {
		return nil, err
	}
	l := &w.OperationalLayers[idx].FeatureCollection.Layers[0]
	style(l, m)
	l.FeatureSet.Features = features(members)
	return w, nil
}

// Overview draws every group in its own layer over the basemap.
func (b *Builder) Overview(center Coord, f Frame, layers []MarkerLayer) (*WebMap, error) {
	w, idx, err := b.fromClustered(center, f)
	if err != nil {
		return nil, err
	}
	proto := w.OperationalLayers[idx]

	ops := make([]Layer, 0, len(w.OperationalLayers)-1+len(layers))
	ops = append(ops, w.OperationalLayers[:idx]...)
	for _, ml := range layers {
		l := proto.clone()
		l.ID = ml.ID
		l.Title = ml.ID
		fl := FeatureLayer{
			LayerDefinition: l.FeatureCollection.Layers[0].LayerDefinition,
			FeatureSet: FeatureSet{
				GeometryType: l.FeatureCollection.Layers[0].FeatureSet.GeometryType,
				Features:     features(ml.Members),
			},
		}
		style(&fl, ml.Marker)
		l.FeatureCollection.Layers = []FeatureLayer{fl}
		ops = append(ops, l)
	}
	ops = append(ops, w.OperationalLayers[idx+1:]...)
	w.OperationalLayers = ops

	if b.basemapURL != "" {
		w.BaseMap = &BaseMap{
			Title: "basemap",
			BaseMapLayers: []Layer{{
				ID:         "basemap",
				URL:        b.basemapURL,
				Opacity:    1,
				Visibility: true,
			}},
		}
	}
	if w.BaseMap == nil || len(w.BaseMap.BaseMapLayers) == 0 {
		return nil, &model.ConfigurationError{
			Item: "provider.arcgis.basemap_url",
			Err:  eris.New("webmap: overview needs a basemap layer"),
		}
	}
	return w, nil
}

func (b *Builder) fromClustered(center Coord, f Frame) (*WebMap, int, error) {
	if !b.clustered.complete() {
		return nil, -1, &model.ConfigurationError{Item: "web_map_clustered", Err: eris.New("webmap: no clustered template")}
	}
	idx := b.clustered.markerLayer()
	if idx < 0 {
		return nil, -1, &model.ConfigurationError{Item: "web_map_clustered", Err: eris.New("webmap: template has no feature collection layer")}
	}
	w := b.clustered.Clone()
	frame(w, center, f)
	return w, idx, nil
}

// frame writes the center into all four extent bounds.
func frame(w *WebMap, c Coord, f Frame) {
	w.MapOptions.Extent.XMin = c.X
	w.MapOptions.Extent.XMax = c.X
	w.MapOptions.Extent.YMin = c.Y
	w.MapOptions.Extent.YMax = c.Y
	w.MapOptions.Scale = f.Scale
	w.ExportOptions.OutputSize = [2]int{f.Width, f.Height}
	w.ExportOptions.DPI = f.DPI
}

func style(l *FeatureLayer, m Marker) {
	sym := &l.LayerDefinition.DrawingInfo.Renderer.Symbol
	sym.Size = m.Size
	sym.Color = m.Fill.Array()
	sym.Outline.Width = m.OutlineWidth
	sym.Outline.Color = m.Outline.Array()
}

func features(members []model.Location) []Feature {
	out := make([]Feature, 0, len(members))
	for _, m := range members {
		f := Feature{
			Geometry: Geometry{
				X:                m.X,
				Y:                m.Y,
				SpatialReference: SpatialReference{WKID: FeatureWKID},
			},
		}
		if m.UPRN != "" {
			f.Attributes = map[string]string{"uprn": m.UPRN}
		}
		out = append(out, f)
	}
	return out
}
