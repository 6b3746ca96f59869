// Package webmap builds ArcGIS ExportWebMap requests and Mapbox static
// requests from read-only templates.
package webmap

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// FeatureWKID is the spatial reference of member features (British National Grid).
const FeatureWKID = 27700

// SpatialReference identifies a coordinate system by well-known id.
type SpatialReference struct {
	WKID int `json:"wkid"`
}

// Extent is the map frame. Builders collapse it onto a single point.
type Extent struct {
	XMin             float64           `json:"xmin"`
	YMin             float64           `json:"ymin"`
	XMax             float64           `json:"xmax"`
	YMax             float64           `json:"ymax"`
	SpatialReference *SpatialReference `json:"spatialReference,omitempty"`
}

// MapOptions holds the extent and scale of the exported map.
type MapOptions struct {
	Extent Extent  `json:"extent"`
	Scale  float64 `json:"scale"`
}

// ExportOptions sets the output raster size and resolution.
type ExportOptions struct {
	OutputSize [2]int `json:"outputSize"`
	DPI        int    `json:"dpi"`
}

// Outline is a marker symbol's stroke.
type Outline struct {
	Color [4]int  `json:"color"`
	Width float64 `json:"width"`
}

// Symbol is a simple marker symbol (esriSMS).
type Symbol struct {
	Type    string  `json:"type"`
	Style   string  `json:"style"`
	Color   [4]int  `json:"color"`
	Size    float64 `json:"size"`
	Outline Outline `json:"outline"`
}

type Renderer struct {
	Type   string `json:"type"`
	Symbol Symbol `json:"symbol"`
}

type DrawingInfo struct {
	Renderer Renderer `json:"renderer"`
}

type LayerDefinition struct {
	GeometryType string      `json:"geometryType"`
	DrawingInfo  DrawingInfo `json:"drawingInfo"`
}

// Geometry is a point in the feature's spatial reference.
type Geometry struct {
	X                float64          `json:"x"`
	Y                float64          `json:"y"`
	SpatialReference SpatialReference `json:"spatialReference"`
}

type Feature struct {
	Geometry   Geometry          `json:"geometry"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type FeatureSet struct {
	GeometryType string    `json:"geometryType"`
	Features     []Feature `json:"features"`
}

// FeatureLayer is one styled set of features inside a feature collection.
type FeatureLayer struct {
	LayerDefinition LayerDefinition `json:"layerDefinition"`
	FeatureSet      FeatureSet      `json:"featureSet"`
}

type FeatureCollection struct {
	Layers []FeatureLayer `json:"layers"`
}

// Layer is either a service layer (URL set) or a client-side feature collection.
type Layer struct {
	ID                string             `json:"id"`
	Title             string             `json:"title,omitempty"`
	URL               string             `json:"url,omitempty"`
	Opacity           float64            `json:"opacity"`
	Visibility        bool               `json:"visibility"`
	FeatureCollection *FeatureCollection `json:"featureCollection,omitempty"`
}

// BaseMap is the tile service drawn under the operational layers.
type BaseMap struct {
	Title         string  `json:"title,omitempty"`
	BaseMapLayers []Layer `json:"baseMapLayers"`
}

// WebMap is the Web_Map_as_JSON payload of an ExportWebMap call.
type WebMap struct {
	MapOptions        *MapOptions     `json:"mapOptions"`
	OperationalLayers []Layer         `json:"operationalLayers"`
	BaseMap           *BaseMap        `json:"baseMap,omitempty"`
	ExportOptions     *ExportOptions  `json:"exportOptions"`
	LayoutOptions     json.RawMessage `json:"layoutOptions,omitempty"`
}

// Encode returns the compact JSON form sent as Web_Map_as_JSON.
func (w *WebMap) Encode() (string, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return "", eris.Wrap(err, "webmap: encode")
	}
	return string(b), nil
}

func (w *WebMap) complete() bool {
	return w != nil && w.MapOptions != nil && w.ExportOptions != nil
}

// markerLayer returns the index of the first operational layer that carries
// a feature collection with at least one feature layer, or -1.
func (w *WebMap) markerLayer() int {
	for i, l := range w.OperationalLayers {
		if l.FeatureCollection != nil && len(l.FeatureCollection.Layers) > 0 {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy; builders never write to a template.
func (w *WebMap) Clone() *WebMap {
	if w == nil {
		return nil
	}
	c := &WebMap{}
	if w.MapOptions != nil {
		mo := *w.MapOptions
		if mo.Extent.SpatialReference != nil {
			sr := *mo.Extent.SpatialReference
			mo.Extent.SpatialReference = &sr
		}
		c.MapOptions = &mo
	}
	if w.ExportOptions != nil {
		eo := *w.ExportOptions
		c.ExportOptions = &eo
	}
	if w.OperationalLayers != nil {
		c.OperationalLayers = make([]Layer, len(w.OperationalLayers))
		for i, l := range w.OperationalLayers {
			c.OperationalLayers[i] = l.clone()
		}
	}
	if w.BaseMap != nil {
		bm := BaseMap{Title: w.BaseMap.Title}
		if w.BaseMap.BaseMapLayers != nil {
			bm.BaseMapLayers = make([]Layer, len(w.BaseMap.BaseMapLayers))
			for i, l := range w.BaseMap.BaseMapLayers {
				bm.BaseMapLayers[i] = l.clone()
			}
		}
		c.BaseMap = &bm
	}
	if w.LayoutOptions != nil {
		c.LayoutOptions = append(json.RawMessage(nil), w.LayoutOptions...)
	}
	return c
}

func (l Layer) clone() Layer {
	if l.FeatureCollection == nil {
		return l
	}
	fc := &FeatureCollection{Layers: make([]FeatureLayer, len(l.FeatureCollection.Layers))}
	for i, fl := range l.FeatureCollection.Layers {
		fl.FeatureSet.Features = cloneFeatures(fl.FeatureSet.Features)
		fc.Layers[i] = fl
	}
	l.FeatureCollection = fc
	return l
}

func cloneFeatures(in []Feature) []Feature {
	if in == nil {
		return nil
	}
	out := make([]Feature, len(in))
	for i, f := range in {
		if f.Attributes != nil {
			attrs := make(map[string]string, len(f.Attributes))
			for k, v := range f.Attributes {
				attrs[k] = v
			}
			f.Attributes = attrs
		}
		out[i] = f
	}
	return out
}
