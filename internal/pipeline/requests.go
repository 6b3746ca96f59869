package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/avery-whitehead/StreetMapsDownload/internal/geometry"
	"github.com/avery-whitehead/StreetMapsDownload/internal/layout"
	"github.com/avery-whitehead/StreetMapsDownload/internal/mapclient"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
	"github.com/avery-whitehead/StreetMapsDownload/internal/webmap"
)

// requester builds one fetch request per slot of a page.
type requester interface {
	single(loc model.Location, slots []layout.Slot) ([]mapclient.Request, error)
	group(g model.Group, slots []layout.Slot) ([]mapclient.Request, error)
	overview(label string, groups []model.Group, slots []layout.Slot) ([]mapclient.Request, error)
}

func frameOf(s layout.Slot) webmap.Frame {
	return webmap.Frame{Scale: s.Scale, Width: s.Width, Height: s.Height, DPI: s.DPI}
}

func requestLabel(kind layout.PageKind, key string, s layout.Slot) string {
	return fmt.Sprintf("%s %s scale %s", kind, key, s.Name())
}

// esriRequests fills web map templates. Centres are projected with tr;
// member features already carry national grid coordinates.
type esriRequests struct {
	b  *webmap.Builder
	tr geometry.Transformer
}

func (e esriRequests) single(loc model.Location, slots []layout.Slot) ([]mapclient.Request, error) {
	center := webmap.Coord{X: loc.X, Y: loc.Y}
	reqs := make([]mapclient.Request, 0, len(slots))
	for _, s := range slots {
		w, err := e.b.Point(center, frameOf(s))
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, mapclient.Request{Label: requestLabel(layout.KindSingle, loc.UPRN, s), WebMap: w})
	}
	return reqs, nil
}

func (e esriRequests) group(g model.Group, slots []layout.Slot) ([]mapclient.Request, error) {
	x, y, err := geometry.GroupCenter([]model.Group{g}, e.tr)
	if err != nil {
		return nil, err
	}
	reqs := make([]mapclient.Request, 0, len(slots))
	for _, s := range slots {
		m := webmap.Marker{Size: s.MarkerSize, OutlineWidth: s.OutlineWidth, Fill: g.Fill, Outline: g.Outline}
		w, err := e.b.Clustered(webmap.Coord{X: x, Y: y}, frameOf(s), m, g.Members)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, mapclient.Request{Label: requestLabel(layout.KindGroup, g.Key, s), WebMap: w})
	}
	return reqs, nil
}

func (e esriRequests) overview(label string, groups []model.Group, slots []layout.Slot) ([]mapclient.Request, error) {
	x, y, err := geometry.GroupCenter(groups, e.tr)
	if err != nil {
		return nil, err
	}
	reqs := make([]mapclient.Request, 0, len(slots))
	for _, s := range slots {
		layers := make([]webmap.MarkerLayer, 0, len(groups))
		for _, g := range groups {
			layers = append(layers, webmap.GroupLayer(g, s.MarkerSize, s.OutlineWidth))
		}
		w, err := e.b.Overview(webmap.Coord{X: x, Y: y}, frameOf(s), layers)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, mapclient.Request{Label: requestLabel(layout.KindOverview, label, s), WebMap: w})
	}
	return reqs, nil
}

// mapboxRequests frames WGS84 centres; groups are drawn as pins.
type mapboxRequests struct{}

func (mapboxRequests) single(loc model.Location, slots []layout.Slot) ([]mapclient.Request, error) {
	reqs := make([]mapclient.Request, 0, len(slots))
	for _, s := range slots {
		st := webmap.Static(loc.Lng, loc.Lat, frameOf(s))
		reqs = append(reqs, mapclient.Request{Label: requestLabel(layout.KindSingle, loc.UPRN, s), Static: &st})
	}
	return reqs, nil
}

func (mapboxRequests) group(g model.Group, slots []layout.Slot) ([]mapclient.Request, error) {
	lng, lat, err := geometry.GroupCenter([]model.Group{g}, geometry.Identity{})
	if err != nil {
		return nil, err
	}
	pins := webmap.GroupPins(g)
	reqs := make([]mapclient.Request, 0, len(slots))
	for _, s := range slots {
		st := webmap.Static(lng, lat, frameOf(s), pins...)
		reqs = append(reqs, mapclient.Request{Label: requestLabel(layout.KindGroup, g.Key, s), Static: &st})
	}
	return reqs, nil
}

func (mapboxRequests) overview(label string, groups []model.Group, slots []layout.Slot) ([]mapclient.Request, error) {
	lng, lat, err := geometry.GroupCenter(groups, geometry.Identity{})
	if err != nil {
		return nil, err
	}
	pins, err := overviewPins(label, groups)
	if err != nil {
		return nil, err
	}
	reqs := make([]mapclient.Request, 0, len(slots))
	for _, s := range slots {
		st := webmap.Static(lng, lat, frameOf(s), pins...)
		reqs = append(reqs, mapclient.Request{Label: requestLabel(layout.KindOverview, label, s), Static: &st})
	}
	return reqs, nil
}

// overviewPins draws every member while that fits in one static image
// request. Larger rounds get one pin per group at the group centre, and
// rounds with more groups than webmap.MaxPins are truncated.
func overviewPins(label string, groups []model.Group) ([]webmap.Pin, error) {
	var pins []webmap.Pin
	for _, g := range groups {
		pins = append(pins, webmap.GroupPins(g)...)
	}
	if len(pins) <= webmap.MaxPins {
		return pins, nil
	}

	log := zap.L().With(zap.String("round", label), zap.Int("members", len(pins)))
	pins = make([]webmap.Pin, 0, len(groups))
	for _, g := range groups {
		lng, lat, err := geometry.GroupCenter([]model.Group{g}, geometry.Identity{})
		if err != nil {
			return nil, err
		}
		pins = append(pins, webmap.Pin{Lng: lng, Lat: lat, Color: g.Fill})
	}
	if len(pins) > webmap.MaxPins {
		log.Warn("pipeline: overview has more groups than pins, dropping the rest",
			zap.Int("groups", len(pins)),
			zap.Int("max_pins", webmap.MaxPins),
		)
		return pins[:webmap.MaxPins], nil
	}
	log.Info("pipeline: overview too large for member pins, drawing one pin per group",
		zap.Int("groups", len(pins)),
	)
	return pins, nil
}
