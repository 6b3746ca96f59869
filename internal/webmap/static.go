package webmap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// MaxStaticSize is the largest width or height the Mapbox static API serves.
const MaxStaticSize = 1280

// MaxPins keeps a pin overlay well inside the static API's 8192 character
// request limit.
const MaxPins = 150

// Pin is a small marker overlay on a static map.
type Pin struct {
	Lng   float64
	Lat   float64
	Color model.Color
}

// StaticRequest describes one Mapbox static image.
type StaticRequest struct {
	Lng    float64
	Lat    float64
	Zoom   float64
	Width  int
	Height int
	Pins   []Pin
}

// Static frames a WGS84 center at a zoom level. Zoom is carried in
// Frame.Scale for Mapbox layouts.
func Static(lng, lat float64, f Frame, pins ...Pin) StaticRequest {
	return StaticRequest{
		Lng:    lng,
		Lat:    lat,
		Zoom:   f.Scale,
		Width:  min(f.Width, MaxStaticSize),
		Height: min(f.Height, MaxStaticSize),
		Pins:   pins,
	}
}

// GroupPins returns one pin per member in the group's fill color.
func GroupPins(g model.Group) []Pin {
	pins := make([]Pin, 0, len(g.Members))
	for _, m := range g.Members {
		pins = append(pins, Pin{Lng: m.Lng, Lat: m.Lat, Color: g.Fill})
	}
	return pins
}

// Overlay renders pins in the static API's overlay syntax, or "" when there
// are none.
func (r StaticRequest) Overlay() string {
	parts := make([]string, 0, len(r.Pins))
	for _, p := range r.Pins {
		parts = append(parts, fmt.Sprintf("pin-s+%s(%s,%s)", p.Color.Hex(), coord(p.Lng), coord(p.Lat)))
	}
	return strings.Join(parts, ",")
}

// Position renders "{lng},{lat},{zoom}".
func (r StaticRequest) Position() string {
	return coord(r.Lng) + "," + coord(r.Lat) + "," + strconv.FormatFloat(r.Zoom, 'f', -1, 64)
}

// Size renders "{w}x{h}".
func (r StaticRequest) Size() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
