// Package geometry computes map centres and projects them for providers.
package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// LatLng is a WGS84 coordinate in degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// PolygonThreshold is the group count at which Centroid switches from a
// multipoint to a polygon centroid.
const PolygonThreshold = 3

// Centroid returns the representative point of pts. A single point is
// returned unchanged. When groupCount is at least PolygonThreshold the
// ordered points are treated as a polygon ring; otherwise as a multipoint.
// Per-group pages pass a groupCount of 1, overview pages pass the number of
// groups on the page.
func Centroid(pts []LatLng, groupCount int) (LatLng, error) {
	switch {
	case len(pts) == 0:
		return LatLng{}, &model.DataError{Reason: "centroid of no points"}
	case len(pts) == 1:
		return pts[0], nil
	case groupCount >= PolygonThreshold:
		if c, ok := polygonCentroid(pts); ok {
			return c, nil
		}
	}
	return multiPointCentroid(pts)
}

func flatCoords(pts []LatLng) []float64 {
	flat := make([]float64, 0, 2*len(pts)+2)
	for _, p := range pts {
		flat = append(flat, p.Lng, p.Lat)
	}
	return flat
}

func multiPointCentroid(pts []LatLng) (LatLng, error) {
	mp := geom.NewMultiPointFlat(geom.XY, flatCoords(pts))
	c, err := xy.Centroid(mp)
	if err != nil {
		return LatLng{}, eris.Wrap(err, "geometry: multipoint centroid")
	}
	return LatLng{Lat: c.Y(), Lng: c.X()}, nil
}

// polygonCentroid closes the ring if needed. It reports false when the ring
// has fewer than three distinct vertices or no area and no length, which
// leaves the centroid undefined.
func polygonCentroid(pts []LatLng) (LatLng, bool) {
	if distinct(pts) < PolygonThreshold {
		return LatLng{}, false
	}
	flat := flatCoords(pts)
	if pts[0] != pts[len(pts)-1] {
		flat = append(flat, pts[0].Lng, pts[0].Lat)
	}
	poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
	c, err := xy.Centroid(poly)
	if err != nil || math.IsNaN(c.X()) || math.IsNaN(c.Y()) {
		return LatLng{}, false
	}
	return LatLng{Lat: c.Y(), Lng: c.X()}, true
}

func distinct(pts []LatLng) int {
	seen := make(map[LatLng]struct{}, len(pts))
	for _, p := range pts {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// MemberPoints returns the coordinates of every member of every group, in order.
func MemberPoints(groups ...model.Group) []LatLng {
	var pts []LatLng
	for _, g := range groups {
		for _, m := range g.Members {
			pts = append(pts, LatLng{Lat: m.Lat, Lng: m.Lng})
		}
	}
	return pts
}
