package geometry

import (
	"github.com/wroge/wgs84"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// Transformer projects a WGS84 coordinate into a provider's native system.
type Transformer interface {
	Project(p LatLng) (x, y float64)
	WKID() int
}

// Identity leaves coordinates as longitude/latitude (EPSG:4326).
type Identity struct{}

// Project implements Transformer.
func (Identity) Project(p LatLng) (float64, float64) { return p.Lng, p.Lat }

// WKID implements Transformer.
func (Identity) WKID() int { return 4326 }

// BNG projects to the British National Grid (OSGB36, EPSG:27700). The datum
// shift is the EPSG seven-parameter Helmert, good to a few metres, which is
// enough to frame a printed page.
type BNG struct{}

const bngWKID = 27700

var toBNG = wgs84.LonLat().To(wgs84.EPSG().Code(bngWKID))

// WKID implements Transformer.
func (BNG) WKID() int { return bngWKID }

// Project implements Transformer, returning easting and northing in metres.
func (BNG) Project(p LatLng) (float64, float64) {
	east, north, _ := toBNG(p.Lng, p.Lat, 0)
	return east, north
}

// ForProvider returns the transformer a provider expects.
func ForProvider(name string) Transformer {
	if name == "mapbox" {
		return Identity{}
	}
	return BNG{}
}

// GroupCenter returns the projected map centre for a page showing groups.
// The centroid branch follows the number of groups on the page: a group
// page passes one group, a round overview passes all of them.
func GroupCenter(groups []model.Group, tr Transformer) (x, y float64, err error) {
	c, err := Centroid(MemberPoints(groups...), len(groups))
	if err != nil {
		return 0, 0, err
	}
	x, y = tr.Project(c)
	return x, y, nil
}
