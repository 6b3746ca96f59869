// Package cluster groups points by density. Points carry their own
// identifiers so callers never need to match coordinates back to records.
package cluster

import (
	"context"
	"math"

	"github.com/golang/geo/s2"
)

// Noise is the label given to points that belong to no cluster.
const Noise = -1

// EarthRadiusMeters is the mean earth radius used by the Haversine metric.
const EarthRadiusMeters = 6371008.8

// Point is a clusterable coordinate. For the Haversine metric X is
// longitude and Y latitude, in degrees.
type Point struct {
	ID string
	X  float64
	Y  float64
}

// Params holds clustering parameters.
type Params struct {
	Eps    float64 // neighbourhood radius, in the metric's units
	MinPts int     // minimum neighbourhood size (including the point) for a core point
}

// Clusterer assigns a label to every point ID: 0..k-1 for clusters, Noise otherwise.
type Clusterer interface {
	Cluster(ctx context.Context, points []Point, p Params) (map[string]int, error)
}

// Metric measures the distance between two points.
type Metric func(a, b Point) float64

// Euclidean is planar distance in the points' own units.
func Euclidean(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Haversine is great-circle distance in metres.
func Haversine(a, b Point) float64 {
	p1 := s2.LatLngFromDegrees(a.Y, a.X)
	p2 := s2.LatLngFromDegrees(b.Y, b.X)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// MetricByName returns the metric for a config name, defaulting to Haversine.
func MetricByName(name string) Metric {
	if name == "euclidean" {
		return Euclidean
	}
	return Haversine
}
