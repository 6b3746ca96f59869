package cluster

import (
	"context"

	"github.com/rotisserie/eris"
)

const unvisited = -2

// DBSCAN is density-based clustering over a pluggable metric.
type DBSCAN struct {
	Metric Metric
}

// NewDBSCAN returns a DBSCAN clusterer using m, or Haversine when m is nil.
func NewDBSCAN(m Metric) *DBSCAN {
	if m == nil {
		m = Haversine
	}
	return &DBSCAN{Metric: m}
}

// Cluster labels every point. Clusters are numbered in the order their first
// core point appears in the input. Duplicate IDs are rejected.
func (d *DBSCAN) Cluster(ctx context.Context, points []Point, p Params) (map[string]int, error) {
	if p.Eps <= 0 {
		return nil, eris.Errorf("cluster: eps must be positive, got %v", p.Eps)
	}
	if p.MinPts < 1 {
		return nil, eris.Errorf("cluster: min points must be at least 1, got %d", p.MinPts)
	}

	labels := make([]int, len(points))
	seen := make(map[string]bool, len(points))
	for i, pt := range points {
		if seen[pt.ID] {
			return nil, eris.Errorf("cluster: duplicate point id %q", pt.ID)
		}
		seen[pt.ID] = true
		labels[i] = unvisited
	}

	next := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "cluster: cancelled")
		}

		neighbours := d.region(points, i, p.Eps)
		if len(neighbours) < p.MinPts {
			labels[i] = Noise
			continue
		}

		id := next
		next++
		labels[i] = id

		queue := append([]int(nil), neighbours...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if labels[j] == Noise {
				// Border point: reachable but not core.
				labels[j] = id
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = id

			if more := d.region(points, j, p.Eps); len(more) >= p.MinPts {
				queue = append(queue, more...)
			}
		}
	}

	out := make(map[string]int, len(points))
	for i, pt := range points {
		out[pt.ID] = labels[i]
	}
	return out, nil
}

// region returns the indices within eps of points[i], including i.
func (d *DBSCAN) region(points []Point, i int, eps float64) []int {
	var out []int
	for j := range points {
		if d.Metric(points[i], points[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}
