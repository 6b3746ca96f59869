// Package grouping partitions location records into printable groups.
package grouping

import (
	"context"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/avery-whitehead/StreetMapsDownload/internal/cluster"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// Grouper turns records into groups.
type Grouper interface {
	Group(ctx context.Context, locs []model.Location) ([]model.Group, error)
}

// ByPostcode groups records by exact postcode. Groups appear in the order
// their postcode is first seen; members keep input order.
type ByPostcode struct{}

// Group implements Grouper.
func (ByPostcode) Group(_ context.Context, locs []model.Location) ([]model.Group, error) {
	index := make(map[string]int)
	var groups []model.Group
	for _, loc := range locs {
		i, ok := index[loc.Postcode]
		if !ok {
			i = len(groups)
			index[loc.Postcode] = i
			groups = append(groups, model.Group{Key: loc.Postcode})
		}
		groups[i].Members = append(groups[i].Members, loc)
	}
	for i := range groups {
		groups[i].Rounds = model.UnionRounds(groups[i].Members)
	}
	return groups, nil
}

// Density groups records with a density clusterer. Each record's UPRN is
// passed through the clusterer as its point ID.
type Density struct {
	Clusterer cluster.Clusterer
	Params    cluster.Params
	// Planar clusters on x/y instead of lng/lat.
	Planar bool
}

// Group implements Grouper. Clusters come first in label order, then the
// noise group if any record was left unclustered.
func (d Density) Group(ctx context.Context, locs []model.Location) ([]model.Group, error) {
	if len(locs) == 0 {
		return nil, nil
	}

	points := make([]cluster.Point, len(locs))
	byID := make(map[string]model.Location, len(locs))
	for i, loc := range locs {
		if _, dup := byID[loc.UPRN]; dup {
			return nil, &model.DataError{Reason: "duplicate uprn " + loc.UPRN}
		}
		byID[loc.UPRN] = loc
		if d.Planar {
			points[i] = cluster.Point{ID: loc.UPRN, X: loc.X, Y: loc.Y}
		} else {
			points[i] = cluster.Point{ID: loc.UPRN, X: loc.Lng, Y: loc.Lat}
		}
	}

	labels, err := d.Clusterer.Cluster(ctx, points, d.Params)
	if err != nil {
		return nil, eris.Wrap(err, "grouping: cluster")
	}

	for id := range labels {
		if _, ok := byID[id]; !ok {
			return nil, &model.DataError{Reason: "clusterer returned unknown id " + id}
		}
	}

	buckets := make(map[int][]model.Location)
	for _, loc := range locs {
		label, ok := labels[loc.UPRN]
		if !ok {
			return nil, &model.DataError{Reason: "no cluster label for uprn " + loc.UPRN}
		}
		buckets[label] = append(buckets[label], loc)
	}

	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		if k != cluster.Noise {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)

	groups := make([]model.Group, 0, len(buckets))
	for _, k := range keys {
		groups = append(groups, model.Group{
			Key:     strconv.Itoa(k),
			Members: buckets[k],
			Rounds:  model.UnionRounds(buckets[k]),
		})
	}
	if noise := buckets[cluster.Noise]; len(noise) > 0 {
		groups = append(groups, model.Group{
			Key:     model.NoiseKey,
			Members: noise,
			Rounds:  model.UnionRounds(noise),
			Noise:   true,
		})
	}

	zap.L().Debug("grouping: density clusters",
		zap.Int("records", len(locs)),
		zap.Int("clusters", len(keys)),
		zap.Int("noise", len(buckets[cluster.Noise])),
	)
	return groups, nil
}

// WithoutNoise drops the noise group. Rendering only ever sees its result.
func WithoutNoise(groups []model.Group) []model.Group {
	out := make([]model.Group, 0, len(groups))
	for _, g := range groups {
		if !g.Noise {
			out = append(out, g)
		}
	}
	return out
}

// Validate returns the first DataError among groups.
func Validate(groups []model.Group) error {
	for _, g := range groups {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SortByPosition orders groups by mean latitude plus mean longitude, which
// keeps neighbouring groups on consecutive pages. The sort is stable.
func SortByPosition(groups []model.Group) {
	key := func(g model.Group) float64 {
		if len(g.Members) == 0 {
			return 0
		}
		var lat, lng float64
		for _, m := range g.Members {
			lat += m.Lat
			lng += m.Lng
		}
		n := float64(len(g.Members))
		return lat/n + lng/n
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return key(groups[i]) < key(groups[j])
	})
}

// ByRound buckets groups under each round tag they carry. Rounds are sorted
// by label; groups keep their relative order. Known rounds with no groups
// are kept so their absence shows up in reports.
func ByRound(groups []model.Group, known []string) []model.Round {
	index := make(map[string]int)
	var rounds []model.Round
	add := func(label string) int {
		if i, ok := index[label]; ok {
			return i
		}
		index[label] = len(rounds)
		rounds = append(rounds, model.Round{Label: label})
		return len(rounds) - 1
	}

	for _, label := range known {
		if label != "" {
			add(label)
		}
	}
	for _, g := range groups {
		for _, r := range g.Rounds {
			i := add(r)
			rounds[i].Groups = append(rounds[i].Groups, g)
		}
	}

	sort.SliceStable(rounds, func(i, j int) bool { return rounds[i].Label < rounds[j].Label })
	return rounds
}
