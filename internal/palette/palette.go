// Package palette generates distinguishable marker colors for groups.
package palette

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// Defaults used when a Generator field is zero.
const (
	DefaultPastel        = 0.9
	DefaultTrials        = 100
	DefaultOutlineOffset = 45
)

// Generator picks colors greedily: each new color is the best of Trials
// random pastel candidates by minimum L1 distance to the colors already
// chosen. The result depends on the seed and is not globally optimal.
type Generator struct {
	Rand   *rand.Rand
	Pastel float64
	Trials int
}

// New returns a Generator seeded with seed.
func New(seed uint64, pastel float64, trials int) *Generator {
	return &Generator{
		Rand:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Pastel: pastel,
		Trials: trials,
	}
}

type rgb [3]float64

func (g *Generator) candidate() rgb {
	var c rgb
	for i := range c {
		c[i] = (g.Rand.Float64() + g.Pastel) / (1 + g.Pastel)
	}
	return c
}

func distance(a, b rgb) float64 {
	return math.Abs(a[0]-b[0]) + math.Abs(a[1]-b[1]) + math.Abs(a[2]-b[2])
}

func (g *Generator) next(existing []rgb) rgb {
	trials := g.Trials
	if trials <= 0 {
		trials = DefaultTrials
	}

	var best rgb
	bestDist := -1.0
	for i := 0; i < trials; i++ {
		c := g.candidate()
		if len(existing) == 0 {
			return c
		}
		nearest := math.Inf(1)
		for _, e := range existing {
			nearest = math.Min(nearest, distance(c, e))
		}
		if nearest > bestDist {
			bestDist = nearest
			best = c
		}
	}
	return best
}

// Generate returns n fill colors with alpha 255.
func (g *Generator) Generate(n int) []model.Color {
	if g.Rand == nil {
		g.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	chosen := make([]rgb, 0, n)
	out := make([]model.Color, 0, n)
	for i := 0; i < n; i++ {
		c := g.next(chosen)
		chosen = append(chosen, c)
		out = append(out, model.Color{
			R: uint8(c[0] * 255),
			G: uint8(c[1] * 255),
			B: uint8(c[2] * 255),
			A: 255,
		})
	}
	return out
}

// Outline darkens the first two channels of fill by offset, clamping at zero.
func Outline(fill model.Color, offset int) model.Color {
	sub := func(v uint8) uint8 {
		if int(v) <= offset {
			return 0
		}
		return uint8(int(v) - offset)
	}
	return model.Color{R: sub(fill.R), G: sub(fill.G), B: fill.B, A: fill.A}
}

// MinPairwise returns the smallest L1 distance between any two colors in
// 8-bit channel units, or +Inf for fewer than two colors.
func MinPairwise(colors []model.Color) float64 {
	best := math.Inf(1)
	for i := range colors {
		for j := i + 1; j < len(colors); j++ {
			a, b := colors[i], colors[j]
			d := math.Abs(float64(a.R)-float64(b.R)) +
				math.Abs(float64(a.G)-float64(b.G)) +
				math.Abs(float64(a.B)-float64(b.B))
			best = math.Min(best, d)
		}
	}
	return best
}

// HLS converts a color to hue, lightness and saturation in [0,1].
func HLS(c model.Color) (h, l, s float64) {
	r, g, b := float64(c.R)/255, float64(c.G)/255, float64(c.B)/255
	maxc := math.Max(r, math.Max(g, b))
	minc := math.Min(r, math.Min(g, b))
	l = (maxc + minc) / 2
	if maxc == minc {
		return 0, l, 0
	}
	span := maxc - minc
	if l <= 0.5 {
		s = span / (maxc + minc)
	} else {
		s = span / (2 - maxc - minc)
	}
	rc := (maxc - r) / span
	gc := (maxc - g) / span
	bc := (maxc - b) / span
	switch maxc {
	case r:
		h = bc - gc
	case g:
		h = 2 + rc - bc
	default:
		h = 4 + gc - rc
	}
	h = math.Mod(h/6, 1)
	if h < 0 {
		h++
	}
	return h, l, s
}

// SortByHLS orders colors by hue, then lightness, then saturation.
func SortByHLS(colors []model.Color) {
	sort.SliceStable(colors, func(i, j int) bool {
		hi, li, si := HLS(colors[i])
		hj, lj, sj := HLS(colors[j])
		if hi != hj {
			return hi < hj
		}
		if li != lj {
			return li < lj
		}
		return si < sj
	})
}

// Assign gives every group a fill and outline color. Fills are sorted by
// hue and handed out in the order groups were formed, so call it before
// reordering groups by position; otherwise map neighbours get near hues.
func Assign(groups []model.Group, g *Generator, outlineOffset int) {
	fills := g.Generate(len(groups))
	SortByHLS(fills)
	for i := range groups {
		groups[i].Fill = fills[i]
		groups[i].Outline = Outline(fills[i], outlineOffset)
	}
}
