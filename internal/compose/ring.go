package compose

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// DefaultAntialias is the supersampling factor used for ring masks.
const DefaultAntialias = 4

// kappa places cubic control points so four curves approximate an ellipse.
const kappa = 0.5522847498

// RingGeometry returns the outer and inner ellipse boxes of a ring of the
// given stroke width around bounds, in coordinates scaled by aa. The stroke
// straddles the bounds: the outer box is inflated by half the scaled width
// and the inner box is deflated by the rest. With aa of 1 the boxes are
// plain page coordinates.
func RingGeometry(bounds image.Rectangle, width, aa int) (outer, inner image.Rectangle) {
	if aa < 1 {
		aa = 1
	}
	s := scaleRect(bounds, aa)
	half := width * aa / 2
	outer = s.Inset(-half)
	inner = s.Inset(width*aa - half)
	return outer, inner
}

// Ring draws an elliptical black ring around bounds. The mask is rasterized
// at aa times the page resolution and downsampled with Catmull-Rom so the
// edges are smooth.
func (p *Page) Ring(bounds image.Rectangle, width, aa int) {
	if width <= 0 || bounds.Empty() {
		return
	}
	if aa < 1 {
		aa = 1
	}
	outer, inner := RingGeometry(bounds, width, aa)
	dst := image.Rect(
		floorDiv(outer.Min.X, aa), floorDiv(outer.Min.Y, aa),
		ceilDiv(outer.Max.X, aa), ceilDiv(outer.Max.Y, aa),
	)
	mask := ringMask(scaleRect(dst, aa), outer, inner)

	small := image.NewAlpha(image.Rectangle{Max: dst.Size()})
	if aa == 1 {
		draw.Draw(small, small.Bounds(), mask, image.Point{}, draw.Src)
	} else {
		draw.CatmullRom.Scale(small, small.Bounds(), mask, mask.Bounds(), draw.Src, nil)
	}
	draw.DrawMask(p.img, dst, image.Black, image.Point{}, small, image.Point{}, draw.Over)
}

// ringMask rasterizes the band between outer and inner into a mask the size
// of frame, with the mask origin at frame.Min. The inner ellipse is wound
// the other way so it cuts the hole.
func ringMask(frame, outer, inner image.Rectangle) *image.Alpha {
	z := vector.NewRasterizer(frame.Dx(), frame.Dy())
	z.DrawOp = draw.Src
	ellipse(z, outer.Sub(frame.Min), false)
	if !inner.Empty() {
		ellipse(z, inner.Sub(frame.Min), true)
	}
	mask := image.NewAlpha(image.Rectangle{Max: frame.Size()})
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

// ellipse adds a closed ellipse inscribed in r to the rasterizer path.
func ellipse(z *vector.Rasterizer, r image.Rectangle, reverse bool) {
	rx, ry := float32(r.Dx())/2, float32(r.Dy())/2
	if rx <= 0 || ry <= 0 {
		return
	}
	cx, cy := float32(r.Min.X)+rx, float32(r.Min.Y)+ry
	kx, ky := rx*kappa, ry*kappa
	s := float32(1)
	if reverse {
		s = -1
	}
	z.MoveTo(cx+rx, cy)
	z.CubeTo(cx+rx, cy+s*ky, cx+kx, cy+s*ry, cx, cy+s*ry)
	z.CubeTo(cx-kx, cy+s*ry, cx-rx, cy+s*ky, cx-rx, cy)
	z.CubeTo(cx-rx, cy-s*ky, cx-kx, cy-s*ry, cx, cy-s*ry)
	z.CubeTo(cx+kx, cy-s*ry, cx+rx, cy-s*ky, cx+rx, cy)
	z.ClosePath()
}

func scaleRect(r image.Rectangle, k int) image.Rectangle {
	return image.Rect(r.Min.X*k, r.Min.Y*k, r.Max.X*k, r.Max.Y*k)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

func ceilDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a > 0 {
		q++
	}
	return q
}
