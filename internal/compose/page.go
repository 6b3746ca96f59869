// Package compose lays fetched map images, labels and ring markers onto a
// page template.
package compose

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg" // template and map decoders
	_ "image/png"
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/image/draw"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// Page is one template copy being composed. It is not safe for concurrent use.
type Page struct {
	img        *image.RGBA
	pasted     int
	incomplete []string
}

// LoadTemplate decodes the template at path into a fresh page. Every call
// returns an independent copy. A missing or undecodable template is a
// ConfigurationError.
func LoadTemplate(path string) (*Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &model.ConfigurationError{Item: path, Err: eris.Wrap(err, "compose: open template")}
	}
	defer f.Close() //nolint:errcheck

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, &model.ConfigurationError{Item: path, Err: eris.Wrap(err, "compose: decode template")}
	}
	return NewPage(src), nil
}

// NewPage copies src into a new page.
func NewPage(src image.Image) *Page {
	b := src.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)
	return &Page{img: img}
}

// Blank returns a white image of the given size, used to seed templates.
func Blank(size image.Point) *image.RGBA {
	img := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}

// DecodeImage decodes fetched JPEG or PNG bytes.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "compose: decode map image")
	}
	return img, nil
}

// Paste draws img into slot. An image whose size differs from the slot is
// resampled to fill it.
func (p *Page) Paste(img image.Image, slot image.Rectangle) {
	src := img.Bounds()
	if src.Size() == slot.Size() {
		draw.Draw(p.img, slot, img, src.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(p.img, slot, img, src, draw.Src, nil)
	}
	p.pasted++
}

// MarkIncomplete greys out slot and stamps text on it so a missing map is
// visible on the printed page.
func (p *Page) MarkIncomplete(slot image.Rectangle, text string) error {
	slot = slot.Intersect(p.img.Bounds())
	draw.Draw(p.img, slot, image.NewUniform(color.Gray{Y: 0xe0}), image.Point{}, draw.Src)

	border := max(2, min(slot.Dx(), slot.Dy())/100)
	red := image.NewUniform(color.RGBA{R: 0xc0, A: 0xff})
	for _, r := range []image.Rectangle{
		image.Rect(slot.Min.X, slot.Min.Y, slot.Max.X, slot.Min.Y+border),
		image.Rect(slot.Min.X, slot.Max.Y-border, slot.Max.X, slot.Max.Y),
		image.Rect(slot.Min.X, slot.Min.Y, slot.Min.X+border, slot.Max.Y),
		image.Rect(slot.Max.X-border, slot.Min.Y, slot.Max.X, slot.Max.Y),
	} {
		draw.Draw(p.img, r, red, image.Point{}, draw.Src)
	}

	p.incomplete = append(p.incomplete, text)
	size := max(12, float64(slot.Dy())/20)
	at := image.Pt(slot.Min.X+4*border, slot.Min.Y+4*border)
	return p.text([]string{"MAP UNAVAILABLE", text}, at, size, false)
}

// Validate rejects a page with no map images.
func (p *Page) Validate() error {
	if p.pasted == 0 {
		return &model.DataError{Reason: "no map images pasted"}
	}
	return nil
}

// Image returns the composed raster.
func (p *Page) Image() *image.RGBA { return p.img }

// Pasted returns how many map images were pasted.
func (p *Page) Pasted() int { return p.pasted }

// Incomplete returns the notes of slots marked as missing.
func (p *Page) Incomplete() []string { return p.incomplete }
