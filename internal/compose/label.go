package compose

import (
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

var (
	fontOnce sync.Once
	fontErr  error
	regular  *opentype.Font
)

func bundledFont() (*opentype.Font, error) {
	fontOnce.Do(func() {
		regular, fontErr = opentype.Parse(goregular.TTF)
		if fontErr != nil {
			fontErr = eris.Wrap(fontErr, "compose: parse bundled font")
		}
	})
	return regular, fontErr
}

// Label draws lines top-down from anchor on a white backing box. size is
// the font size in template pixels.
func (p *Page) Label(lines []string, anchor image.Point, size float64) error {
	return p.text(lines, anchor, size, true)
}

func (p *Page) text(lines []string, anchor image.Point, size float64, backing bool) error {
	if len(lines) == 0 {
		return nil
	}
	f, err := bundledFont()
	if err != nil {
		return err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return eris.Wrap(err, "compose: create font face")
	}
	defer face.Close() //nolint:errcheck

	m := face.Metrics()
	lineHeight := m.Height.Ceil()
	d := &font.Drawer{Dst: p.img, Src: image.Black, Face: face}

	if backing {
		width := 0
		for _, l := range lines {
			width = max(width, d.MeasureString(l).Ceil())
		}
		pad := lineHeight / 4
		box := image.Rect(anchor.X-pad, anchor.Y-pad, anchor.X+width+pad, anchor.Y+lineHeight*len(lines)+pad)
		draw.Draw(p.img, box.Intersect(p.img.Bounds()), image.NewUniform(color.White), image.Point{}, draw.Src)
	}

	for i, l := range lines {
		d.Dot = fixed.P(anchor.X, anchor.Y+i*lineHeight)
		d.Dot.Y += m.Ascent
		d.DrawString(l)
	}
	return nil
}

// FormatLabel joins label lines with line breaks.
func FormatLabel(lines []string) string {
	return strings.Join(lines, "\n")
}

// GroupLabel returns the lines printed on a group page: street, town,
// postcode and the round label, skipping empty parts.
func GroupLabel(first model.Location, round string) []string {
	title := cases.Title(language.BritishEnglish)
	parts := []string{
		title.String(strings.TrimSpace(first.Street)),
		title.String(strings.TrimSpace(first.Town)),
		strings.ToUpper(strings.TrimSpace(first.Postcode)),
		strings.TrimSpace(round),
	}
	return nonEmpty(parts)
}

// AddressLabel returns the address lines of a single location. Lines are
// title-cased except the postcode.
func AddressLabel(loc model.Location) []string {
	title := cases.Title(language.BritishEnglish)
	postcode := strings.ToUpper(strings.TrimSpace(loc.Postcode))
	lines := loc.AddressLines()
	out := make([]string, 0, len(lines)+1)
	hasPostcode := false
	for _, l := range lines {
		if strings.EqualFold(l, postcode) {
			out = append(out, postcode)
			hasPostcode = true
			continue
		}
		out = append(out, title.String(l))
	}
	if !hasPostcode && postcode != "" {
		out = append(out, postcode)
	}
	return out
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
