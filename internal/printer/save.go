// Package printer writes composed pages to PDF or JPEG and assembles rounds.
package printer

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/rotisserie/eris"
)

// JPEGQuality is used for saved pages and for images embedded in PDFs.
const JPEGQuality = 92

// Save writes img to path as PDF or JPEG depending on the extension, with
// dpi recorded in the file: as the PDF page size or as JFIF density.
func Save(img image.Image, path string, dpi int) error {
	if dpi <= 0 {
		return eris.Errorf("printer: dpi must be positive, got %d", dpi)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "printer: create output dir")
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return savePDF(img, path, dpi)
	case ".jpg", ".jpeg":
		data, err := encodeJPEG(img, dpi)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return eris.Wrap(err, "printer: write jpeg")
		}
		return nil
	default:
		return eris.Errorf("printer: unsupported format %q", ext)
	}
}

// savePDF writes a single page sized so the raster prints at dpi.
func savePDF(img image.Image, path string, dpi int) error {
	data, err := encodeJPEG(img, dpi)
	if err != nil {
		return err
	}
	size := img.Bounds().Size()
	w := float64(size.X) / float64(dpi)
	h := float64(size.Y) / float64(dpi)

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "in",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: "JPG"}
	pdf.RegisterImageOptionsReader("page", opts, bytes.NewReader(data))
	pdf.ImageOptions("page", 0, 0, w, h, false, opts, 0, "")

	if err := pdf.OutputFileAndClose(path); err != nil {
		return eris.Wrap(err, "printer: write pdf")
	}
	return nil
}

// encodeJPEG encodes img and inserts a JFIF APP0 segment carrying dpi.
func encodeJPEG(img image.Image, dpi int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, eris.Wrap(err, "printer: encode jpeg")
	}
	return withDensity(buf.Bytes(), dpi)
}

// withDensity places a JFIF header with units of dots per inch directly
// after the start-of-image marker.
func withDensity(data []byte, dpi int) ([]byte, error) {
	if len(data) < 2 || data[0] != 0xff || data[1] != 0xd8 {
		return nil, eris.New("printer: not a jpeg stream")
	}
	d := uint16(min(dpi, 0xffff))
	app0 := []byte{
		0xff, 0xe0, // APP0
		0x00, 0x10, // length 16
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x02, // version 1.02
		0x01,       // units: dots per inch
		0, 0, 0, 0, // x and y density
		0x00, 0x00, // no thumbnail
	}
	binary.BigEndian.PutUint16(app0[12:14], d)
	binary.BigEndian.PutUint16(app0[14:16], d)

	out := make([]byte, 0, len(data)+len(app0))
	out = append(out, data[:2]...)
	out = append(out, app0...)
	out = append(out, data[2:]...)
	return out, nil
}
