// Package pdf assembles page images into a single PDF document.
package pdf

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// FromImages builds a portrait A4 PDF with one page per input image.
// Each image is scaled to fit the page and centered, preserving aspect
// ratio. Images must be PNG or JPEG.
func FromImages(images [][]byte) ([]byte, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no page images")
	}

	doc := gofpdf.New("P", "pt", "A4", "")
	pageW, pageH := doc.GetPageSize()

	for i, img := range images {
		imgType := detectImageType(img)
		if imgType == "" {
			return nil, fmt.Errorf("page %d: unsupported image format", i+1)
		}
		opts := gofpdf.ImageOptions{ImageType: imgType}
		name := fmt.Sprintf("page-%d", i+1)
		info := doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(img))
		if doc.Err() {
			return nil, fmt.Errorf("page %d: %w", i+1, doc.Error())
		}

		w, h := info.Extent()
		scale := pageW / w
		if s := pageH / h; s < scale {
			scale = s
		}
		if scale > 1 {
			scale = 1
		}
		drawW, drawH := w*scale, h*scale
		x := (pageW - drawW) / 2
		y := (pageH - drawH) / 2

		doc.AddPage()
		doc.ImageOptions(name, x, y, drawW, drawH, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func detectImageType(img []byte) string {
	switch {
	case len(img) > 8 && bytes.Equal(img[:8], []byte("\x89PNG\r\n\x1a\n")):
		return "PNG"
	case len(img) > 3 && bytes.Equal(img[:3], []byte("\xff\xd8\xff")):
		return "JPG"
	default:
		return ""
	}
}
