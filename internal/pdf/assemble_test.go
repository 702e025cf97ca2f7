package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func pageCount(doc []byte) int {
	return bytes.Count(doc, []byte("/Type /Page")) - bytes.Count(doc, []byte("/Type /Pages"))
}

func TestFromImagesThreePages(t *testing.T) {
	pages := [][]byte{
		testPNG(t, 40, 60),
		testPNG(t, 60, 40),
		testPNG(t, 50, 50),
	}

	doc, err := FromImages(pages)
	if err != nil {
		t.Fatalf("FromImages() = %v; want nil", err)
	}
	if !bytes.HasPrefix(doc, []byte("%PDF")) {
		t.Fatal("output missing %PDF header")
	}
	if got := pageCount(doc); got != 3 {
		t.Errorf("page count = %d; want 3", got)
	}
}

func TestFromImagesEmptyInput(t *testing.T) {
	if _, err := FromImages(nil); err == nil {
		t.Error("FromImages(nil) = nil; want error")
	}
}

func TestFromImagesRejectsGarbage(t *testing.T) {
	if _, err := FromImages([][]byte{[]byte("not an image")}); err == nil {
		t.Error("FromImages(garbage) = nil; want error")
	}
}
