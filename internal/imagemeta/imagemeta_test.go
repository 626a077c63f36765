package imagemeta

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 7, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRead_Geometry(t *testing.T) {
	m, err := Read(testPNG(t, 640, 480))
	if err != nil {
		t.Fatal(err)
	}
	if m.Width != 640 || m.Height != 480 {
		t.Errorf("size = %dx%d", m.Width, m.Height)
	}
	if m.ShortEdge != 480 {
		t.Errorf("short edge = %d", m.ShortEdge)
	}
	if m.PixelCount != 640*480 {
		t.Errorf("pixel count = %d", m.PixelCount)
	}
	if m.AspectRatioFraction != "4:3" {
		t.Errorf("fraction = %q", m.AspectRatioFraction)
	}
	if !strings.HasPrefix(m.PixelHash, "sha256:") {
		t.Errorf("hash = %q", m.PixelHash)
	}
}

func TestRead_HashStable(t *testing.T) {
	a, err := Read(testPNG(t, 32, 32))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Read(testPNG(t, 32, 32))
	if err != nil {
		t.Fatal(err)
	}
	if a.PixelHash != b.PixelHash {
		t.Errorf("hash not stable: %q vs %q", a.PixelHash, b.PixelHash)
	}

	c, err := Read(testPNG(t, 32, 33))
	if err != nil {
		t.Fatal(err)
	}
	if c.PixelHash == a.PixelHash {
		t.Error("different pixels should hash differently")
	}
}

func TestRead_InvalidData(t *testing.T) {
	if _, err := Read([]byte("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestAspectRatioFraction(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{1, "1:1"},
		{1.5, "3:2"},
		{16.0 / 9.0, "16:9"},
		{0.75, "3:4"},
		{1.3339, "4:3"},
		{0, ""},
	}
	for _, tc := range cases {
		if got := AspectRatioFraction(tc.ratio); got != tc.want {
			t.Errorf("AspectRatioFraction(%v) = %q, want %q", tc.ratio, got, tc.want)
		}
	}
}

func TestThumbnail_FitsBounds(t *testing.T) {
	data, err := Thumbnail(testPNG(t, 1600, 800))
	if err != nil {
		t.Fatal(err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if b.Dx() != 400 || b.Dy() != 200 {
		t.Errorf("thumbnail = %dx%d, want 400x200", b.Dx(), b.Dy())
	}
}
