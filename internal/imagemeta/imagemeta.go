// Package imagemeta derives the geometry fields and the pixel hash of an
// image file, and renders thumbnails.
package imagemeta

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/disintegration/imaging"
)

// ThumbnailSize bounds both thumbnail edges.
const ThumbnailSize = 400

// HashPrefix is prepended to the hex digest of the pixel hash.
const HashPrefix = "sha256"

// Meta holds the derived geometry fields of an image.
type Meta struct {
	Width               int64
	Height              int64
	ShortEdge           int64
	PixelCount          int64
	AspectRatio         float64
	AspectRatioFraction string
	PixelHash           string
}

// Read decodes an image file and derives its geometry and pixel hash.
func Read(data []byte) (*Meta, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := int64(bounds.Dx()), int64(bounds.Dy())
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("image has zero dimensions")
	}
	ratio := float64(w) / float64(h)

	pixels := imaging.Clone(img)
	sum := sha256.Sum256(pixels.Pix)

	return &Meta{
		Width:               w,
		Height:              h,
		ShortEdge:           min(w, h),
		PixelCount:          w * h,
		AspectRatio:         ratio,
		AspectRatioFraction: AspectRatioFraction(ratio),
		PixelHash:           HashPrefix + ":" + hex.EncodeToString(sum[:]),
	}, nil
}

// Thumbnail renders a JPEG thumbnail fitting within ThumbnailSize on both
// edges, preserving the aspect ratio.
func Thumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	thumb := imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// AspectRatioFraction renders the ratio as "w:h" using the best rational
// approximation with denominator at most 10. Zero ratios render empty.
func AspectRatioFraction(ratio float64) string {
	if ratio == 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return ""
	}
	num, den := limitDenominator(ratio, 10)
	return fmt.Sprintf("%d:%d", num, den)
}

// limitDenominator finds the closest fraction to x with denominator at most
// maxDen, walking the continued fraction convergents.
func limitDenominator(x float64, maxDen int64) (int64, int64) {
	var p0, q0, p1, q1 int64 = 0, 1, 1, 0
	rem := x
	for {
		a := int64(math.Floor(rem))
		q2 := q0 + a*q1
		if q1 != 0 && q2 > maxDen {
			break
		}
		p0, q0, p1, q1 = p1, q1, p0+a*p1, q2
		frac := rem - float64(a)
		if frac < 1e-12 {
			return p1, q1
		}
		rem = 1 / frac
	}

	k := (maxDen - q0) / q1
	bp, bq := p0+k*p1, q0+k*q1
	if math.Abs(float64(p1)/float64(q1)-x) <= math.Abs(float64(bp)/float64(bq)-x) {
		return p1, q1
	}
	return bp, bq
}
