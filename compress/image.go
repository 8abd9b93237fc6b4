package compress

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Quality selects the downscale tier for re-encoded images.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// tier is a bounding box and JPEG quality factor for one Quality level.
type tier struct {
	maxWidth    int
	maxHeight   int
	jpegQuality int
}

var tiers = map[Quality]tier{
	QualityLow:    {640, 480, 60},
	QualityMedium: {1024, 768, 75},
	QualityHigh:   {1920, 1080, 85},
}

// ReencodeImage decodes data (JPEG or PNG), scales it down to fit the tier's
// bounding box preserving aspect ratio, and re-encodes it as JPEG at the
// tier's quality factor. An unknown quality falls back to QualityMedium.
// Images already inside the box are re-encoded without resizing.
func ReencodeImage(data []byte, quality Quality) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("compress: decode image: %w", err)
	}
	t, ok := tiers[quality]
	if !ok {
		t = tiers[QualityMedium]
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width > t.maxWidth || height > t.maxHeight {
		scale := float64(t.maxWidth) / float64(width)
		if s := float64(t.maxHeight) / float64(height); s < scale {
			scale = s
		}
		newWidth := max(1, int(float64(width)*scale))
		newHeight := max(1, int(float64(height)*scale))
		dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: t.jpegQuality}); err != nil {
		return nil, fmt.Errorf("compress: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
