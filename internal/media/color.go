package media

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// accentStripRatio is the share of the image height, measured from the top
// edge, that the accent color is computed from.
const accentStripRatio = 0.05

// ExtractAccentColor decodes an image and returns its accent color as #rrggbb.
func ExtractAccentColor(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: decode for accent color: %w", ErrTransform, err)
	}
	return AccentColor(img), nil
}

// AccentColor averages each channel over the top strip of img and formats
// the result as #rrggbb.
func AccentColor(img image.Image) string {
	bounds := img.Bounds()
	if bounds.Empty() {
		return "#000000"
	}

	stripHeight := int(math.Floor(float64(bounds.Dy()) * accentStripRatio))
	if stripHeight < 1 {
		stripHeight = 1
	}

	strip := imaging.Crop(img, image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Min.Y+stripHeight))

	var sumR, sumG, sumB float64
	pixels := 0
	for i := 0; i+3 < len(strip.Pix); i += 4 {
		sumR += float64(strip.Pix[i])
		sumG += float64(strip.Pix[i+1])
		sumB += float64(strip.Pix[i+2])
		pixels++
	}
	if pixels == 0 {
		return "#000000"
	}

	n := float64(pixels)
	return fmt.Sprintf("#%02x%02x%02x", channel(sumR/n), channel(sumG/n), channel(sumB/n))
}

func channel(mean float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, mean))))
}
