package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"regexp"
	"testing"
)

var hexColor = regexp.MustCompile(`^#[0-9a-f]{6}$`)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestAccentColor_Solid(t *testing.T) {
	tests := []struct {
		name string
		c    color.NRGBA
		want string
	}{
		{name: "black", c: color.NRGBA{0, 0, 0, 255}, want: "#000000"},
		{name: "white", c: color.NRGBA{255, 255, 255, 255}, want: "#ffffff"},
		{name: "sky", c: color.NRGBA{0x4a, 0x90, 0xd9, 255}, want: "#4a90d9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AccentColor(solidImage(40, 40, tt.c))
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestAccentColor_OnlyTopStripCounts(t *testing.T) {
	// 100 rows: the top 5 rows are red, the rest green
	img := solidImage(20, 100, color.NRGBA{0, 255, 0, 255})
	for y := 0; y < 5; y++ {
		for x := 0; x < 20; x++ {
			img.SetNRGBA(x, y, color.NRGBA{255, 0, 0, 255})
		}
	}

	if got := AccentColor(img); got != "#ff0000" {
		t.Errorf("expected only the top strip to count, got %s", got)
	}
}

func TestAccentColor_MeanIsRounded(t *testing.T) {
	// two columns of 10 and 11 average to 10.5, which rounds up to 11
	img := image.NewNRGBA(image.Rect(0, 0, 2, 20))
	for y := 0; y < 20; y++ {
		img.SetNRGBA(0, y, color.NRGBA{10, 10, 10, 255})
		img.SetNRGBA(1, y, color.NRGBA{11, 11, 11, 255})
	}

	if got := AccentColor(img); got != "#0b0b0b" {
		t.Errorf("expected #0b0b0b, got %s", got)
	}
}

func TestAccentColor_ShortImageUsesOneRow(t *testing.T) {
	img := solidImage(3, 2, color.NRGBA{0, 0, 255, 255})
	img.SetNRGBA(0, 1, color.NRGBA{255, 255, 255, 255})

	if got := AccentColor(img); got != "#0000ff" {
		t.Errorf("expected first row only, got %s", got)
	}
}

func TestAccentColor_RandomPixelsProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 50; i++ {
		w, h := 1+rng.Intn(64), 1+rng.Intn(64)
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for j := range img.Pix {
			img.Pix[j] = uint8(rng.Intn(256))
			if j%4 == 3 {
				img.Pix[j] = 255
			}
		}

		first := AccentColor(img)
		if !hexColor.MatchString(first) {
			t.Fatalf("image %d: %q is not a #rrggbb color", i, first)
		}
		if second := AccentColor(img); second != first {
			t.Fatalf("image %d: not deterministic: %s vs %s", i, first, second)
		}
	}
}

func TestExtractAccentColor(t *testing.T) {
	data := encodePNG(t, solidImage(16, 16, color.NRGBA{0x12, 0x34, 0x56, 255}))

	first, err := ExtractAccentColor(data)
	if err != nil {
		t.Fatalf("ExtractAccentColor failed: %v", err)
	}
	if first != "#123456" {
		t.Errorf("expected #123456, got %s", first)
	}

	second, err := ExtractAccentColor(data)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("identical bytes gave %s and %s", first, second)
	}
}

func TestExtractAccentColor_InvalidBytes(t *testing.T) {
	_, err := ExtractAccentColor([]byte("not an image"))
	if !errors.Is(err, ErrTransform) {
		t.Errorf("expected ErrTransform, got %v", err)
	}
}
