package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func isWebP(data []byte) bool {
	return len(data) > 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

func TestTransform_FullResolution(t *testing.T) {
	raw := encodeJPEG(t, solidImage(64, 36, color.NRGBA{200, 100, 50, 255}))

	enc, err := NewTransformer(0).Transform(raw, Variant{Role: RoleDesktop})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if enc.Width != 64 || enc.Height != 36 {
		t.Errorf("expected 64x36, got %dx%d", enc.Width, enc.Height)
	}
	if !isWebP(enc.Bytes) {
		t.Error("expected WebP output")
	}
}

func TestTransform_ResizePreservesAspectRatio(t *testing.T) {
	raw := encodeJPEG(t, solidImage(160, 90, color.NRGBA{10, 20, 30, 255}))

	enc, err := NewTransformer(DefaultQuality).Transform(raw, Variant{Role: RoleThumbnail, MaxWidth: 32})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if enc.Width != 32 || enc.Height != 18 {
		t.Errorf("expected 32x18, got %dx%d", enc.Width, enc.Height)
	}
}

func TestTransform_NoUpscale(t *testing.T) {
	raw := encodeJPEG(t, solidImage(20, 10, color.NRGBA{10, 20, 30, 255}))

	enc, err := NewTransformer(DefaultQuality).Transform(raw, Variant{Role: RoleThumbnail, MaxWidth: 480})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if enc.Width != 20 || enc.Height != 10 {
		t.Errorf("expected source size 20x10, got %dx%d", enc.Width, enc.Height)
	}
}

func TestTransform_Deterministic(t *testing.T) {
	raw := encodeJPEG(t, solidImage(48, 27, color.NRGBA{90, 120, 200, 255}))
	tr := NewTransformer(DefaultQuality)

	a, err := tr.Transform(raw, Variant{Role: RoleDesktop})
	if err != nil {
		t.Fatal(err)
	}
	b, err := tr.Transform(raw, Variant{Role: RoleDesktop})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes, b.Bytes) {
		t.Error("expected identical output for identical input")
	}
}

func TestTransform_InvalidInput(t *testing.T) {
	_, err := NewTransformer(DefaultQuality).Transform([]byte{0xde, 0xad}, Variant{Role: RoleMobile})
	if !errors.Is(err, ErrTransform) {
		t.Fatalf("expected ErrTransform, got %v", err)
	}
}

func TestDerive(t *testing.T) {
	raw := encodeJPEG(t, solidImage(64, 64, color.NRGBA{0, 0, 0, 255}))

	art, err := NewTransformer(DefaultQuality).Derive(raw, Variant{Role: RoleMobile}, "20261019")
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if art.Role != RoleMobile {
		t.Errorf("expected role mobile, got %s", art.Role)
	}
	if art.SnapshotID != "20261019" {
		t.Errorf("expected snapshot id 20261019, got %s", art.SnapshotID)
	}
	if art.AccentColor != "#000000" {
		t.Errorf("expected #000000, got %s", art.AccentColor)
	}
	if !isWebP(art.Bytes) {
		t.Error("expected WebP payload")
	}
}

func TestNewTransformer_DefaultQuality(t *testing.T) {
	if q := NewTransformer(-1).Quality(); q != DefaultQuality {
		t.Errorf("expected default quality %d, got %d", DefaultQuality, q)
	}
	if q := NewTransformer(60).Quality(); q != 60 {
		t.Errorf("expected quality 60, got %d", q)
	}
}
