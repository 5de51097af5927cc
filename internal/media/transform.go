// Package media derives encoded wallpaper variants and their accent color
// from raw source images.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for provider images
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
	_ "golang.org/x/image/webp"
)

// DefaultQuality is the lossy WebP quality used for every variant.
const DefaultQuality = 80

// ContentType of every encoded artifact
const ContentType = "image/webp"

// ErrTransform marks a variant that could not be decoded or encoded.
var ErrTransform = errors.New("transform failure")

// Role names an encoded output
type Role string

const (
	RoleDesktop   Role = "desktop"
	RoleMobile    Role = "mobile"
	RoleThumbnail Role = "thumbnail"
)

// Variant describes how one artifact is derived from its source image.
// A MaxWidth of zero keeps the source resolution.
type Variant struct {
	Role     Role
	MaxWidth int
}

// Encoded is the output of a single transform
type Encoded struct {
	Bytes  []byte
	Width  int
	Height int
}

// Artifact is one encoded output of a cycle plus its accent color
type Artifact struct {
	Role        Role
	Bytes       []byte
	Width       int
	Height      int
	AccentColor string
	SnapshotID  string
}

// Transformer encodes variants at a fixed quality
type Transformer struct {
	quality int
}

// NewTransformer creates a transformer. A non-positive quality selects DefaultQuality.
func NewTransformer(quality int) *Transformer {
	if quality <= 0 {
		quality = DefaultQuality
	}
	return &Transformer{quality: quality}
}

// Quality returns the WebP quality used by the transformer
func (t *Transformer) Quality() int {
	return t.quality
}

// Transform decodes raw, resizes it to the variant's bounds preserving the
// aspect ratio and re-encodes it as lossy WebP.
func (t *Transformer) Transform(raw []byte, v Variant) (*Encoded, error) {
	img, err := decode(raw, v.Role)
	if err != nil {
		return nil, err
	}
	return t.encode(img, v)
}

// Derive transforms raw into the variant and computes its accent color from
// the full-resolution source image.
func (t *Transformer) Derive(raw []byte, v Variant, snapshotID string) (*Artifact, error) {
	img, err := decode(raw, v.Role)
	if err != nil {
		return nil, err
	}

	enc, err := t.encode(img, v)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Role:        v.Role,
		Bytes:       enc.Bytes,
		Width:       enc.Width,
		Height:      enc.Height,
		AccentColor: AccentColor(img),
		SnapshotID:  snapshotID,
	}, nil
}

func decode(raw []byte, role Role) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s source: %w", ErrTransform, role, err)
	}
	return img, nil
}

func (t *Transformer) encode(img image.Image, v Variant) (*Encoded, error) {
	if v.MaxWidth > 0 && img.Bounds().Dx() > v.MaxWidth {
		// height 0 lets imaging derive it from the aspect ratio
		img = imaging.Resize(img, v.MaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{Quality: t.quality}); err != nil {
		return nil, fmt.Errorf("%w: encode %s: %w", ErrTransform, v.Role, err)
	}

	b := img.Bounds()
	return &Encoded{
		Bytes:  buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}
