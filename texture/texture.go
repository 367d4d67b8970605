// Package texture turns retrieved tile images into textures.
package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"time"

	"github.com/pdok/tilepyramid/geo"
	"github.com/pdok/tilepyramid/mathhelp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

var ErrDecode = errors.New("could not decode tile image")

// Texture is a decoded tile image.
type Texture struct {
	Image  image.Image
	Width  int
	Height int
	// Size is the memory cost in bytes, used for cache accounting
	Size         int
	CreationTime time.Time
}

// Factory creates textures from encoded images.
type Factory interface {
	CreateTexture(data []byte, sector geo.Sector) (*Texture, error)
}

// ImageFactory decodes PNG, JPEG, GIF, TIFF and WebP images. With Mercator set, images are
// expected in web mercator and resampled so that rows are linear in latitude.
type ImageFactory struct {
	Mercator bool
	Now      func() time.Time
}

func (f ImageFactory) CreateTexture(data []byte, sector geo.Sector) (*Texture, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if f.Mercator {
		img = Unproject(img, sector)
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	b := img.Bounds()
	return &Texture{
		Image:        img,
		Width:        b.Dx(),
		Height:       b.Dy(),
		Size:         b.Dx() * b.Dy() * 4,
		CreationTime: now(),
	}, nil
}

// Unproject resamples a web mercator image covering sector so that its rows are linear in latitude.
func Unproject(src image.Image, sector geo.Sector) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	height := b.Dy()
	if height == 0 {
		return dst
	}

	minLat := max(sector.MinLatitude, -geo.MaxMercatorLatitude)
	maxLat := min(sector.MaxLatitude, geo.MaxMercatorLatitude)
	top := geo.GudermannianInverse(maxLat)
	span := top - geo.GudermannianInverse(minLat)
	for y := 0; y < height; y++ {
		lat := maxLat - (float64(y)+0.5)/float64(height)*(maxLat-minLat)
		srcRow := y
		if span > 0 {
			srcRow = int((top - geo.GudermannianInverse(lat)) / span * float64(height))
			srcRow = mathhelp.Clamp(srcRow, 0, height-1)
		}
		draw.Draw(dst, image.Rect(0, y, b.Dx(), y+1), src, image.Pt(b.Min.X, b.Min.Y+srcRow), draw.Src)
	}
	return dst
}
