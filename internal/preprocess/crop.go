package preprocess

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/andresmejia3/facerank/internal/geometry"
)

// CropFace cuts c out of img. Parts of c outside the image are dropped; the
// second result is false when nothing usable is left.
func CropFace(img image.Image, c geometry.Crop) (*image.NRGBA, bool) {
	if !c.Usable() {
		return nil, false
	}

	b := img.Bounds()
	rect := image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height).Add(b.Min).Intersect(b)
	if rect.Empty() {
		return nil, false
	}
	return imaging.Crop(img, rect), true
}
