package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/andresmejia3/facerank/internal/geometry"
)

// BoxColor is the outline colour for detected faces.
var BoxColor = color.NRGBA{R: 0, G: 255, B: 0, A: 255}

// DrawRects draws one-pixel hollow rectangles onto img in place.
func DrawRects(img *image.NRGBA, rects []geometry.Crop, c color.NRGBA) {
	for _, r := range rects {
		if !r.Usable() {
			continue
		}
		x1, y1 := r.X, r.Y
		x2, y2 := r.X+r.Width-1, r.Y+r.Height-1
		for x := x1; x <= x2; x++ {
			img.SetNRGBA(x, y1, c)
			img.SetNRGBA(x, y2, c)
		}
		for y := y1; y <= y2; y++ {
			img.SetNRGBA(x1, y, c)
			img.SetNRGBA(x2, y, c)
		}
	}
}

// SaveJPEG writes img as JPEG to dir under name, whatever name's extension.
func SaveJPEG(img image.Image, dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("failed to encode output image: %w", err)
	}
	return path, f.Close()
}
