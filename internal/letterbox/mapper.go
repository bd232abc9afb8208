// Package letterbox maps boxes found on the detector's fixed-ratio input
// back onto the pixels of the image the input was made from.
//
// The detector input is produced by resizing the source to fill the
// detector frame, centred. Whichever axis of the source is relatively
// longer therefore carries a symmetric margin that the box fractions do
// not cover.
package letterbox

import (
	"fmt"

	"github.com/andresmejia3/facerank/internal/geometry"
)

// Mapper reprojects detector-frame boxes for a fixed detector aspect ratio.
type Mapper struct {
	targetRatio float64
}

// New returns a mapper for a detector input of inputWidth x inputHeight.
func New(inputWidth, inputHeight int) (Mapper, error) {
	if inputWidth <= 0 || inputHeight <= 0 {
		return Mapper{}, fmt.Errorf("invalid detector input size %dx%d", inputWidth, inputHeight)
	}
	return Mapper{targetRatio: float64(inputWidth) / float64(inputHeight)}, nil
}

// TargetRatio returns the detector's width/height ratio.
func (m Mapper) TargetRatio() float64 {
	return m.targetRatio
}

// Map converts box, normalised to the detector frame, into a pixel crop on
// an image of width x height. The result may be unusable (see
// geometry.Crop.Usable); that is not an error.
func (m Mapper) Map(box geometry.BBox, width, height int) geometry.Crop {
	w, h := float64(width), float64(height)
	x1, y1 := float64(box.X1), float64(box.Y1)
	x2, y2 := float64(box.X2), float64(box.Y2)

	sourceRatio := w / h

	var xTL, yTL, xBR, yBR float64
	switch {
	case sourceRatio > m.targetRatio:
		// Source is relatively wider: horizontal margin.
		scaledWidth := m.targetRatio * h
		offset := (w - scaledWidth) / 2
		xTL, xBR = x1*scaledWidth+offset, x2*scaledWidth+offset
		yTL, yBR = y1*h, y2*h
	case sourceRatio < m.targetRatio:
		// Source is relatively taller: vertical margin.
		scaledHeight := w / m.targetRatio
		offset := (h - scaledHeight) / 2
		xTL, xBR = x1*w, x2*w
		yTL, yBR = y1*scaledHeight+offset, y2*scaledHeight+offset
	default:
		xTL, xBR = x1*w, x2*w
		yTL, yBR = y1*h, y2*h
	}

	return geometry.Crop{
		X:      int(xTL),
		Y:      int(yTL),
		Width:  int(xBR - xTL),
		Height: int(yBR - yTL),
	}
}
