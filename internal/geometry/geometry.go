// Package geometry holds the box types shared by the detector decoder and
// the coordinate mapper.
//
// Two reference frames exist and each has its own type:
//   - BBox is normalised to the detector's fixed input resolution, every
//     coordinate nominally in [0,1].
//   - Crop is in pixels of some concrete image.
//
// The only way from a BBox to a Crop is letterbox.Mapper.Map, so a box
// cannot be rescaled twice without it showing up in the types.
package geometry

import "fmt"

// Epsilon is added to the IoU denominator so two zero-area boxes yield 0, not NaN.
const Epsilon float32 = 1.0e-7

// BBox is a box normalised to the detector frame.
type BBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// BBoxFromSlice builds a BBox from a 4-element [x1, y1, x2, y2] slice.
func BBoxFromSlice(v []float32) (BBox, error) {
	if len(v) != 4 {
		return BBox{}, fmt.Errorf("bounding box needs 4 values, got %d", len(v))
	}
	return BBox{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

// Width returns X2 - X1, which may be negative for an inverted box.
func (b BBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns Y2 - Y1, which may be negative for an inverted box.
func (b BBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Degenerate reports whether the box encloses no area.
func (b BBox) Degenerate() bool {
	return Area(b) == 0
}

// Area returns the enclosed area. If the bottom-right corner lies above or
// to the left of the top-left corner the area is exactly 0.
func Area(b BBox) float32 {
	height := b.Y2 - b.Y1
	width := b.X2 - b.X1
	if height < 0 || width < 0 {
		return 0
	}
	return height * width
}

// IoU returns the intersection-over-union of two boxes.
func IoU(a, b BBox) float32 {
	// For disjoint boxes the overlap corners are inverted and Area yields 0.
	overlap := BBox{
		X1: max(a.X1, b.X1),
		Y1: max(a.Y1, b.Y1),
		X2: min(a.X2, b.X2),
		Y2: min(a.Y2, b.Y2),
	}
	overlapArea := Area(overlap)

	return overlapArea / (Area(a) + Area(b) - overlapArea + Epsilon)
}

// Crop is a pixel rectangle on a concrete image. Width and Height are
// truncated to whole pixels and may be non-positive.
type Crop struct {
	X, Y          int
	Width, Height int
}

// Usable reports whether the crop covers at least one pixel.
func (c Crop) Usable() bool {
	return c.Width > 0 && c.Height > 0
}

// String renders the crop as WxH+X+Y.
func (c Crop) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", c.Width, c.Height, c.X, c.Y)
}
