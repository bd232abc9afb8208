// Package preprocess converts decoded images into model input tensors and
// writes annotated output images.
package preprocess

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/andresmejia3/facerank/internal/inference"
)

// Normalization is a per-channel (x/255 - mean) / std transform, RGB order.
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// DetectorNormalization is the ImageNet statistics the detector was trained with.
var DetectorNormalization = Normalization{
	Mean: [3]float32{0.485, 0.456, 0.406},
	Std:  [3]float32{0.229, 0.224, 0.225},
}

// EmbedderNormalization maps pixel values into [-1, 1].
var EmbedderNormalization = Normalization{
	Mean: [3]float32{0.5, 0.5, 0.5},
	Std:  [3]float32{0.5, 0.5, 0.5},
}

// Load opens and decodes an image, applying EXIF orientation.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Fit resizes img to fill width x height, cropping the overflow around the centre.
func Fit(img image.Image, width, height int) *image.NRGBA {
	return imaging.Fill(img, width, height, imaging.Center, imaging.Linear)
}

// ToTensor lays img out as a 1x3xHxW channel-first tensor.
func ToTensor(img *image.NRGBA, norm Normalization) inference.Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < 3; c++ {
				data[c*plane+y*w+x] = (float32(px[c])/255 - norm.Mean[c]) / norm.Std[c]
			}
		}
	}

	return inference.Tensor{
		Shape: []int64{1, 3, int64(h), int64(w)},
		Data:  data,
	}
}

// DetectorInput returns the detector-resolution image (kept for annotation)
// and its normalised tensor.
func DetectorInput(img image.Image, width, height int) (*image.NRGBA, inference.Tensor) {
	fitted := Fit(img, width, height)
	return fitted, ToTensor(fitted, DetectorNormalization)
}

// EmbedderInput resizes a face crop to size x size and normalises it.
func EmbedderInput(face image.Image, size int) inference.Tensor {
	return ToTensor(Fit(face, size, size), EmbedderNormalization)
}
