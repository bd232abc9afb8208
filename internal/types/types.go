package types

import (
	"github.com/andresmejia3/facerank/internal/embedding"
	"github.com/andresmejia3/facerank/internal/geometry"
)

// ImageTask represents a single image sent to a worker for processing
type ImageTask struct {
	Index int
	Path  string
}

// FaceResult is one detected face: its detector-frame box, the pixel crop it
// maps to, and its embedding (nil when the crop was unusable).
type FaceResult struct {
	Box        geometry.BBox
	Confidence float32
	Crop       geometry.Crop
	Vec        embedding.Vector
}

// ImageResult is a worker's output for one ImageTask
type ImageResult struct {
	Index     int
	Path      string
	Faces     []FaceResult
	Annotated string // path of the written JPEG, empty if none
	Err       error
}

// Embeddings returns the vectors of every embedded face.
func (r ImageResult) Embeddings() []embedding.Vector {
	var out []embedding.Vector
	for _, f := range r.Faces {
		if f.Vec != nil {
			out = append(out, f.Vec)
		}
	}
	return out
}
