package pipeline

import (
	"github.com/andresmejia3/facerank/internal/detector"
	"github.com/andresmejia3/facerank/internal/embedding"
	"github.com/andresmejia3/facerank/internal/inference"
)

// FaceDetector interface for face detection
type FaceDetector interface {
	Detect(input inference.Tensor) (detector.DetectionSet, error)
	InputSize() (width, height int)
}

// FaceEncoder interface for face embedding extraction
type FaceEncoder interface {
	Extract(input inference.Tensor) (embedding.Vector, error)
}
