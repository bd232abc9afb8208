package detector

import (
	"fmt"

	"github.com/andresmejia3/facerank/internal/inference"
)

// ForegroundScores extracts the face-class probability (index 1 of the
// trailing 2-class axis) from a [1, N, 2] score tensor.
func ForegroundScores(t inference.Tensor) ([]float32, error) {
	if len(t.Shape) != 3 || t.Shape[0] != 1 || t.Shape[2] != 2 {
		return nil, fmt.Errorf("%w: score tensor shape %v, want [1 N 2]", ErrMalformedOutput, t.Shape)
	}
	if int64(len(t.Data)) != t.Size() {
		return nil, fmt.Errorf("%w: score tensor has %d values for shape %v", ErrMalformedOutput, len(t.Data), t.Shape)
	}

	n := int(t.Shape[1])
	scores := make([]float32, n)
	for i := 0; i < n; i++ {
		scores[i] = t.Data[i*2+1]
	}
	return scores, nil
}

// FlatBoxes validates a [1, N, 4] box tensor and returns its values flattened.
func FlatBoxes(t inference.Tensor) ([]float32, error) {
	if len(t.Shape) != 3 || t.Shape[0] != 1 || t.Shape[2] != 4 {
		return nil, fmt.Errorf("%w: box tensor shape %v, want [1 N 4]", ErrMalformedOutput, t.Shape)
	}
	if int64(len(t.Data)) != t.Size() {
		return nil, fmt.Errorf("%w: box tensor has %d values for shape %v", ErrMalformedOutput, len(t.Data), t.Shape)
	}
	return t.Data, nil
}
