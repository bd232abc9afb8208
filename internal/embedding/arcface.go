package embedding

import (
	"fmt"

	"github.com/andresmejia3/facerank/internal/inference"
)

// ArcFace input resolution.
const InputSize = 112

// ArcFace extracts embeddings from aligned face crops.
type ArcFace struct {
	runner inference.Runner
}

// NewArcFace wraps a loaded embedding model.
func NewArcFace(runner inference.Runner) *ArcFace {
	return &ArcFace{runner: runner}
}

// Extract runs the model on a preprocessed 1x3x112x112 tensor and returns
// the normalised embedding.
func (a *ArcFace) Extract(input inference.Tensor) (Vector, error) {
	outputs, err := a.runner.Run(input)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 || len(outputs[0].Data) == 0 {
		return nil, fmt.Errorf("%w: embedding model returned no data", inference.ErrUnexpectedOutput)
	}
	return Normalize(outputs[0].Data)
}
