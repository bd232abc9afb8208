package detector

import (
	"fmt"

	"github.com/andresmejia3/facerank/internal/inference"
)

// UltraFace input resolution (RFB-640 variant).
const (
	InputWidth  = 640
	InputHeight = 480
)

// UltraFace runs the ultra-light face detector and decodes its output.
type UltraFace struct {
	runner  inference.Runner
	decoder *Decoder
}

// NewUltraFace wraps a loaded detector model.
func NewUltraFace(runner inference.Runner, decoder *Decoder) *UltraFace {
	return &UltraFace{runner: runner, decoder: decoder}
}

// InputSize returns the detector's fixed input width and height.
func (u *UltraFace) InputSize() (int, int) {
	return InputWidth, InputHeight
}

// Detect runs the model on a preprocessed 1x3xHxW tensor.
func (u *UltraFace) Detect(input inference.Tensor) (DetectionSet, error) {
	outputs, err := u.runner.Run(input)
	if err != nil {
		return nil, err
	}

	scoreTensor, boxTensor, err := splitOutputs(outputs)
	if err != nil {
		return nil, err
	}

	scores, err := ForegroundScores(scoreTensor)
	if err != nil {
		return nil, err
	}
	boxes, err := FlatBoxes(boxTensor)
	if err != nil {
		return nil, err
	}

	return u.decoder.Decode(scores, boxes)
}

// splitOutputs picks the score and box tensors by their trailing dimension,
// so exports that list "boxes" before "scores" work too.
func splitOutputs(outputs []inference.Tensor) (scores, boxes inference.Tensor, err error) {
	if len(outputs) != 2 {
		return scores, boxes, fmt.Errorf("%w: expected 2 outputs, got %d", ErrMalformedOutput, len(outputs))
	}

	var haveScores, haveBoxes bool
	for _, t := range outputs {
		if len(t.Shape) == 0 {
			continue
		}
		switch t.Shape[len(t.Shape)-1] {
		case 2:
			scores, haveScores = t, true
		case 4:
			boxes, haveBoxes = t, true
		}
	}
	if !haveScores || !haveBoxes {
		return scores, boxes, fmt.Errorf("%w: could not identify score and box outputs", ErrMalformedOutput)
	}
	return scores, boxes, nil
}
