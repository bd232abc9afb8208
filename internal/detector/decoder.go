// Package detector turns raw face-detector output into a set of
// non-overlapping detections.
package detector

import (
	"errors"
	"fmt"
	"sort"

	"github.com/andresmejia3/facerank/internal/geometry"
)

// ErrMalformedOutput is returned when detector tensors do not have the
// expected shape or do not line up with each other.
var ErrMalformedOutput = errors.New("malformed detector output")

// Detection is a box in the detector frame plus its confidence.
type Detection struct {
	Box        geometry.BBox
	Confidence float32
}

// DetectionSet is the NMS output, most confident first.
type DetectionSet []Detection

// Config holds the decoder thresholds.
type Config struct {
	// ConfThreshold drops candidates whose confidence is <= this value.
	ConfThreshold float32
	// MaxIoU drops a candidate overlapping an accepted box by more than this.
	MaxIoU float32
}

// DefaultConfig returns the thresholds the UltraFace models are tuned for.
func DefaultConfig() Config {
	return Config{ConfThreshold: 0.5, MaxIoU: 0.5}
}

// Decoder filters and suppresses candidate boxes.
type Decoder struct {
	cfg Config
}

// NewDecoder creates a decoder with the given thresholds.
func NewDecoder(cfg Config) (*Decoder, error) {
	if cfg.ConfThreshold < 0 || cfg.ConfThreshold > 1 {
		return nil, fmt.Errorf("confidence threshold must be between 0.0 and 1.0, got %f", cfg.ConfThreshold)
	}
	if cfg.MaxIoU < 0 || cfg.MaxIoU > 1 {
		return nil, fmt.Errorf("max IoU must be between 0.0 and 1.0, got %f", cfg.MaxIoU)
	}
	return &Decoder{cfg: cfg}, nil
}

// Config returns the decoder thresholds.
func (d *Decoder) Config() Config {
	return d.cfg
}

// Decode pairs scores[i] with boxes[4i:4i+4], drops low-confidence pairs and
// runs non-maximum suppression. No surviving candidate is not an error.
func (d *Decoder) Decode(scores, boxes []float32) (DetectionSet, error) {
	if len(boxes) != 4*len(scores) {
		return nil, fmt.Errorf("%w: %d scores but %d box values", ErrMalformedOutput, len(scores), len(boxes))
	}

	candidates := make([]Detection, 0, len(scores))
	for i, score := range scores {
		// Written as a negation so NaN scores are dropped too.
		if !(score > d.cfg.ConfThreshold) {
			continue
		}
		b := boxes[i*4 : i*4+4]
		candidates = append(candidates, Detection{
			Box:        geometry.BBox{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]},
			Confidence: score,
		})
	}

	// Ascending, so the most confident candidate is popped from the back.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence < candidates[j].Confidence
	})

	return nonMaxSuppression(candidates, d.cfg.MaxIoU), nil
}

// nonMaxSuppression consumes candidates sorted ascending by confidence and
// returns the accepted ones in acceptance order.
func nonMaxSuppression(sorted []Detection, maxIoU float32) DetectionSet {
	selected := make(DetectionSet, 0, len(sorted))

candidates:
	for len(sorted) > 0 {
		candidate := sorted[len(sorted)-1]
		sorted = sorted[:len(sorted)-1]

		for _, s := range selected {
			if geometry.IoU(candidate.Box, s.Box) > maxIoU {
				continue candidates
			}
		}
		selected = append(selected, candidate)
	}

	return selected
}
