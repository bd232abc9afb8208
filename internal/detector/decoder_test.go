package detector

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/andresmejia3/facerank/internal/geometry"
)

func mustDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder(DefaultConfig())
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	return d
}

func TestDecode_SuppressesOverlap(t *testing.T) {
	d := mustDecoder(t)

	scores := []float32{0.6, 0.9}
	boxes := []float32{
		0.05, 0.05, 0.55, 0.55, // B
		0, 0, 0.5, 0.5, // A
	}

	got, err := d.Decode(scores, boxes)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(got))
	}
	want := geometry.BBox{X1: 0, Y1: 0, X2: 0.5, Y2: 0.5}
	if got[0].Box != want || got[0].Confidence != 0.9 {
		t.Errorf("kept %+v, want box A with confidence 0.9", got[0])
	}
}

func TestDecode_Threshold(t *testing.T) {
	d := mustDecoder(t)

	// 0.5 itself is not above the threshold.
	scores := []float32{0.5, 0.49, 0.51}
	boxes := []float32{
		0, 0, 0.1, 0.1,
		0.2, 0.2, 0.3, 0.3,
		0.4, 0.4, 0.5, 0.5,
	}

	got, err := d.Decode(scores, boxes)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 1 || got[0].Confidence != 0.51 {
		t.Errorf("expected only the 0.51 candidate, got %+v", got)
	}
}

func TestDecode_DropsNaNScores(t *testing.T) {
	d := mustDecoder(t)

	nan := float32(math.NaN())
	scores := []float32{nan, 0.8, nan}
	boxes := []float32{
		0, 0, 0.1, 0.1,
		0.4, 0.4, 0.5, 0.5,
		0.7, 0.7, 0.9, 0.9,
	}

	got, err := d.Decode(scores, boxes)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 1 || got[0].Confidence != 0.8 {
		t.Errorf("expected only the 0.8 candidate, got %+v", got)
	}
}

func TestDecode_Empty(t *testing.T) {
	d := mustDecoder(t)

	got, err := d.Decode([]float32{0.1, 0.2}, make([]float32, 8))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty set, got %d detections", len(got))
	}

	got, err = d.Decode(nil, nil)
	if err != nil || len(got) != 0 {
		t.Errorf("Decode(nil, nil) = %v, %v", got, err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	d := mustDecoder(t)

	_, err := d.Decode([]float32{0.9, 0.8}, []float32{0, 0, 1, 1})
	if !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("expected ErrMalformedOutput, got %v", err)
	}
}

func TestDecode_OrderAndDisjoint(t *testing.T) {
	d := mustDecoder(t)

	scores := []float32{0.7, 0.95, 0.8}
	boxes := []float32{
		0.0, 0.0, 0.2, 0.2,
		0.4, 0.4, 0.6, 0.6,
		0.7, 0.7, 0.9, 0.9,
	}

	got, err := d.Decode(scores, boxes)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []float32{0.95, 0.8, 0.7}
	if len(got) != len(want) {
		t.Fatalf("expected %d detections, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Confidence != w {
			t.Errorf("detection %d confidence = %v, want %v", i, got[i].Confidence, w)
		}
	}
}

func TestDecode_TiesKeepInputOrder(t *testing.T) {
	d := mustDecoder(t)

	scores := []float32{0.8, 0.8}
	boxes := []float32{
		0.0, 0.0, 0.2, 0.2,
		0.5, 0.5, 0.7, 0.7,
	}

	got, err := d.Decode(scores, boxes)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(got))
	}
	// Stable ascending sort keeps input order; popping from the back
	// therefore accepts the later candidate first.
	if got[0].Box.X1 != 0.5 || got[1].Box.X1 != 0.0 {
		t.Errorf("unexpected tie order: %+v", got)
	}
}

func TestDecode_CustomThresholds(t *testing.T) {
	d, err := NewDecoder(Config{ConfThreshold: 0.3, MaxIoU: 0.9})
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}

	scores := []float32{0.4, 0.9}
	boxes := []float32{
		0.05, 0.05, 0.55, 0.55,
		0, 0, 0.5, 0.5,
	}
	got, err := d.Decode(scores, boxes)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	// IoU ~0.68 is below 0.9, so both survive.
	if len(got) != 2 {
		t.Errorf("expected 2 detections with relaxed thresholds, got %d", len(got))
	}
}

func TestNewDecoder_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative confidence", Config{ConfThreshold: -0.1, MaxIoU: 0.5}},
		{"confidence above one", Config{ConfThreshold: 1.1, MaxIoU: 0.5}},
		{"iou above one", Config{ConfThreshold: 0.5, MaxIoU: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDecoder(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// TestDecode_Properties checks NMS invariants on random candidates.
func TestDecode_Properties(t *testing.T) {
	d := mustDecoder(t)
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		n := rng.Intn(200)
		scores := make([]float32, n)
		boxes := make([]float32, 0, n*4)
		for i := 0; i < n; i++ {
			scores[i] = rng.Float32()
			x, y := rng.Float32()*0.8, rng.Float32()*0.8
			w, h := rng.Float32()*0.2, rng.Float32()*0.2
			boxes = append(boxes, x, y, x+w, y+h)
		}

		got, err := d.Decode(scores, boxes)
		if err != nil {
			t.Fatalf("round %d: Decode failed: %v", round, err)
		}

		for i, det := range got {
			if det.Confidence <= 0.5 {
				t.Fatalf("round %d: detection %d below threshold: %v", round, i, det.Confidence)
			}
			if !containsCandidate(scores, boxes, det) {
				t.Fatalf("round %d: detection %d not in input", round, i)
			}
			if i > 0 && got[i-1].Confidence < det.Confidence {
				t.Fatalf("round %d: output not descending at %d", round, i)
			}
			for j := 0; j < i; j++ {
				if iou := geometry.IoU(got[j].Box, det.Box); iou > 0.5 {
					t.Fatalf("round %d: detections %d and %d overlap with IoU %v", round, j, i, iou)
				}
			}
		}
	}
}

func containsCandidate(scores, boxes []float32, det Detection) bool {
	for i, s := range scores {
		b := boxes[i*4 : i*4+4]
		if s == det.Confidence && det.Box == (geometry.BBox{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]}) {
			return true
		}
	}
	return false
}
