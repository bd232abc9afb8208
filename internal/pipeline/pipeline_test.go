package pipeline

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/andresmejia3/facerank/internal/detector"
	"github.com/andresmejia3/facerank/internal/embedding"
	"github.com/andresmejia3/facerank/internal/geometry"
	"github.com/andresmejia3/facerank/internal/inference"
	"github.com/andresmejia3/facerank/internal/types"
)

type fakeDetector struct {
	detections detector.DetectionSet
	err        error
	mu         sync.Mutex
	inputs     []inference.Tensor
}

func (f *fakeDetector) InputSize() (int, int) { return 640, 480 }

func (f *fakeDetector) Detect(input inference.Tensor) (detector.DetectionSet, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	return f.detections, f.err
}

type fakeEncoder struct {
	calls int
	fail  map[int]error // call number -> error
	mu    sync.Mutex
}

func (f *fakeEncoder) Extract(input inference.Tensor) (embedding.Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[f.calls]; err != nil {
		return nil, err
	}
	return embedding.Normalize([]float32{float32(f.calls), 1})
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func twoFaces() detector.DetectionSet {
	return detector.DetectionSet{
		{Box: geometry.BBox{X1: 0.1, Y1: 0.1, X2: 0.3, Y2: 0.3}, Confidence: 0.9},
		{Box: geometry.BBox{X1: 0.4, Y1: 0.4, X2: 0.9, Y2: 0.9}, Confidence: 0.8},
	}
}

func TestProcess_WritesAnnotatedJPEG(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := writePNG(t, in, "frame.png", 320, 240)

	det := &fakeDetector{detections: twoFaces()}
	p, err := New(Config{OutputDir: out}, det, &fakeEncoder{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := p.Process(types.ImageTask{Index: 3, Path: path})
	if res.Err != nil {
		t.Fatalf("Process: %v", res.Err)
	}
	if res.Index != 3 || res.Path != path {
		t.Errorf("result identity = %d %s", res.Index, res.Path)
	}
	if len(res.Faces) != 2 || len(res.Embeddings()) != 2 {
		t.Fatalf("Expected 2 embedded faces, got %d faces", len(res.Faces))
	}

	// 320x240 has the detector's aspect ratio, so crops scale directly.
	want := geometry.Crop{X: 32, Y: 24, Width: 64, Height: 48}
	if res.Faces[0].Crop != want {
		t.Errorf("crop = %v, want %v", res.Faces[0].Crop, want)
	}

	if len(det.inputs) != 1 || det.inputs[0].Size() != 3*640*480 {
		t.Fatalf("detector input not 1x3x480x640")
	}

	if res.Annotated != filepath.Join(out, "frame.png") {
		t.Errorf("annotated path = %q", res.Annotated)
	}
	f, err := os.Open(res.Annotated)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil || format != "jpeg" || cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("annotated = %s %dx%d (err %v), want 640x480 jpeg", format, cfg.Width, cfg.Height, err)
	}
}

func TestProcess_NoOutputDir(t *testing.T) {
	path := writePNG(t, t.TempDir(), "a.png", 64, 48)
	p, _ := New(Config{}, &fakeDetector{}, &fakeEncoder{})

	res := p.Process(types.ImageTask{Path: path})
	if res.Err != nil || res.Annotated != "" || len(res.Faces) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestProcess_DecodeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	os.WriteFile(path, []byte("not an image"), 0644)

	p, _ := New(Config{}, &fakeDetector{}, &fakeEncoder{})
	if res := p.Process(types.ImageTask{Path: path}); res.Err == nil {
		t.Error("Expected decode error")
	}
}

func TestProcess_DetectorError(t *testing.T) {
	path := writePNG(t, t.TempDir(), "a.png", 64, 48)
	p, _ := New(Config{}, &fakeDetector{err: detector.ErrMalformedOutput}, &fakeEncoder{})

	res := p.Process(types.ImageTask{Path: path})
	if !errors.Is(res.Err, detector.ErrMalformedOutput) {
		t.Errorf("err = %v, want ErrMalformedOutput", res.Err)
	}
}

func TestProcessImage_DegenerateFaceSkipped(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 640, 480))
	enc := &fakeEncoder{fail: map[int]error{1: embedding.ErrDegenerateEmbedding}}
	p, _ := New(Config{}, &fakeDetector{detections: twoFaces()}, enc)

	faces, _, err := p.ProcessImage(img)
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("Expected both detections reported, got %d", len(faces))
	}
	if faces[0].Vec != nil || faces[1].Vec == nil {
		t.Errorf("Expected only the second face embedded")
	}
}

func TestProcessImage_EncoderErrorFails(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 640, 480))
	boom := errors.New("engine down")
	p, _ := New(Config{}, &fakeDetector{detections: twoFaces()}, &fakeEncoder{fail: map[int]error{1: boom}})

	if _, _, err := p.ProcessImage(img); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped engine error", err)
	}
}

func TestProcessImage_UnusableCropSkipped(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 640, 480))
	det := &fakeDetector{detections: detector.DetectionSet{
		{Box: geometry.BBox{X1: 0.5, Y1: 0.5, X2: 0.5, Y2: 0.9}, Confidence: 0.9},
	}}
	enc := &fakeEncoder{}
	p, _ := New(Config{}, det, enc)

	faces, _, err := p.ProcessImage(img)
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if len(faces) != 1 || faces[0].Vec != nil || enc.calls != 0 {
		t.Errorf("Expected zero-width face to be reported but not embedded")
	}
}

func TestReferenceEmbedding_PicksLargestFace(t *testing.T) {
	path := writePNG(t, t.TempDir(), "ref.png", 640, 480)
	p, _ := New(Config{}, &fakeDetector{detections: twoFaces()}, &fakeEncoder{})

	got, err := p.ReferenceEmbedding(path)
	if err != nil {
		t.Fatalf("ReferenceEmbedding: %v", err)
	}
	// The second detection is larger and is the encoder's second call.
	want, _ := embedding.Normalize([]float32{2, 1})
	if embedding.Distance(got, want) > 1e-6 {
		t.Errorf("reference = %v, want %v", got, want)
	}
}

func TestReferenceEmbedding_NoFace(t *testing.T) {
	path := writePNG(t, t.TempDir(), "ref.png", 64, 48)
	p, _ := New(Config{}, &fakeDetector{}, &fakeEncoder{})

	if _, err := p.ReferenceEmbedding(path); !errors.Is(err, ErrNoFace) {
		t.Errorf("err = %v, want ErrNoFace", err)
	}
}

func TestLargest(t *testing.T) {
	v1, _ := embedding.Normalize([]float32{1, 0})
	v2, _ := embedding.Normalize([]float32{0, 1})

	tests := []struct {
		name  string
		faces []types.FaceResult
		want  embedding.Vector
		err   error
	}{
		{"empty", nil, nil, ErrNoFace},
		{"only unembedded", []types.FaceResult{{Box: geometry.BBox{X2: 1, Y2: 1}}}, nil, ErrNoFace},
		{"larger wins", []types.FaceResult{
			{Box: geometry.BBox{X2: 0.1, Y2: 0.1}, Vec: v1},
			{Box: geometry.BBox{X2: 0.5, Y2: 0.5}, Vec: v2},
		}, v2, nil},
		{"tie keeps first", []types.FaceResult{
			{Box: geometry.BBox{X2: 0.25, Y2: 0.25}, Vec: v1},
			{Box: geometry.BBox{X1: 0.5, Y1: 0.5, X2: 0.75, Y2: 0.75}, Vec: v2},
		}, v1, nil},
		{"unembedded larger ignored", []types.FaceResult{
			{Box: geometry.BBox{X2: 0.1, Y2: 0.1}, Vec: v1},
			{Box: geometry.BBox{X2: 0.9, Y2: 0.9}},
		}, v1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Largest(tt.faces)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if tt.want != nil && embedding.Distance(got, tt.want) != 0 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
