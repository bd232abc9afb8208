package pipeline

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/andresmejia3/facerank/internal/embedding"
	"github.com/andresmejia3/facerank/internal/geometry"
	"github.com/andresmejia3/facerank/internal/letterbox"
	"github.com/andresmejia3/facerank/internal/preprocess"
	"github.com/andresmejia3/facerank/internal/types"
	"github.com/andresmejia3/facerank/internal/utils"
)

// ErrNoFace is returned when an image that must contain a face has none.
var ErrNoFace = errors.New("no face detected")

// Config holds pipeline configuration
type Config struct {
	// OutputDir receives annotated JPEGs. Empty disables annotation.
	OutputDir string
}

// Pipeline runs detection, crop mapping and embedding for single images.
// It is safe for concurrent use when its detector and encoder are.
type Pipeline struct {
	config   Config
	detector FaceDetector
	encoder  FaceEncoder
	mapper   letterbox.Mapper
}

// New creates a pipeline around an already constructed detector and encoder.
func New(config Config, det FaceDetector, enc FaceEncoder) (*Pipeline, error) {
	w, h := det.InputSize()
	mapper, err := letterbox.New(w, h)
	if err != nil {
		return nil, fmt.Errorf("invalid detector input size: %w", err)
	}
	return &Pipeline{
		config:   config,
		detector: det,
		encoder:  enc,
		mapper:   mapper,
	}, nil
}

// Process loads the task's image and runs it through the pipeline.
// Failures are reported on the result, never returned.
func (p *Pipeline) Process(task types.ImageTask) types.ImageResult {
	res := types.ImageResult{Index: task.Index, Path: task.Path}
	start := time.Now()

	img, err := preprocess.Load(task.Path)
	if err != nil {
		res.Err = err
		return res
	}

	faces, annotated, err := p.ProcessImage(img)
	if err != nil {
		res.Err = err
		return res
	}
	res.Faces = faces

	if p.config.OutputDir != "" {
		out, err := preprocess.SaveJPEG(annotated, p.config.OutputDir, filepath.Base(task.Path))
		if err != nil {
			res.Err = err
			return res
		}
		res.Annotated = out
	}

	utils.Log.WithFields(logrus.Fields{
		"path":    task.Path,
		"faces":   len(faces),
		"elapsed": time.Since(start),
	}).Debug("image processed")
	return res
}

// ProcessImage detects and embeds every face in img. The returned image is
// the detector-resolution copy with detections outlined.
func (p *Pipeline) ProcessImage(img image.Image) ([]types.FaceResult, *image.NRGBA, error) {
	w, h := p.detector.InputSize()
	fitted, input := preprocess.DetectorInput(img, w, h)

	detections, err := p.detector.Detect(input)
	if err != nil {
		return nil, nil, fmt.Errorf("detection failed: %w", err)
	}

	bounds := img.Bounds()
	faces := make([]types.FaceResult, 0, len(detections))
	outlines := make([]geometry.Crop, 0, len(detections))

	for _, d := range detections {
		face := types.FaceResult{
			Box:        d.Box,
			Confidence: d.Confidence,
			Crop:       p.mapper.Map(d.Box, bounds.Dx(), bounds.Dy()),
		}
		outlines = append(outlines, p.mapper.Map(d.Box, w, h))

		vec, err := p.embed(img, face.Crop)
		switch {
		case err == nil:
			face.Vec = vec
		case errors.Is(err, embedding.ErrDegenerateEmbedding), errors.Is(err, errUnusableCrop):
			utils.Log.WithFields(logrus.Fields{
				"crop":  face.Crop.String(),
				"error": err,
			}).Debug("face skipped")
		default:
			return nil, nil, err
		}
		faces = append(faces, face)
	}

	preprocess.DrawRects(fitted, outlines, preprocess.BoxColor)
	return faces, fitted, nil
}

var errUnusableCrop = errors.New("crop outside image")

func (p *Pipeline) embed(img image.Image, crop geometry.Crop) (embedding.Vector, error) {
	face, ok := preprocess.CropFace(img, crop)
	if !ok {
		return nil, errUnusableCrop
	}
	vec, err := p.encoder.Extract(preprocess.EmbedderInput(face, embedding.InputSize))
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return vec, nil
}

// ReferenceEmbedding returns the embedding of the largest face in the image at path.
func (p *Pipeline) ReferenceEmbedding(path string) (embedding.Vector, error) {
	img, err := preprocess.Load(path)
	if err != nil {
		return nil, err
	}
	faces, _, err := p.ProcessImage(img)
	if err != nil {
		return nil, err
	}
	return Largest(faces)
}

// Largest picks the embedded face with the greatest detector-frame area.
// Ties keep the earlier (more confident) face.
func Largest(faces []types.FaceResult) (embedding.Vector, error) {
	var best embedding.Vector
	var bestArea float32 = -1
	for _, f := range faces {
		if f.Vec == nil {
			continue
		}
		if a := geometry.Area(f.Box); a > bestArea {
			best, bestArea = f.Vec, a
		}
	}
	if best == nil {
		return nil, ErrNoFace
	}
	return best, nil
}
