// Package inference is the boundary to the ONNX Runtime engine. Everything
// above it works on owned Tensor values.
package inference

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initialized bool
	initMu      sync.Mutex
)

// ErrUnexpectedOutput is returned when the engine produces an output that is
// not a float32 tensor.
var ErrUnexpectedOutput = errors.New("unexpected model output")

// Initialize sets up the ONNX Runtime environment (call once at startup).
// An empty libraryPath keeps the onnxruntime_go default lookup.
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

func isInitialized() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return initialized
}

// Shutdown cleans up the ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Tensor is an owned, engine-independent float32 tensor.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Size returns the number of elements the shape describes.
func (t Tensor) Size() int64 {
	size := int64(1)
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// Runner runs a single-input model and returns its outputs in model order.
type Runner interface {
	Run(input Tensor) ([]Tensor, error)
}

// Options configures session creation.
type Options struct {
	IntraOpThreads int
}

// Session wraps an ONNX Runtime session. Run calls are serialised: the
// engine is never entered by two goroutines at once.
type Session struct {
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates an inference session for a model with exactly one input.
// Input and output names are read from the model file.
func NewSession(modelPath string, opts Options) (*Session, error) {
	if !isInitialized() {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info for %s: %w", modelPath, err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("model %s has %d inputs, expected 1", modelPath, len(inputs))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("model %s has no outputs", modelPath)
	}

	inputNames := []string{inputs[0].Name}
	outputNames := make([]string, len(outputs))
	for i, info := range outputs {
		outputNames[i] = info.Name
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run executes inference. Outputs are allocated by the engine, copied into
// owned Tensors, and released before returning.
func (s *Session) Run(input Tensor) ([]Tensor, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, len(s.outputNames))

	s.mu.Lock()
	err = s.session.Run([]ort.Value{inputTensor}, outputs)
	s.mu.Unlock()

	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	result := make([]Tensor, len(outputs))
	for i, v := range outputs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("%w: output %q is not a float32 tensor", ErrUnexpectedOutput, s.outputNames[i])
		}
		data := t.GetData()
		result[i] = Tensor{
			Shape: append([]int64(nil), t.GetShape()...),
			Data:  append([]float32(nil), data...),
		}
	}
	return result, nil
}

// ModelPath returns the path the session was loaded from.
func (s *Session) ModelPath() string {
	return s.modelPath
}

// OutputNames returns the output names in the order Run returns them.
func (s *Session) OutputNames() []string {
	return s.outputNames
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}
