package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/facerank/internal/detector"
	"github.com/andresmejia3/facerank/internal/embedding"
	"github.com/andresmejia3/facerank/internal/inference"
	"github.com/andresmejia3/facerank/internal/pipeline"
	"github.com/andresmejia3/facerank/internal/types"
	"github.com/andresmejia3/facerank/internal/utils"
	"github.com/andresmejia3/facerank/internal/worker"
)

// addEngineFlags registers the flags shared by detect and match.
func addEngineFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().IntVarP(&opts.NumWorkers, "workers", "w", 4, "Number of parallel image workers")
	cmd.Flags().IntVarP(&opts.QueueSize, "queue", "q", 16, "Maximum number of images waiting for a worker")
	cmd.Flags().Float64VarP(&opts.ConfThreshold, "conf-threshold", "c", 0.5, "Face detection confidence threshold (exclusive)")
	cmd.Flags().Float64Var(&opts.NMSThreshold, "nms-iou", 0.5, "Maximum IoU between two kept detections")
	cmd.Flags().IntVarP(&opts.Threads, "threads", "T", 0, "Intra-op threads per inference session (0 = runtime default)")
	cmd.Flags().StringVar(&opts.OrtLibrary, "ort-lib", os.Getenv("ONNXRUNTIME_LIB"), "Path to the ONNX Runtime shared library (env ONNXRUNTIME_LIB)")
}

// validateOptions ensures all CLI arguments are valid before starting heavy processes.
func validateOptions(opts Options) error {
	if opts.NumWorkers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", opts.NumWorkers)
	}
	if opts.QueueSize < 0 {
		return fmt.Errorf("queue must be >= 0, got %d", opts.QueueSize)
	}
	if opts.ConfThreshold < 0 || opts.ConfThreshold > 1 {
		return fmt.Errorf("conf-threshold must be between 0.0 and 1.0, got %f", opts.ConfThreshold)
	}
	if opts.NMSThreshold < 0 || opts.NMSThreshold > 1 {
		return fmt.Errorf("nms-iou must be between 0.0 and 1.0, got %f", opts.NMSThreshold)
	}
	if opts.MatchThreshold < 0 {
		return fmt.Errorf("match-threshold must be >= 0, got %f", opts.MatchThreshold)
	}
	if opts.Threads < 0 {
		return fmt.Errorf("threads must be >= 0, got %d", opts.Threads)
	}
	return nil
}

// validateInput checks that the input folder exists.
func validateInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// engine owns the two inference sessions and the pipeline built on them.
type engine struct {
	detSession *inference.Session
	embSession *inference.Session
	pipeline   *pipeline.Pipeline
}

// openEngine initialises ONNX Runtime and loads both models. On failure
// everything it created is released again.
func openEngine(detectorPath, embedderPath, outputDir string, opts Options) (*engine, error) {
	decoder, err := detector.NewDecoder(detector.Config{
		ConfThreshold: float32(opts.ConfThreshold),
		MaxIoU:        float32(opts.NMSThreshold),
	})
	if err != nil {
		return nil, err
	}

	if err := inference.Initialize(opts.OrtLibrary); err != nil {
		return nil, err
	}

	sessOpts := inference.Options{IntraOpThreads: opts.Threads}
	det, err := inference.NewSession(detectorPath, sessOpts)
	if err != nil {
		inference.Shutdown()
		return nil, fmt.Errorf("failed to load detector: %w", err)
	}
	emb, err := inference.NewSession(embedderPath, sessOpts)
	if err != nil {
		det.Destroy()
		inference.Shutdown()
		return nil, fmt.Errorf("failed to load embedder: %w", err)
	}

	p, err := pipeline.New(pipeline.Config{OutputDir: outputDir},
		detector.NewUltraFace(det, decoder), embedding.NewArcFace(emb))
	if err != nil {
		det.Destroy()
		emb.Destroy()
		inference.Shutdown()
		return nil, err
	}

	return &engine{detSession: det, embSession: emb, pipeline: p}, nil
}

func (e *engine) Close() {
	if err := e.detSession.Destroy(); err != nil {
		utils.Log.WithError(err).Warn("failed to destroy detector session")
	}
	if err := e.embSession.Destroy(); err != nil {
		utils.Log.WithError(err).Warn("failed to destroy embedder session")
	}
	if err := inference.Shutdown(); err != nil {
		utils.Log.WithError(err).Warn("failed to shut down ONNX Runtime")
	}
}

// batchStats summarises a processed folder.
type batchStats struct {
	Images int
	Failed int
	Faces  int
}

// runBatch processes every file under inputDir through the engine's pipeline.
// Per-file failures are logged and counted; the run continues.
func runBatch(ctx context.Context, e *engine, inputDir string, opts Options) ([]types.ImageResult, batchStats, error) {
	var stats batchStats

	paths, err := utils.ListFiles(inputDir)
	if err != nil {
		return nil, stats, err
	}
	fmt.Fprintf(os.Stderr, "📂 Found %d files in %s\n", len(paths), inputDir)
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d workers (queue %d)...\n", opts.NumWorkers, opts.QueueSize)

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("🔍 Processing"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)

	start := time.Now()
	results, err := worker.Run(ctx, worker.Config{Workers: opts.NumWorkers, QueueSize: opts.QueueSize},
		paths, e.pipeline.Process, func(res types.ImageResult) {
			bar.Add(1)
			stats.Images++
			if res.Err != nil {
				stats.Failed++
				utils.Log.WithFields(logrus.Fields{"path": res.Path, "error": res.Err}).Warn("image skipped")
				return
			}
			stats.Faces += len(res.Faces)
		})
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	utils.Log.WithFields(logrus.Fields{
		"images":  stats.Images,
		"failed":  stats.Failed,
		"elapsed": time.Since(start),
	}).Info("batch finished")
	return results, stats, err
}

// redactURL strips credentials from a connection string for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<unparsed>"
	}
	return u.Host
}
