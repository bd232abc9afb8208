package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/facerank/internal/embedding"
	"github.com/andresmejia3/facerank/internal/pipeline"
	"github.com/andresmejia3/facerank/internal/store"
	"github.com/andresmejia3/facerank/internal/types"
	"github.com/andresmejia3/facerank/internal/utils"
)

var matchOpts Options

var matchCmd = &cobra.Command{
	Use:   "match <detector.onnx> <embedder.onnx> <input_dir> <output_dir> <reference_image>",
	Short: "Rank every image in a folder by similarity to the face in a reference image",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runMatch(cmd.Context(), args[0], args[1], args[2], args[3], args[4], matchOpts)
	},
}

func init() {
	addEngineFlags(matchCmd, &matchOpts)
	matchCmd.Flags().Float64VarP(&matchOpts.MatchThreshold, "match-threshold", "t", 0, "Mark results at or below this squared distance as matches (0 disables)")
	rootCmd.AddCommand(matchCmd)
}

func runMatch(ctx context.Context, detectorPath, embedderPath, inputDir, outputDir, reference string, opts Options) error {
	if err := validateOptions(opts); err != nil {
		utils.ShowError("Invalid flags", err)
		return err
	}
	if err := validateInput(inputDir); err != nil {
		utils.ShowError("Unable to access input folder", err)
		return err
	}
	if _, err := os.Stat(reference); err != nil {
		utils.ShowError("Reference image does not exist", err)
		return err
	}
	if err := utils.EnsureDir(outputDir); err != nil {
		utils.Die("Failed to create output folder", err)
	}

	started := time.Now()
	fmt.Fprintln(os.Stderr, "🚀 Loading models...")
	e, err := openEngine(detectorPath, embedderPath, outputDir, opts)
	if err != nil {
		utils.Die("Failed to start inference engine", err)
	}
	defer e.Close()

	fmt.Fprintln(os.Stderr, "🔍 Analyzing reference face...")
	// Returned rather than Die: the deferred Close must release the sessions.
	query, err := loadReference(e.pipeline, reference)
	if err != nil {
		utils.ShowError("Failed to process reference image", err)
		return err
	}

	results, stats, err := runBatch(ctx, e, inputDir, opts)
	if err != nil {
		utils.ShowError("Batch interrupted", err)
	}

	matcher := embedding.NewMatcher(embedding.MatcherConfig{Threshold: float32(opts.MatchThreshold)})
	ranked := matcher.MatchGallery(query, gallery(results))
	embedding.Rank(ranked)

	printRanking(os.Stdout, ranked, opts.MatchThreshold > 0)
	fmt.Fprintf(os.Stderr, "\n🏁 Done. %d images, %d faces, %d skipped.\n", stats.Images, stats.Faces, stats.Failed)

	if perr := persistRun(ctx, "match", inputDir, reference, started, stats, store.Records(ranked)); perr != nil {
		utils.ShowError("Failed to store run", perr)
		return perr
	}
	return err
}

type referenceSource interface {
	ReferenceEmbedding(path string) (embedding.Vector, error)
}

// loadReference embeds the reference face at path.
func loadReference(src referenceSource, path string) (embedding.Vector, error) {
	query, err := src.ReferenceEmbedding(path)
	if errors.Is(err, pipeline.ErrNoFace) {
		return nil, fmt.Errorf("no usable face in %s: %w", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", path, err)
	}
	return query, nil
}

// gallery turns processed images into gallery entries. Images that failed to
// load take part as entries with no faces.
func gallery(results []types.ImageResult) []embedding.GalleryEntry {
	entries := make([]embedding.GalleryEntry, len(results))
	for i, r := range results {
		entries[i] = embedding.GalleryEntry{Path: r.Path, Embeddings: r.Embeddings()}
	}
	return entries
}

func printRanking(out io.Writer, ranked []embedding.MatchResult, showMatch bool) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	if showMatch {
		fmt.Fprintln(w, "RANK\tDISTANCE\tFACES\tMATCH\tFILE")
		fmt.Fprintln(w, "----\t--------\t-----\t-----\t----")
	} else {
		fmt.Fprintln(w, "RANK\tDISTANCE\tFACES\tFILE")
		fmt.Fprintln(w, "----\t--------\t-----\t----")
	}
	for i, r := range ranked {
		if showMatch {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", i+1, formatDistance(r.Distance, r.Outcome), r.Faces, yesNo(r.Within), r.Path)
		} else {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i+1, formatDistance(r.Distance, r.Outcome), r.Faces, r.Path)
		}
	}
	w.Flush()
}

func formatDistance(d float32, outcome embedding.Outcome) string {
	if outcome == embedding.NoFace || math.IsInf(float64(d), 0) {
		return "no face"
	}
	return fmt.Sprintf("%.4f", d)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
