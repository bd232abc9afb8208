package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/facerank/internal/types"
	"github.com/andresmejia3/facerank/internal/utils"
)

var detectOpts Options

var detectCmd = &cobra.Command{
	Use:   "detect <detector.onnx> <embedder.onnx> <input_dir> <output_dir>",
	Short: "Detect and embed faces in every image, writing annotated copies",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runDetect(cmd.Context(), args[0], args[1], args[2], args[3], detectOpts)
	},
}

func init() {
	addEngineFlags(detectCmd, &detectOpts)
	rootCmd.AddCommand(detectCmd)
}

func runDetect(ctx context.Context, detectorPath, embedderPath, inputDir, outputDir string, opts Options) error {
	if err := validateOptions(opts); err != nil {
		utils.ShowError("Invalid flags", err)
		return err
	}
	if err := validateInput(inputDir); err != nil {
		utils.ShowError("Unable to access input folder", err)
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

	results, stats, err := runBatch(ctx, e, inputDir, opts)
	if err != nil {
		utils.ShowError("Batch interrupted", err)
	}

	printDetections(os.Stdout, results)
	fmt.Fprintf(os.Stderr, "\n🏁 Done. %d images, %d faces, %d skipped.\n", stats.Images, stats.Faces, stats.Failed)

	if perr := persistRun(ctx, "detect", inputDir, "", started, stats, nil); perr != nil {
		utils.ShowError("Failed to store run", perr)
		return perr
	}
	return err
}

// printDetections writes one row per image: its face count and output file.
func printDetections(out io.Writer, results []types.ImageResult) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FILE\tFACES\tOUTPUT")
	fmt.Fprintln(w, "----\t-----\t------")
	for _, r := range results {
		name := filepath.Base(r.Path)
		if r.Err != nil {
			fmt.Fprintf(w, "%s\t-\terror: %v\n", name, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(r.Faces), r.Annotated)
	}
	w.Flush()
}
