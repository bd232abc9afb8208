package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/facerank/internal/inference"
	"github.com/andresmejia3/facerank/internal/utils"
)

var inspectLib string

var inspectCmd = &cobra.Command{
	Use:   "inspect <model.onnx>",
	Short: "Print a model's inputs, outputs and metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		if err := inference.Initialize(inspectLib); err != nil {
			utils.ShowError("Failed to start inference engine", err)
			return err
		}
		defer inference.Shutdown()

		info, err := inference.Inspect(args[0])
		if err != nil {
			utils.ShowError("Failed to inspect model", err)
			return err
		}
		printModelInfo(os.Stdout, info)
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectLib, "ort-lib", os.Getenv("ONNXRUNTIME_LIB"), "Path to the ONNX Runtime shared library (env ONNXRUNTIME_LIB)")
	rootCmd.AddCommand(inspectCmd)
}

func printModelInfo(out io.Writer, info *inference.ModelInfo) {
	if info.Producer != "" || info.Domain != "" {
		fmt.Fprintf(out, "Producer: %s  Domain: %s  Version: %d\n", info.Producer, info.Domain, info.Version)
	}
	if info.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", info.Description)
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tTYPE\tSHAPE")
	fmt.Fprintln(w, "----\t----\t----\t-----")
	for _, t := range info.Inputs {
		fmt.Fprintf(w, "input\t%s\t%s\t%v\n", t.Name, t.DataType, t.Dimensions)
	}
	for _, t := range info.Outputs {
		fmt.Fprintf(w, "output\t%s\t%s\t%v\n", t.Name, t.DataType, t.Dimensions)
	}
	w.Flush()
}
