package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/facerank/internal/embedding"
	"github.com/andresmejia3/facerank/internal/store"
	"github.com/andresmejia3/facerank/internal/utils"
)

var historyCmd = &cobra.Command{
	Use:   "history [run_id]",
	Short: "List stored runs, or the ranked results of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := requireDB(); err != nil {
			utils.ShowError("History unavailable", err)
			return err
		}
		if len(args) == 1 {
			return runShowRun(cmd.Context(), args[0])
		}
		return runHistory(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

// persistRun stores a finished run when a database is configured.
func persistRun(ctx context.Context, mode, inputDir, reference string, started time.Time, stats batchStats, recs []store.MatchRecord) error {
	if DB == nil {
		return nil
	}
	// The run context may already be cancelled; the record is still worth keeping.
	ctx = context.WithoutCancel(ctx)

	run := store.Run{
		ID:        utils.GenerateRunID(mode, inputDir, started),
		Mode:      mode,
		InputPath: inputDir,
		Reference: reference,
		StartedAt: started,
		Images:    stats.Images,
		Faces:     stats.Faces,
	}
	if err := DB.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to register run: %w", err)
	}
	if len(recs) > 0 {
		if _, err := DB.InsertMatchResults(ctx, run.ID, recs); err != nil {
			return fmt.Errorf("failed to store results: %w", err)
		}
	}
	fmt.Fprintf(os.Stderr, "💾 Stored run %s\n", run.ID[:12])
	return nil
}

func runHistory(ctx context.Context) error {
	runs, err := DB.ListRuns(ctx)
	if err != nil {
		utils.ShowError("Failed to list runs", err)
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs found in database.")
		return nil
	}
	printRuns(os.Stdout, runs)
	return nil
}

func printRuns(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tIMAGES\tFACES\tSTARTED\tINPUT")
	fmt.Fprintln(w, "--\t----\t------\t-----\t-------\t-----")
	for _, r := range runs {
		id := r.ID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", id, r.Mode, r.Images, r.Faces, r.StartedAt.Local().Format("2006-01-02 15:04"), r.InputPath)
	}
	w.Flush()
}

func runShowRun(ctx context.Context, prefix string) error {
	run, err := DB.FindRun(ctx, prefix)
	if err != nil {
		utils.ShowError("Failed to find run", err)
		return err
	}
	recs, err := DB.GetRunResults(ctx, run.ID)
	if err != nil {
		utils.ShowError("Failed to load run results", err)
		return err
	}

	fmt.Printf("Run %s (%s) over %s\n", run.ID[:min(12, len(run.ID))], run.Mode, run.InputPath)
	if run.Reference != "" {
		fmt.Printf("Reference: %s\n", run.Reference)
	}
	if len(recs) == 0 {
		fmt.Println("No ranked results stored for this run.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RANK\tDISTANCE\tFACES\tFILE")
	fmt.Fprintln(w, "----\t--------\t-----\t----")
	for _, r := range recs {
		outcome := embedding.Matched
		if r.Outcome == embedding.NoFace.String() {
			outcome = embedding.NoFace
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", r.Rank, formatDistance(r.Distance, outcome), r.Faces, r.Path)
	}
	w.Flush()
	return nil
}
