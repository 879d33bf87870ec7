/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/

// The history command prints what earlier runs recorded in a ledger.
//
// Example usage:
//
//	waybackpack history --ledger runs.db
//	waybackpack history --ledger runs.db --run 6f1c... --limit 50
package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/seckatie/waybackpack/internal/core/db"
	"github.com/spf13/cobra"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show runs and snapshot outcomes recorded in a ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(cmd)
	},
}

func runHistory(cmd *cobra.Command) error {
	path, err := cmd.Flags().GetString("ledger")
	if err != nil {
		return fmt.Errorf("failed to read --ledger: %w", err)
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("failed to read --limit: %w", err)
	}
	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return fmt.Errorf("failed to read --run: %w", err)
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no ledger at %s", path)
		}
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	database, err := openLedger(path)
	if err != nil {
		return err
	}
	defer database.Close()

	out := cmd.OutOrStdout()
	if runID == "" {
		runs, err := database.ListRuns(limit)
		if err != nil {
			return err
		}
		return printRuns(out, runs)
	}

	r, err := database.GetRun(runID)
	if err != nil {
		return err
	}
	results, err := database.ListSnapshotResults(r.ID, limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "run %s  %s -> %s  [%s]\n", r.ID, r.URL, r.Directory, r.Status)
	if r.Error != "" {
		fmt.Fprintf(out, "error: %s\n", r.Error)
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tSTATUS\tPATH\tERROR")
	for _, res := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", res.Timestamp, res.Status, res.Path, res.Error)
	}
	return w.Flush()
}

func printRuns(out io.Writer, runs []db.Run) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tSTATUS\tURL\tDIRECTORY")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.StartedAt, r.Status, r.URL, r.Directory)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().String("ledger", "", "Path to the SQLite ledger written by --ledger")
	historyCmd.Flags().Int("limit", 20, "Maximum number of rows to show (0 = all)")
	historyCmd.Flags().String("run", "", "Show the snapshot outcomes of this run")
	historyCmd.MarkFlagRequired("ledger")
}
