package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dreamup/renew-agent/internal/batch"
	"github.com/dreamup/renew-agent/internal/config"
	"github.com/dreamup/renew-agent/internal/db"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent renewal results",
	Long:  `List the most recent per-account results recorded in the run history database, newest first.`,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of records to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return fmt.Errorf("run history is disabled (history.path is empty)")
	}

	store, err := db.New(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tRUN\tACCOUNT\tSTATUS\tATTEMPTS\tRELOADS\tDETAIL")
	for _, r := range records {
		detail := r.Reason
		if r.AvailableAt != "" {
			detail = "available as of " + r.AvailableAt
		}
		runID := r.RunID
		if len(runID) > 8 {
			runID = runID[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			runID,
			r.AccountStem,
			statusEmoji(batch.Status(r.Status))+" "+r.Status,
			r.Attempts,
			r.Reloads,
			detail,
		)
	}
	return w.Flush()
}
