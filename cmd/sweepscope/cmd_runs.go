package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/sweepscope/internal/outcome"
	"github.com/rewired-gh/sweepscope/internal/report"
	"github.com/rewired-gh/sweepscope/internal/storage"
)

func runsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored runs, or print the results stored for one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("storage is disabled")
			}
			defer closeStore(store)

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				runs, err := store.ListRuns(limit)
				if err != nil {
					return err
				}
				for _, r := range runs {
					fmt.Fprintf(out, "%s %-8s %-10s %s\n", r.ID, r.Kind, r.Symbol, r.CreatedAt.UTC().Format(time.RFC3339))
				}
				return nil
			}
			return showRun(out, store, args[0])
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "List at most this many runs (0 = all)")
	return cmd
}

func showRun(w io.Writer, store *storage.Storage, runID string) error {
	events, err := store.GetEvents(runID)
	if err != nil {
		return err
	}
	records, err := store.GetOutcomes(runID)
	if err != nil {
		return err
	}
	results, err := store.GetGridResults(runID)
	if err != nil {
		return err
	}
	trades, err := store.GetTrades(runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "run %s: sweeps=%d outcomes=%d grid=%d trades=%d\n",
		runID, len(events), len(records), len(results), len(trades))
	if len(records) > 0 {
		for _, line := range report.FormatOutcomeSummary(outcome.SummarizeByDirection(records)) {
			fmt.Fprintln(w, line)
		}
	}
	for _, r := range results {
		for _, line := range report.FormatGridResult(r) {
			fmt.Fprintln(w, line)
		}
	}
	if len(trades) > 0 {
		pnl := 0.0
		for _, t := range trades {
			pnl += t.PnL
		}
		fmt.Fprintf(w, "pnl=%+.4f over %d trades\n", pnl, len(trades))
	}
	return nil
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <grid.yaml>",
		Short: "Print a grid report written by scan --report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			rep, err := report.ReadYAML(f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s ticks=%s horizon=%gs tie_break=%s generated %s\n",
				rep.Symbol, report.Count(rep.Ticks), rep.Horizon, rep.TieBreak, rep.Generated.UTC().Format(time.RFC3339))
			for _, r := range rep.Results {
				for _, line := range report.FormatGridResult(r) {
					fmt.Fprintln(out, line)
				}
			}
			return nil
		},
	}
}
