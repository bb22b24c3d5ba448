package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/sweepscope/internal/logger"
	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/outcome"
	"github.com/rewired-gh/sweepscope/internal/report"
	"github.com/rewired-gh/sweepscope/internal/storage"
	"github.com/rewired-gh/sweepscope/internal/sweep"
	"github.com/rewired-gh/sweepscope/internal/tickio"
)

func detectCmd(a *app) *cobra.Command {
	var (
		ticksPath  string
		sweepsPath string
		outPath    string
		eventsPath string
		limit      int
		streaming  bool
	)
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect sweeps in a tick file and evaluate their forward outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			params, err := cfg.DetectorParams()
			if err != nil {
				return err
			}

			ticks, err := tickio.LoadTicks(ticksPath, limit)
			if err != nil {
				return err
			}
			logger.Info("Loaded %s ticks from %s", report.Count(len(ticks)), ticksPath)

			var (
				events    []models.SweepEvent
				runParams any = params
			)
			switch {
			case sweepsPath != "":
				events, err = tickio.LoadSweeps(sweepsPath)
				if err != nil {
					return err
				}
				logger.Info("Loaded %d sweeps from %s", len(events), sweepsPath)
			case streaming:
				model, err := sweep.NewDualWindowModel(cfg.Stream)
				if err != nil {
					return err
				}
				res, err := sweep.Collect(model, ticks)
				if err != nil {
					return err
				}
				events, runParams = res.Events, cfg.Stream
				logger.Info("Streaming detector consumed %d ticks: %d signals, %d undirected, %d rejected",
					model.Accepted(), res.Signals, res.Undirected, res.Rejected)
			default:
				events = sweep.Detect(ticks, params)
				logger.Info("Detected %d sweeps (%s)", len(events), params)
			}

			res := outcome.Evaluate(ticks, events, cfg.Evaluator.HorizonSec)
			printDetect(cmd.OutOrStdout(), len(ticks), len(events), res)

			if eventsPath != "" {
				if err := tickio.WriteFile(eventsPath, func(w io.Writer) error {
					return tickio.WriteSweeps(w, events)
				}); err != nil {
					return err
				}
			}
			if outPath != "" {
				if err := tickio.WriteFile(outPath, func(w io.Writer) error {
					return tickio.WriteOutcomes(w, res.Records)
				}); err != nil {
					return err
				}
				logger.Info("Wrote %d outcome records to %s", res.Evaluated(), outPath)
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store)
			if runID := startRun(store, storage.KindDetect, cfg.Symbol, runParams); runID != "" {
				if err := store.SaveEvents(runID, events); err != nil {
					logger.Warn("Failed to store events: %v", err)
				}
				if err := store.SaveOutcomes(runID, res.Records); err != nil {
					logger.Warn("Failed to store outcomes: %v", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ticksPath, "ticks", "", "Tick CSV (ts,price,volume,side)")
	cmd.Flags().StringVar(&sweepsPath, "sweeps", "", "Evaluate pre-computed sweeps from this CSV instead of detecting")
	cmd.Flags().StringVar(&outPath, "out", "", "Write outcome records to this CSV")
	cmd.Flags().StringVar(&eventsPath, "events-out", "", "Write detected sweeps to this CSV")
	cmd.Flags().IntVar(&limit, "limit", 0, "Read at most this many ticks (0 = all)")
	cmd.Flags().BoolVar(&streaming, "stream", false, "Use the streaming dual-window detector instead of the batch scan")
	cmd.MarkFlagsMutuallyExclusive("sweeps", "stream")
	_ = cmd.MarkFlagRequired("ticks")
	return cmd
}

func printDetect(w io.Writer, ticks, events int, res outcome.Result) {
	fmt.Fprintf(w, "ticks=%s sweeps=%d evaluated=%d no_forward_tick=%d no_horizon_tick=%d undirected=%d\n",
		report.Count(ticks), events, res.Evaluated(), res.NoForwardTick, res.NoHorizonTick, res.Undirected)
	for _, line := range report.FormatOutcomeSummary(outcome.SummarizeByDirection(res.Records)) {
		fmt.Fprintln(w, line)
	}
}
