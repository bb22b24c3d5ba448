package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/sweepscope/internal/gridsearch"
	"github.com/rewired-gh/sweepscope/internal/logger"
	"github.com/rewired-gh/sweepscope/internal/report"
	"github.com/rewired-gh/sweepscope/internal/storage"
	"github.com/rewired-gh/sweepscope/internal/tickio"
)

func scanCmd(a *app) *cobra.Command {
	var (
		ticksPath  string
		reportPath string
		limit      int
		notify     bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Grid-search detector parameters and compare outcome distributions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			opts, err := cfg.GridOptions()
			if err != nil {
				return err
			}

			ticks, err := tickio.LoadTicks(ticksPath, limit)
			if err != nil {
				return err
			}
			logger.Info("Scanning %d combinations over %s ticks (horizon %gs, tie break %s)",
				cfg.Grid.Size(), report.Count(len(ticks)), opts.Horizon, opts.TieBreak)

			start := time.Now()
			results, err := gridsearch.Run(ticks, cfg.Grid.Grid, opts)
			if err != nil {
				return err
			}
			logger.Info("Scan completed in %v", time.Since(start))

			out := cmd.OutOrStdout()
			for _, r := range results {
				for _, line := range report.FormatGridResult(r) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out)
			}

			if reportPath != "" {
				rep := report.GridReport{
					Symbol:    cfg.Symbol,
					Source:    ticksPath,
					Ticks:     len(ticks),
					Horizon:   opts.Horizon,
					TieBreak:  opts.TieBreak.String(),
					Generated: time.Now().UTC(),
					Results:   results,
				}
				if err := tickio.WriteFile(reportPath, func(w io.Writer) error {
					return report.WriteYAML(w, rep)
				}); err != nil {
					return err
				}
				logger.Info("Wrote grid report to %s", reportPath)
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store)
			if runID := startRun(store, storage.KindScan, cfg.Symbol, cfg.Grid); runID != "" {
				if err := store.SaveGridResults(runID, results); err != nil {
					logger.Warn("Failed to store grid results: %v", err)
				}
			}

			if notify {
				tg, err := a.openTelegram()
				if err != nil {
					return err
				}
				if tg != nil {
					if err := tg.SendGridSummary(cfg.Symbol, results, cfg.Telegram.TopResults); err != nil {
						logger.Error("Failed to send grid summary to Telegram: %v", err)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ticksPath, "ticks", "", "Tick CSV (ts,price,volume,side)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a YAML report to this path")
	cmd.Flags().IntVar(&limit, "limit", 0, "Read at most this many ticks (0 = all)")
	cmd.Flags().BoolVar(&notify, "notify", false, "Send the top results to Telegram")
	_ = cmd.MarkFlagRequired("ticks")
	return cmd
}
