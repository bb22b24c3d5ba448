package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/sweepscope/internal/logger"
	"github.com/rewired-gh/sweepscope/internal/report"
	"github.com/rewired-gh/sweepscope/internal/storage"
	"github.com/rewired-gh/sweepscope/internal/strategy"
	"github.com/rewired-gh/sweepscope/internal/sweep"
	"github.com/rewired-gh/sweepscope/internal/tickio"
)

func backtestCmd(a *app) *cobra.Command {
	var (
		ticksPath string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a tick file through the streaming sweep model and the paper strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			model, err := sweep.NewDualWindowModel(cfg.Stream)
			if err != nil {
				return err
			}
			eng := strategy.NewMeanReversion(cfg.Strategy.MeanReversionParams)
			sess := strategy.NewSession(cfg.Strategy.Session)

			it, closer, err := tickio.OpenTicks(ticksPath)
			if err != nil {
				return err
			}
			defer closer.Close()

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store)
			runID := startRun(store, storage.KindBacktest, cfg.Symbol, cfg.Strategy)

			stats, err := strategy.Replay(it, model, eng, sess, strategy.ReplayOptions{
				Limit: limit,
				OnTrade: func(t strategy.Trade) {
					logger.Debug("Closed %s %.4f -> %.4f pnl=%+.4f", t.Dir, t.EntryPrice, t.ExitPrice, t.PnL)
					if runID != "" {
						if err := store.SaveTrade(runID, &t); err != nil {
							logger.Warn("Failed to store trade: %v", err)
						}
					}
				},
			})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ticks=%s rejected=%d signals=%d undirected=%d\n",
				report.Count(stats.Ticks), stats.Rejected, stats.Signals, stats.Undirected)
			fmt.Fprintln(out, report.FormatSession(stats.Session))
			return err
		},
	}
	cmd.Flags().StringVar(&ticksPath, "ticks", "", "Tick CSV (ts,price,volume,side)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Replay at most this many ticks (0 = all)")
	_ = cmd.MarkFlagRequired("ticks")
	return cmd
}
