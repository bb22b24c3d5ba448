package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/sweepscope/internal/bybit"
	"github.com/rewired-gh/sweepscope/internal/logger"
	"github.com/rewired-gh/sweepscope/internal/report"
	"github.com/rewired-gh/sweepscope/internal/tickio"
)

func fetchCmd(a *app) *cobra.Command {
	var (
		outPath string
		target  int
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download recent public trades to a tick CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			client := bybit.NewClient(cfg.Bybit.RESTURL, cfg.Bybit.Timeout,
				bybit.WithRateLimit(cfg.Bybit.RateLimit, cfg.Bybit.Burst),
				bybit.WithRetry(cfg.Bybit.MaxRetries, cfg.Bybit.RetryDelay),
			)

			res, err := client.FetchTrades(cmd.Context(), cfg.Bybit.Category, cfg.Symbol, target)
			if err != nil && len(res.Ticks) == 0 {
				return err
			}
			if err != nil {
				logger.Warn("Fetch stopped early, keeping %d trades: %v", len(res.Ticks), err)
			}
			logger.Info("Fetched %s trades in %d pages (%d rejected)",
				report.Count(len(res.Ticks)), res.Pages, res.Rejected)

			return tickio.WriteFile(outPath, func(w io.Writer) error {
				return tickio.WriteTicks(w, res.Ticks)
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "Destination tick CSV")
	cmd.Flags().IntVar(&target, "target", 1000, "Number of trades to collect")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
