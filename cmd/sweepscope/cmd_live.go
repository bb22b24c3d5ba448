package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/sweepscope/internal/bybit"
	"github.com/rewired-gh/sweepscope/internal/logger"
	"github.com/rewired-gh/sweepscope/internal/metrics"
	"github.com/rewired-gh/sweepscope/internal/monitor"
	"github.com/rewired-gh/sweepscope/internal/orderflow"
	"github.com/rewired-gh/sweepscope/internal/publish"
	"github.com/rewired-gh/sweepscope/internal/report"
	"github.com/rewired-gh/sweepscope/internal/storage"
	"github.com/rewired-gh/sweepscope/internal/strategy"
	"github.com/rewired-gh/sweepscope/internal/sweep"
	"github.com/rewired-gh/sweepscope/internal/telegram"
)

func probeCmd(a *app) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Print order-flow and depth pulses from the live market data stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLive(cmd.Context(), liveOptions{probe: true, print: !quiet})
		},
	}
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Do not print pulses (publish only)")
	return cmd
}

func liveCmd(a *app) *cobra.Command {
	var withProbe bool
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Run a paper trading session on live sweep signals (never places orders)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLive(cmd.Context(), liveOptions{strategy: true, probe: withProbe})
		},
	}
	cmd.Flags().BoolVar(&withProbe, "probe", false, "Also run the order-flow probe")
	return cmd
}

type liveOptions struct {
	strategy bool
	probe    bool
	print    bool
}

func (a *app) runLive(ctx context.Context, opts liveOptions) error {
	cfg := a.cfg
	mcfg := cfg.Monitor
	mcfg.Symbol = cfg.Symbol

	var monOpts []monitor.Option
	monOpts = append(monOpts, monitor.WithLogger(logger.Component("monitor")))
	topics := []string{"publicTrade." + cfg.Symbol}

	if opts.probe {
		probe, err := orderflow.NewProbe(cfg.Probe)
		if err != nil {
			return err
		}
		monOpts = append(monOpts, monitor.WithProbe(probe))
		topics = bybit.Topics(cfg.Symbol)
		if opts.print {
			monOpts = append(monOpts, monitor.WithPulseHandler(func(p orderflow.Pulse) {
				fmt.Fprintln(os.Stdout, strings.Join(report.FormatPulse(p, time.Local), "\n"))
			}))
		}
	}

	var (
		src  sweep.TickSignalSource
		eng  strategy.Engine
		sess *strategy.Session
	)
	if opts.strategy {
		model, err := sweep.NewDualWindowModel(cfg.Stream)
		if err != nil {
			return err
		}
		src, eng, sess = model, strategy.NewMeanReversion(cfg.Strategy.MeanReversionParams), strategy.NewSession(cfg.Strategy.Session)
		logger.Info("Paper session %s started", sess.ID())

		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer closeStore(store)
		params := map[string]any{"stream": cfg.Stream, "strategy": cfg.Strategy, "session_id": sess.ID()}
		if runID := startRun(store, storage.KindLive, cfg.Symbol, params); runID != "" {
			monOpts = append(monOpts, monitor.WithSink(store, runID))
		}
	}

	if cfg.Redis.Enabled {
		pub, err := publish.Dial(ctx, cfg.Redis.Config)
		if err != nil {
			return err
		}
		defer pub.Close()
		monOpts = append(monOpts, monitor.WithPublisher(pub))
		logger.Info("Publishing to Redis at %s", cfg.Redis.Addr)
	}

	tg, err := a.openTelegram()
	if err != nil {
		return err
	}
	if tg != nil && opts.strategy {
		monOpts = append(monOpts, monitor.WithNotifier(tg))
	}

	if cfg.Metrics.Enabled {
		srv, err := metrics.Serve(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		defer srv.Close()
		logger.Info("Serving metrics on %s/metrics", cfg.Metrics.Addr)
	}

	mon := monitor.New(mcfg, src, eng, sess, monOpts...)

	if tg != nil {
		tg.SetStatus(func() string {
			st := mon.Stats()
			line := fmt.Sprintf("%s ticks=%s signals=%d pulses=%d", cfg.Symbol, report.Count(st.Ticks), st.Signals, st.Pulses)
			if opts.strategy {
				line += "\n" + report.FormatSession(st.Session)
			}
			return line
		})
		tg.ListenForCommands(ctx)
	}

	stream := bybit.NewStream(cfg.Bybit.StreamURL, cfg.Symbol, logger.Component("bybit"),
		bybit.WithPingInterval(cfg.Bybit.PingInterval),
		bybit.WithTopics(topics),
		bybit.WithStateHandler(connectionAlerts(tg)),
	)

	logger.Info("Starting live %s monitor (topics: %v)", cfg.Symbol, topics)

	msgs := make(chan bybit.Message, 1024)
	var wg conc.WaitGroup
	var streamErr error
	wg.Go(func() {
		streamErr = stream.Run(ctx, msgs)
		close(msgs)
	})
	monErr := mon.Run(ctx, msgs)
	wg.Wait()

	st := mon.Stats()
	logger.Info("Live monitor stopped: ticks=%d rejected=%d signals=%d notified=%d pulses=%d resyncs=%d",
		st.Ticks, st.Rejected, st.Signals, st.Notified, st.Pulses, st.Resyncs)
	if opts.strategy {
		fmt.Fprintln(os.Stdout, report.FormatSession(st.Session))
	}

	for _, err := range []error{monErr, streamErr} {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// connectionAlerts reports the first failure of a disconnect streak and the
// recovery that ends it.
func connectionAlerts(tg *telegram.Client) func(error) {
	var mu sync.Mutex
	consecutiveFailures := 0
	return func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			consecutiveFailures++
			logger.Error("Market data stream failed: %v", err)
			if consecutiveFailures == 1 && tg != nil {
				if sendErr := tg.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && tg != nil {
			if sendErr := tg.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}
}
