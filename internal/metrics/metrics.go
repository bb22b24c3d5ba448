// Package metrics exposes Prometheus counters for the live pipeline.
package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/sweepscope/internal/logger"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sweepscope_ticks_total", Help: "Trade ticks accepted from the feed"},
		[]string{"symbol"},
	)
	RejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sweepscope_rejected_total", Help: "Feed records dropped"},
		[]string{"reason"},
	)
	SweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sweepscope_sweeps_total", Help: "Sweep signals raised by the streaming detector"},
		[]string{"direction"},
	)
	PulsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sweepscope_pulses_total", Help: "Order-flow pulses emitted"},
	)
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sweepscope_actions_total", Help: "Paper strategy actions applied"},
		[]string{"type"},
	)
	SessionPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sweepscope_session_pnl", Help: "Cumulative paper PnL of the current session"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, RejectedTotal, SweepsTotal, PulsesTotal, ActionsTotal, SessionPnL)
}

// Serve binds addr and exposes /metrics in the background. Bind failures are
// returned; later serve errors are logged.
func Serve(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped: %v", err)
		}
	}()
	return srv, nil
}
