// Package metrics exposes the process's Prometheus surface, following the
// same registry-and-Start shape as the teacher's internal/metrics package:
// a package-level registry, collectors registered once, and a Start that
// binds an HTTP listener serving /metrics.
package metrics

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teamchess/server/log"
)

var (
	// Registry is the process-wide collector registry.
	Registry = prometheus.NewRegistry()

	ConnectedPlayers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "teamchess_connected_players",
		Help: "Number of currently connected sessions, by side",
	}, []string{"side"})

	MovesProposedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "teamchess_moves_proposed_total",
		Help: "Number of move proposals submitted, by side",
	}, []string{"side"})

	TurnsFinalizedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "teamchess_turns_finalized_total",
		Help: "Number of turns finalized, by side and by whether the engine had to arbitrate",
	}, []string{"side", "arbitrated"})

	EngineLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "teamchess_engine_arbitration_seconds",
		Help:    "Time spent waiting on the chess engine to arbitrate a turn",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	GamesCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "teamchess_games_completed_total",
		Help: "Number of games that reached Over, by reason",
	}, []string{"reason"})

	VotesStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "teamchess_votes_started_total",
		Help: "Number of votes opened, by kind",
	}, []string{"kind"})

	VotesPassedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "teamchess_votes_passed_total",
		Help: "Number of votes that reached majority, by kind",
	}, []string{"kind"})

	WebsocketConnectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "teamchess_websocket_connections_total",
		Help: "Number of websocket connections accepted",
	}, []string{"result"})

	ProcessStartTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "teamchess_process_start_timestamp_seconds",
		Help: "Unix time the process started",
	})

	bindOnce sync.Once
)

func bind(logger log.Logger) {
	if err := Registry.Register(collectors.NewGoCollector()); err != nil {
		logger.Warnw("metrics registration failed", "collector", "go", "err", err)
	}
	if err := Registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		logger.Warnw("metrics registration failed", "collector", "process", "err", err)
	}

	all := []prometheus.Collector{
		ConnectedPlayers,
		MovesProposedTotal,
		TurnsFinalizedTotal,
		EngineLatency,
		GamesCompletedTotal,
		VotesStartedTotal,
		VotesPassedTotal,
		WebsocketConnectionsTotal,
		ProcessStartTimestamp,
	}
	for _, c := range all {
		if err := Registry.Register(c); err != nil {
			logger.Warnw("metrics registration failed", "err", err)
		}
	}
}

// Start binds addr and serves /metrics until the process exits. Returns the
// listener so callers can close it during graceful shutdown.
func Start(logger log.Logger, addr string) (net.Listener, error) {
	bindOnce.Do(func() { bind(logger) })
	ProcessStartTimestamp.SetToCurrentTime()

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 3 * time.Second}
	go func() {
		logger.Infow("metrics server stopped", "err", srv.Serve(l))
	}()
	return l, nil
}
