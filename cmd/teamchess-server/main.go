// Command teamchess-server runs the team-chess session coordinator: one
// websocket gateway, one chess engine subprocess, and one single-threaded
// game actor, per spec.md §1.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v2"

	"github.com/teamchess/server/internal/actor"
	"github.com/teamchess/server/internal/config"
	"github.com/teamchess/server/internal/core"
	"github.com/teamchess/server/internal/engine"
	"github.com/teamchess/server/internal/httpapi"
	"github.com/teamchess/server/internal/metrics"
	"github.com/teamchess/server/internal/transport"
	"github.com/teamchess/server/log"
)

var (
	listenFlag = &cli.StringFlag{
		Name:  "listen",
		Value: ":8080",
		Usage: "address the websocket and diagnostic HTTP surface listen on",
	}
	metricsFlag = &cli.StringFlag{
		Name:  "metrics",
		Value: "127.0.0.1:9090",
		Usage: "address the Prometheus /metrics endpoint listens on",
	}
	engineBinaryFlag = &cli.StringFlag{
		Name:  "engine",
		Value: "stockfish",
		Usage: "path to a UCI-speaking chess engine binary",
	}
	engineDepthFlag = &cli.IntFlag{
		Name:  "engine-depth",
		Value: 15,
		Usage: "search depth requested from the engine when arbitrating disagreeing proposals",
	}
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "optional TOML file overlaying the default configuration",
	}
	verboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "log at debug level",
	}
	jsonLogsFlag = &cli.BoolFlag{
		Name:  "json-logs",
		Usage: "emit logs as JSON instead of console-formatted text",
	}
)

func main() {
	app := &cli.App{
		Name:  "teamchess-server",
		Usage: "real-time team-chess session coordinator",
		Flags: []cli.Flag{listenFlag, metricsFlag, engineBinaryFlag, engineDepthFlag, configFlag, verboseFlag, jsonLogsFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "teamchess-server: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level := log.InfoLevel
	if c.Bool(verboseFlag.Name) {
		level = log.DebugLevel
	}
	logger := log.New(os.Stdout, level, c.Bool(jsonLogsFlag.Name))

	cfg := config.New(
		config.WithListenAddr(c.String(listenFlag.Name)),
		config.WithMetricsAddr(c.String(metricsFlag.Name)),
		config.WithEngine(c.String(engineBinaryFlag.Name), c.Int(engineDepthFlag.Name), 20*time.Second),
	)
	if path := c.String(configFlag.Name); path != "" {
		var err error
		cfg, err = config.FromFile(cfg, path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	spin := spinner.New(spinner.CharSets[9], 100*time.Millisecond)
	spin.Suffix = " starting chess engine..."
	spin.Start()
	eng, err := engine.NewStockfishAdapter(cfg.EngineBinary, cfg.EngineDepth, logger)
	spin.Stop()
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	var gateway *transport.Gateway
	gatewayFactory := func(post actor.Poster) *transport.Gateway {
		gateway = transport.New(logger, post)
		return gateway
	}
	engineCore := core.New(logger, cfg, clockwork.NewRealClock(), eng, gatewayFactory)

	metricsListener, err := metrics.Start(logger, cfg.MetricsAddr)
	if err != nil {
		logger.Warnw("metrics server failed to start", "err", err)
	} else {
		defer metricsListener.Close()
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway)
	mux.Handle("/", httpapi.NewRouter(logger, engineCore))
	httpServer := httpapi.NewServer(cfg.ListenAddr, mux)

	go engineCore.Run()
	go func() {
		logger.Infow("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("http server stopped", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Infow("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	engineCore.Stop()
	return nil
}
