// arbd is the triangular-arbitrage detection and execution engine.
//
// Architecture:
//
//	main.go                 — entry point: loads config, starts the engine, waits for SIGINT/SIGTERM
//	internal/engine         — orchestrator: wires catalog, bus, filter, strategies, feeds, OMS
//	internal/feed           — per-venue WebSocket stream adapters (connect/subscribe/reconnect)
//	internal/ticker         — dedup/broadcast of top-of-book tickers per venue
//	internal/graph          — per-venue currency-conversion graph and negative-cycle search
//	internal/sizing         — chain-amount sizing from visible depth
//	internal/strategy       — detect → size → dispatch → track fills state machine, one per venue
//	internal/oms            — FIX-over-TLS order management session
//	internal/catalog        — static instruments catalog (symbols, precisions, fees, limits)
//	internal/monitor        — Ok/Error health pairing aggregator across every producer
//	internal/api            — read-only HTTP/WebSocket status surface
//
// How it makes money:
//
//	It watches top-of-book prices across a venue's instruments, builds a
//	directed graph weighted by log exchange rates net of fees, and searches
//	for a negative cycle — a sequence of trades that returns more of the
//	reference currency than it started with. When one is found and sized
//	within the venue's order limits, it dispatches the cycle as a sequence
//	of dependent market orders, one leg at a time as each fill confirms.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arbprotocol/triarb/internal/config"
	"github.com/arbprotocol/triarb/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("ARBD_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("arbd started", "venues", len(cfg.Venues), "oms_venue", cfg.OMS.Venue, "dry_run", cfg.DryRun)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
