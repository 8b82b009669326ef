// Crossarb — a cross-venue arbitrage scanner for binary prediction markets.
//
// Architecture:
//
//	main.go            — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go   — orchestrator: slow market-refresh loop + fast price-poll loop
//	venuea/            — integer-cent CLOB client with RSA-PSS request signing
//	venueb/            — token CLOB client with EIP-712 order signing
//	match/             — normalizes market titles and pairs equivalent contracts
//	scan/              — parallel quote fan-out and two-strategy spread pricing
//	exec/executor.go   — two-leg taker state machine with unwind on a failed hedge
//	risk/guard.go      — pair cooldowns, per-market unit caps, venue halt switch
//	verify/            — schedule cross-check gate for CS2 map markets
//	store/             — SQLite opportunity/trade log plus NDJSON tick stream
//	api/               — read-only web dashboard (REST snapshot + WebSocket events)
//
// How it makes money:
//
//	The same binary outcome trades on two venues at independent prices. When
//	YES on one venue plus NO on the other costs less than $1 combined, buying
//	both locks the difference: exactly one side pays out $1 at resolution.
//	The scanner hunts those moments and the executor takes both legs before
//	the books move.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/joho/godotenv"

	"crossarb/internal/config"
	"crossarb/internal/engine"
)

func main() {
	// A local .env is optional; deployments export the variables directly.
	_ = godotenv.Load()

	defaultCfg := "configs/config.yaml"
	if p := os.Getenv("CROSSARB_CONFIG"); p != "" {
		defaultCfg = p
	}

	var (
		cfgPath = flag.String("config", defaultCfg, "path to the YAML config file")
		paper   = flag.Bool("paper", false, "simulate executions against virtual wallets")
		live    = flag.Bool("live", false, "place real orders on both venues")
	)
	flag.Parse()

	if *paper && *live {
		fmt.Fprintln(os.Stderr, "--paper and --live are mutually exclusive")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *cfgPath)
		os.Exit(1)
	}
	switch {
	case *live:
		cfg.Mode = config.ModeLive
	case *paper:
		cfg.Mode = config.ModePaper
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

	if cfg.Mode == config.ModeLive {
		logger.Warn("LIVE MODE — real orders will be placed on both venues")
	}
	if cfg.Dashboard.Enabled {
		logger.Info("dashboard running", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	logger.Info("crossarb scanner started",
		"mode", cfg.Mode,
		"min_spread_cents", cfg.Scanner.MinSpreadCents,
		"max_trade_usd", cfg.Exec.MaxTradeUSD,
	)

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
