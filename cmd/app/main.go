package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"quantbroker/internal/app"

	"golang.org/x/sync/errgroup"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config")
	pprofAddr := flag.String("pprof", "", "pprof listen address, empty disables it")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	if *pprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap(*configPath)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Broker, feeds and strategy for the configured mode
	runner, interval, err := bootstrap.NewRunner(ctx)
	if err != nil {
		slog.Error("❌ Failed to build runner", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	if addr := bootstrap.Config.Metrics.Addr; addr != "" {
		g.Go(func() error { return bootstrap.Metrics.Serve(gctx, addr) })
	}

	g.Go(func() error {
		// A finished backtest stops the metrics server too.
		defer cancel()
		if interval > 0 {
			slog.InfoContext(gctx, "✨ Live trading started. Press Ctrl+C to exit.")
			return runner.RunLive(gctx, interval)
		}
		slog.InfoContext(gctx, "✨ Backtest started")
		return runner.Run(gctx)
	})

	err = g.Wait()
	cancel()

	stats := runner.Stats()
	slog.Info("👋 Shutting down gracefully...",
		slog.Int("steps", stats.Steps),
		slog.Float64("cash", stats.Cash),
		slog.Float64("value", stats.Value),
		slog.Int("orders", stats.Orders),
	)

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("❌ Runner stopped with error", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}
}
