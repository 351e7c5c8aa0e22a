// Package main is the entry point for the Hyperliquid surveillance engine.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hlwatch/engine/internal/admin"
	"github.com/hlwatch/engine/internal/config"
	"github.com/hlwatch/engine/internal/ingest"
	"github.com/hlwatch/engine/internal/metrics"
	"github.com/hlwatch/engine/internal/notify"
	"github.com/hlwatch/engine/internal/scanner"
	"github.com/hlwatch/engine/internal/store"
	"github.com/hlwatch/engine/internal/watchlist"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("hlwatch starting",
		"version", "1.0.0",
	)

	slog.Info("config_loaded",
		"api_url", cfg.APIURL,
		"ws_url", cfg.WSURL,
		"poll_interval", cfg.PollInterval.String(),
		"lookback", cfg.Lookback.String(),
		"elevated_lookback", cfg.ElevatedLookback.String(),
		"worker_count", cfg.WorkerCount,
		"watch_addresses", len(cfg.WatchAddresses),
		"elevated_addresses", len(cfg.ElevatedAddresses),
		"deposit_threshold_usd", cfg.DepositThresholdUSD,
		"short_threshold_usd", cfg.ShortThresholdUSD,
		"cluster_detection", cfg.ClusterEnabled,
		"cluster_min_score", cfg.ClusterMinScore,
		"webhook", cfg.MaskedWebhook(),
		"live_feed", cfg.EnableLiveFeed,
		"db_path", cfg.DBPath,
		"admin_port", cfg.AdminPort,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Open the event store
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open store", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer st.Close()

	// Build the watchlist, folding in wallets promoted in earlier runs
	wl := watchlist.NewManager(st, cfg.WatchAddresses, cfg.ElevatedAddresses)
	if err := wl.Refresh(); err != nil {
		slog.Error("failed to load watchlist", "error", err)
		os.Exit(1)
	}
	watched, elevated := wl.Counts()
	if watched == 0 {
		slog.Warn("no_watched_addresses", "hint", "set WATCH_ADDRESSES or ELEVATED_ADDRESSES")
	}

	tracker := metrics.NewTracker()
	notifier := notify.NewNotifier(cfg.WebhookURL, cfg.WebhookTarget)
	fetcher := ingest.NewClient(cfg.APIURL, cfg.RequestTimeout)

	// Admin HTTP endpoints
	adminServer := admin.NewServer(cfg.AdminPort, st, tracker, wl)
	go func() {
		if err := adminServer.Start(); err != nil {
			slog.Error("admin_server_error", "error", err)
		}
	}()

	scan := scanner.New(cfg, st, fetcher, notifier, wl, tracker)

	// Optional live fill feed; polling remains the authoritative ingest path.
	// Ages come from the scanner's cache so both paths stamp the same value.
	var listener *ingest.Listener
	if cfg.EnableLiveFeed {
		listener = ingest.NewListener(cfg.WSURL, func(wallet string, fill store.Fill) {
			if fill.Notional < cfg.MarketMinTradeSize {
				return
			}
			if err := st.RecordLargeTrade(store.LargeTrade{
				TradeID:       fill.TradeID,
				Wallet:        wallet,
				Token:         fill.Token,
				Side:          fill.Side,
				Notional:      fill.Notional,
				Price:         fill.Price,
				Size:          fill.Size,
				TimeMs:        fill.TimeMs,
				WalletAgeDays: scan.WalletAge(ctx, wallet),
			}); err != nil {
				slog.Error("live_fill_archive_failed", "error", err)
			}
		})
		listener.SetUsers(wl.Watched())
		listener.Start(ctx)
		slog.Info("live_feed_started", "endpoint", cfg.WSURL)
	}

	// Announce startup before the first cycle
	if err := notifier.NotifyStartup(ctx, watched, elevated, int(cfg.PollInterval.Seconds())); err != nil {
		slog.Warn("startup_alert_failed", "error", err)
	}

	// Run the scan loop
	go scan.Run(ctx)

	slog.Info("engine_started",
		"watched", watched,
		"elevated", elevated,
		"workers", cfg.WorkerCount,
	)

	// Wait for shutdown signal
	sig := <-sigChan
	slog.Info("shutdown_signal_received", "signal", sig.String())
	cancel()

	// Graceful shutdown
	if listener != nil {
		listener.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("admin_shutdown_error", "error", err)
	}

	slog.Info("shutdown_complete")
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}
