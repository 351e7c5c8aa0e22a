// Package scanner runs the polling scan loop that drives the engine.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hlwatch/engine/internal/classify"
	"github.com/hlwatch/engine/internal/config"
	"github.com/hlwatch/engine/internal/detector"
	"github.com/hlwatch/engine/internal/metrics"
	"github.com/hlwatch/engine/internal/store"
	"github.com/hlwatch/engine/internal/watchlist"
)

// Fetcher is the upstream activity source for one address.
type Fetcher interface {
	FetchFills(ctx context.Context, address string, sinceMs int64) ([]store.Fill, error)
	FetchTransfers(ctx context.Context, address string, sinceMs int64) ([]store.Transfer, error)
	AccountAgeDays(ctx context.Context, address string) (int, error)
}

// Alerter delivers findings and operational reports.
type Alerter interface {
	Enabled() bool
	NotifyFindings(ctx context.Context, address string, findings []store.Finding, elevated bool) error
	NotifyCluster(ctx context.Context, c store.Cluster) error
	NotifyStatus(ctx context.Context, snap metrics.Snapshot) error
	NotifyDegraded(ctx context.Context, lastErr string, successRate float64) error
}

// Scanner owns the scan cycle: fetch, classify, dedup, alert, advance
// cursors, then sweep the large-trade archive for clusters.
type Scanner struct {
	cfg       *config.Config
	store     *store.Store
	fetcher   Fetcher
	alerter   Alerter
	watchlist *watchlist.Manager
	tracker   *metrics.Tracker
	detector  *detector.Detector

	ageMu    sync.Mutex
	ageCache map[string]int

	lastStatus time.Time
}

// New creates a Scanner.
func New(cfg *config.Config, st *store.Store, fetcher Fetcher, alerter Alerter, wl *watchlist.Manager, tracker *metrics.Tracker) *Scanner {
	return &Scanner{
		cfg:       cfg,
		store:     st,
		fetcher:   fetcher,
		alerter:   alerter,
		watchlist: wl,
		tracker:   tracker,
		detector: detector.NewDetector(detector.Config{
			WindowMinutes: cfg.ClusterWindowMinutes,
			MinScore:      cfg.ClusterMinScore,
			MinNotional:   cfg.ClusterMinNotional,
		}),
		ageCache:   make(map[string]int),
		lastStatus: time.Now(),
	}
}

// Run executes scan cycles until the context is canceled. A failed cycle is
// logged and the loop continues on schedule.
func (s *Scanner) Run(ctx context.Context) {
	slog.Info("scanner_started",
		"poll_interval", s.cfg.PollInterval.String(),
		"workers", s.cfg.WorkerCount,
		"cluster_detection", s.cfg.ClusterEnabled,
	)

	for {
		s.RunCycle(ctx)
		s.maybeStatusReport(ctx)

		// Fixed sleep after each pass, so a slow cycle never eats into the
		// idle gap before the next one
		timer := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("scanner_stopped")
			return
		case <-timer.C:
		}
	}
}

// RunCycle performs one full scan pass over the watched set followed by a
// cluster sweep of the large-trade archive.
func (s *Scanner) RunCycle(ctx context.Context) {
	cycleStart := time.Now()
	cycleStartMs := cycleStart.UnixMilli()
	addresses := s.watchlist.Watched()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WorkerCount)

	for _, addr := range addresses {
		addr := addr
		g.Go(func() error {
			if err := s.scanAddress(gctx, addr, cycleStartMs); err != nil {
				slog.Error("address_scan_failed", "address", addr, "error", err)
			}
			return nil
		})
	}
	g.Wait()

	s.tracker.IncrementScans()

	if s.cfg.ClusterEnabled {
		if err := s.clusterSweep(ctx); err != nil {
			slog.Error("cluster_sweep_failed", "error", err)
		}
		s.tracker.IncrementMarketScans()
	}

	slog.Debug("scan_cycle_complete",
		"addresses", len(addresses),
		"duration_ms", time.Since(cycleStart).Milliseconds(),
	)
}

// scanAddress fetches, classifies, dedups and alerts for one address, then
// advances its cursor to the cycle start. A fetch failure leaves the cursor
// untouched so the next cycle retries the same range.
func (s *Scanner) scanAddress(ctx context.Context, address string, cycleStartMs int64) error {
	elevated := s.watchlist.IsElevated(address)

	lookback := s.cfg.Lookback
	if elevated {
		lookback = s.cfg.ElevatedLookback
	}
	fallbackMs := cycleStartMs - lookback.Milliseconds()

	source := store.CursorSource(address)
	sinceMs, err := s.store.GetCursor(source, fallbackMs)
	if err != nil {
		return err
	}

	// Fills and transfers are fetched as a pair: a failure on either side
	// aborts the address so classification never sees half a picture.
	var (
		fills     []store.Fill
		transfers []store.Transfer
	)
	fg, fctx := errgroup.WithContext(ctx)
	fg.Go(func() error {
		var ferr error
		fills, ferr = s.fetcher.FetchFills(fctx, address, sinceMs)
		return ferr
	})
	fg.Go(func() error {
		var terr error
		transfers, terr = s.fetcher.FetchTransfers(fctx, address, sinceMs)
		return terr
	})
	if err := fg.Wait(); err != nil {
		if s.tracker.RecordAPIFailure() {
			rate, _ := s.tracker.SuccessRate()
			if nerr := s.alerter.NotifyDegraded(ctx, err.Error(), rate); nerr != nil {
				slog.Error("degradation_alert_failed", "error", nerr)
			}
		}
		return err
	}
	s.tracker.RecordAPISuccess()

	s.archiveLargeFills(ctx, address, fills)

	findings := classify.Classify(address, elevated, fills, transfers, classify.Thresholds{
		DepositUSD: s.cfg.DepositThresholdUSD,
		ShortUSD:   s.cfg.ShortThresholdUSD,
	})

	fresh, err := s.dedupFindings(findings)
	if err != nil {
		return err
	}

	if len(fresh) > 0 {
		slog.Info("findings",
			"address", address,
			"count", len(fresh),
			"elevated", elevated,
		)
		s.alert(ctx, address, fresh, elevated)
	}

	return s.store.SetCursor(source, cycleStartMs)
}

// archiveLargeFills records fills above the market-wide minimum into the
// large-trade archive for the cluster sweep.
func (s *Scanner) archiveLargeFills(ctx context.Context, address string, fills []store.Fill) {
	for _, f := range fills {
		if f.Notional < s.cfg.MarketMinTradeSize {
			continue
		}

		err := s.store.RecordLargeTrade(store.LargeTrade{
			TradeID:       f.TradeID,
			Wallet:        address,
			Token:         f.Token,
			Side:          f.Side,
			Notional:      f.Notional,
			Price:         f.Price,
			Size:          f.Size,
			TimeMs:        f.TimeMs,
			WalletAgeDays: s.WalletAge(ctx, address),
		})
		if err != nil {
			slog.Error("trade_archive_failed", "address", address, "trade_id", f.TradeID, "error", err)
		}
	}
}

// dedupFindings drops findings whose digest was already seen in any earlier
// cycle, marking survivors as seen.
func (s *Scanner) dedupFindings(findings []store.Finding) ([]store.Finding, error) {
	var fresh []store.Finding
	for _, f := range findings {
		digest := store.Digest(f.Address, f.Kind, f.SourceID, strconv.FormatInt(f.TimeMs, 10))

		seen, err := s.store.IsSeen(digest)
		if err != nil {
			return nil, err
		}
		if seen {
			continue
		}

		if err := s.store.MarkSeen(digest); err != nil {
			return nil, err
		}
		fresh = append(fresh, f)
	}
	return fresh, nil
}

// alert delivers the cycle's findings, collapsing bursts above the per-alert
// cap into a single aggregate line.
func (s *Scanner) alert(ctx context.Context, address string, findings []store.Finding, elevated bool) {
	if len(findings) > s.cfg.MaxFindingsPerAlert {
		var total float64
		for _, f := range findings {
			total += f.Notional
		}
		findings = []store.Finding{{
			Kind:     store.FindingAggregate,
			Address:  address,
			Subtype:  fmt.Sprintf("%d findings this cycle", len(findings)),
			Notional: total,
		}}
	}

	if err := s.alerter.NotifyFindings(ctx, address, findings, elevated); err != nil {
		slog.Error("alert_failed", "address", address, "error", err)
		return
	}
	if s.alerter.Enabled() {
		s.tracker.IncrementAlerts()
	}
}

// clusterSweep runs detection over the recent large-trade archive. Each
// cluster signature alerts once; recurrences are absorbed by the seen set.
func (s *Scanner) clusterSweep(ctx context.Context) error {
	trades, err := s.store.RecentLargeTrades(s.cfg.ClusterWindowMinutes, s.cfg.MarketMinTradeSize)
	if err != nil {
		return err
	}

	for _, c := range s.detector.Detect(trades) {
		digest := store.Digest("cluster", c.ID)
		seen, err := s.store.IsSeen(digest)
		if err != nil {
			return err
		}
		if seen {
			continue
		}

		if err := s.store.SaveCluster(c); err != nil {
			return err
		}
		if err := s.store.MarkSeen(digest); err != nil {
			return err
		}
		s.tracker.IncrementClusters()

		slog.Warn("suspicious_cluster",
			"cluster_id", c.ID[:12],
			"token", c.Token,
			"direction", c.Direction,
			"wallets", c.WalletCount,
			"score", c.Score,
			"total_notional", c.TotalNotional,
		)

		if err := s.alerter.NotifyCluster(ctx, c); err != nil {
			slog.Error("cluster_alert_failed", "cluster_id", c.ID[:12], "error", err)
		} else if s.alerter.Enabled() {
			s.tracker.IncrementAlerts()
		}

		reason := fmt.Sprintf("cluster %s (score: %d)", c.ID[:12], c.Score)
		added, err := s.watchlist.Promote(c.Wallets, reason)
		if err != nil {
			slog.Error("promotion_failed", "cluster_id", c.ID[:12], "error", err)
			continue
		}
		s.tracker.AddPromoted(len(added))
	}

	return nil
}

// WalletAge returns the cached wallet age, looking it up once per process.
// Lookups that fail fall back to the neutral age. Shared with the live fill
// feed so both ingest paths stamp the same age.
func (s *Scanner) WalletAge(ctx context.Context, address string) int {
	s.ageMu.Lock()
	if age, ok := s.ageCache[address]; ok {
		s.ageMu.Unlock()
		return age
	}
	s.ageMu.Unlock()

	age, err := s.fetcher.AccountAgeDays(ctx, address)
	if err != nil {
		slog.Debug("wallet_age_lookup_failed", "address", address, "error", err)
		age = detector.NeutralWalletAgeDays
	}

	s.ageMu.Lock()
	s.ageCache[address] = age
	s.ageMu.Unlock()
	return age
}

// maybeStatusReport sends the periodic operational report when due.
func (s *Scanner) maybeStatusReport(ctx context.Context) {
	if time.Since(s.lastStatus) < s.cfg.StatusInterval {
		return
	}
	s.lastStatus = time.Now()

	watched, elevated := s.watchlist.Counts()
	snap := s.tracker.Snapshot(watched, elevated)
	if err := s.alerter.NotifyStatus(ctx, snap); err != nil {
		slog.Error("status_report_failed", "error", err)
	}
}
