// Package metrics provides operational stats tracking for the engine.
package metrics

import (
	"sync"
	"time"
)

// API health states derived from the rolling success/failure ratio.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Thresholds for the degradation warning.
const (
	// minCallsForRatio avoids flapping on a tiny sample
	minCallsForRatio = 10
	// degradedFailureRatio triggers the operational warning
	degradedFailureRatio = 0.3
)

// Snapshot is a point-in-time view of the engine's counters, served by the
// admin status endpoint and the periodic webhook status report.
type Snapshot struct {
	UptimeSeconds    int64     `json:"uptime_seconds"`
	ScansCompleted   int64     `json:"scans_completed"`
	MarketScans      int64     `json:"market_scans_completed"`
	APISuccessful    int64     `json:"api_calls_successful"`
	APIFailed        int64     `json:"api_calls_failed"`
	APIStatus        string    `json:"api_status"`
	LastAPICheck     time.Time `json:"last_api_check"`
	AlertsSent       int64     `json:"alerts_sent"`
	ClustersDetected int64     `json:"clusters_detected"`
	WalletsPromoted  int64     `json:"wallets_promoted"`
	WatchedAddresses int       `json:"watched_addresses"`
	ElevatedWallets  int       `json:"elevated_wallets"`
}

// Tracker provides thread-safe counters for one engine process.
type Tracker struct {
	mu               sync.RWMutex
	startTime        time.Time
	scansCompleted   int64
	marketScans      int64
	apiSuccess       int64
	apiFailure       int64
	apiStatus        string
	lastAPICheck     time.Time
	alertsSent       int64
	clustersDetected int64
	walletsPromoted  int64
	warnedDegraded   bool
}

// NewTracker creates a Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		startTime: time.Now(),
		apiStatus: StatusUnknown,
	}
}

// IncrementScans records one completed address scan cycle.
func (t *Tracker) IncrementScans() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scansCompleted++
}

// IncrementMarketScans records one completed cluster-detection pass.
func (t *Tracker) IncrementMarketScans() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marketScans++
}

// RecordAPISuccess records a successful upstream call.
func (t *Tracker) RecordAPISuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apiSuccess++
	t.lastAPICheck = time.Now()
	t.apiStatus = StatusHealthy
	t.warnedDegraded = false
}

// RecordAPIFailure records a failed upstream call and reports whether the
// caller should emit a one-shot degradation warning: failures dominate the
// rolling ratio and no warning was sent since the API last looked healthy.
func (t *Tracker) RecordAPIFailure() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.apiFailure++
	t.lastAPICheck = time.Now()

	total := t.apiSuccess + t.apiFailure
	if total < minCallsForRatio {
		return false
	}
	if float64(t.apiFailure)/float64(total) <= degradedFailureRatio {
		return false
	}

	t.apiStatus = StatusDegraded
	if t.warnedDegraded {
		return false
	}
	t.warnedDegraded = true
	return true
}

// IncrementAlerts records one delivered notification.
func (t *Tracker) IncrementAlerts() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alertsSent++
}

// IncrementClusters records one newly detected cluster.
func (t *Tracker) IncrementClusters() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clustersDetected++
}

// AddPromoted records newly elevated wallets.
func (t *Tracker) AddPromoted(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.walletsPromoted += int64(n)
}

// SuccessRate returns the fraction of successful upstream calls, and the
// total call count.
func (t *Tracker) SuccessRate() (float64, int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := t.apiSuccess + t.apiFailure
	if total == 0 {
		return 1, 0
	}
	return float64(t.apiSuccess) / float64(total), total
}

// Snapshot returns a point-in-time view of the counters. Watched/elevated
// set sizes are supplied by the caller since the tracker does not own them.
func (t *Tracker) Snapshot(watched, elevated int) Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:    int64(time.Since(t.startTime).Seconds()),
		ScansCompleted:   t.scansCompleted,
		MarketScans:      t.marketScans,
		APISuccessful:    t.apiSuccess,
		APIFailed:        t.apiFailure,
		APIStatus:        t.apiStatus,
		LastAPICheck:     t.lastAPICheck,
		AlertsSent:       t.alertsSent,
		ClustersDetected: t.clustersDetected,
		WalletsPromoted:  t.walletsPromoted,
		WatchedAddresses: watched,
		ElevatedWallets:  elevated,
	}
}
