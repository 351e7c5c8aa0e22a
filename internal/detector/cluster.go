// Package detector finds coordinated trading clusters across watched wallets.
package detector

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/hlwatch/engine/internal/ingest"
	"github.com/hlwatch/engine/internal/store"
)

// Gate thresholds for a candidate cluster.
const (
	// MinClusterTrades is the minimum cardinality for a cluster
	MinClusterTrades = 3
	// MinClusterWallets is the minimum number of distinct participants
	MinClusterWallets = 2
	// AlignmentGate is the minimum directional alignment ratio
	AlignmentGate = 0.80

	// NeutralWalletAgeDays is used when no age could be looked up
	NeutralWalletAgeDays = 30
)

// Config carries the tunable cluster-detection thresholds.
type Config struct {
	WindowMinutes int
	MinScore      int
	MinNotional   float64
}

// Detector inspects the recent large-trade archive for coordinated activity.
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect groups trades by instrument and returns every subset that passes
// the coordination gates with a suspicion score at or above the configured
// minimum. Input is the recent large-trade archive; the detector itself
// performs no I/O.
func (d *Detector) Detect(trades []store.LargeTrade) []store.Cluster {
	if len(trades) < MinClusterTrades {
		return nil
	}

	byToken := make(map[string][]store.LargeTrade)
	for _, t := range trades {
		if t.Token == "" {
			continue
		}
		byToken[t.Token] = append(byToken[t.Token], t)
	}

	// wallet -> set of instruments traded inside the window, for the
	// cross-instrument recurrence signal
	walletTokens := make(map[string]map[string]bool)
	for _, t := range trades {
		w := strings.ToLower(t.Wallet)
		if walletTokens[w] == nil {
			walletTokens[w] = make(map[string]bool)
		}
		walletTokens[w][t.Token] = true
	}

	tokens := make([]string, 0, len(byToken))
	for token := range byToken {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	var clusters []store.Cluster
	for _, token := range tokens {
		if c, ok := d.detectToken(token, byToken[token], walletTokens); ok {
			clusters = append(clusters, c)
		}
	}
	return clusters
}

// detectToken evaluates one instrument's trade set against the gates.
func (d *Detector) detectToken(token string, trades []store.LargeTrade, walletTokens map[string]map[string]bool) (store.Cluster, bool) {
	if len(trades) < MinClusterTrades {
		return store.Cluster{}, false
	}

	var (
		minTs, maxTs  int64
		totalNotional float64
		sellCount     int
		buyCount      int
		ageSum        float64
		ageCount      int
	)
	walletSet := make(map[string]bool)

	for _, t := range trades {
		if minTs == 0 || t.TimeMs < minTs {
			minTs = t.TimeMs
		}
		if t.TimeMs > maxTs {
			maxTs = t.TimeMs
		}
		totalNotional += t.Notional
		walletSet[strings.ToLower(t.Wallet)] = true

		switch ingest.NormalizeSide(t.Side) {
		case ingest.SideSell:
			sellCount++
		case ingest.SideBuy:
			buyCount++
		}

		age := t.WalletAgeDays
		if age <= 0 {
			age = NeutralWalletAgeDays
		}
		ageSum += float64(age)
		ageCount++
	}

	if len(walletSet) < MinClusterWallets {
		return store.Cluster{}, false
	}

	spanMinutes := float64(maxTs-minTs) / (1000 * 60)
	if spanMinutes > float64(d.cfg.WindowMinutes) {
		return store.Cluster{}, false
	}

	if totalNotional < d.cfg.MinNotional {
		return store.Cluster{}, false
	}

	// Trades whose side fails to normalize stay in the denominator so they
	// dilute alignment instead of inflating it.
	sided := sellCount + buyCount
	if sided == 0 {
		return store.Cluster{}, false
	}
	alignment := float64(max(sellCount, buyCount)) / float64(len(trades))
	if alignment < AlignmentGate {
		return store.Cluster{}, false
	}

	recurrent := 0
	for w := range walletSet {
		if len(walletTokens[w]) >= 2 {
			recurrent++
		}
	}

	score := Score(Signals{
		SpanMinutes:      spanMinutes,
		TotalNotional:    totalNotional,
		WalletCount:      len(walletSet),
		AvgWalletAgeDays: ageSum / float64(ageCount),
		Alignment:        alignment,
		SizeCV:           notionalCV(trades),
		RecurrentWallets: recurrent,
	})
	if score < d.cfg.MinScore {
		return store.Cluster{}, false
	}

	direction := store.DirectionLong
	if sellCount > buyCount {
		direction = store.DirectionShort
	}

	wallets := make([]string, 0, len(walletSet))
	for w := range walletSet {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	return store.Cluster{
		ID: store.Digest(
			strconv.FormatInt(minTs, 10),
			strconv.Itoa(len(wallets)),
			token,
			direction,
		),
		Wallets:       wallets,
		Token:         token,
		Direction:     direction,
		Trades:        trades,
		TotalNotional: totalNotional,
		TradeCount:    len(trades),
		WalletCount:   len(wallets),
		SpanMinutes:   spanMinutes,
		Alignment:     alignment,
		Score:         score,
		FirstTradeMs:  minTs,
		LastTradeMs:   maxTs,
	}, true
}

// notionalCV computes the coefficient of variation of trade notionals.
func notionalCV(trades []store.LargeTrade) float64 {
	if len(trades) == 0 {
		return 0
	}

	var sum float64
	for _, t := range trades {
		sum += t.Notional
	}
	mean := sum / float64(len(trades))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, t := range trades {
		d := t.Notional - mean
		variance += d * d
	}
	variance /= float64(len(trades))

	return math.Sqrt(variance) / mean
}
