// Package ingest fetches and normalizes account activity from the exchange.
package ingest

import (
	"strconv"
	"strings"
)

// Normalized sides. Upstream encodes direction several ways (B/A, buy/sell,
// bid/ask, long/short); everything collapses to these two.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Normalized transfer kinds.
const (
	TransferDeposit  = "deposit"
	TransferWithdraw = "withdraw"
	TransferInternal = "internal"
)

// NormalizeSide maps an upstream side encoding to SideBuy or SideSell.
// Unknown encodings return "" so callers can skip rather than misclassify.
func NormalizeSide(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "b", "buy", "bid", "long":
		return SideBuy
	case "a", "s", "sell", "ask", "short":
		return SideSell
	default:
		return ""
	}
}

// NormalizeTransferKind maps an upstream ledger delta type to a transfer kind.
func NormalizeTransferKind(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit":
		return TransferDeposit
	case "withdraw", "withdrawal":
		return TransferWithdraw
	case "internaltransfer":
		return TransferInternal
	default:
		return ""
	}
}

// IsShortOpen reports whether a fill represents an opening short position:
// either the normalized side is sell, or the upstream direction label marks
// a short open.
func IsShortOpen(side, dir string) bool {
	if side == SideSell {
		return true
	}
	label := strings.ToLower(dir)
	return strings.Contains(label, "open") && strings.Contains(label, "short")
}

// parseFloatSafe parses a string to float64, returning 0 on malformed input.
func parseFloatSafe(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// abs returns the absolute value of f.
func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
