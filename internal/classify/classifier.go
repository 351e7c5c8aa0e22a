// Package classify turns one address's fetched activity into findings.
package classify

import (
	"sort"
	"strings"

	"github.com/hlwatch/engine/internal/ingest"
	"github.com/hlwatch/engine/internal/store"
)

// Thresholds are the notional floors for non-elevated addresses.
type Thresholds struct {
	DepositUSD float64
	ShortUSD   float64
}

// stableTokens are the settlement assets whose deposits count toward the
// large-deposit rule.
var stableTokens = map[string]bool{
	"USDC": true,
	"USDT": true,
}

// Classify returns the ordered findings for one address. It performs no I/O
// and no persistence; elevation status is supplied by the caller.
//
// Elevated addresses alert on every fill and every deposit/withdrawal
// regardless of size. Non-elevated addresses alert only on stable-asset
// deposits at or above the deposit threshold and on opening shorts at or
// above the short threshold.
func Classify(address string, elevated bool, fills []store.Fill, transfers []store.Transfer, th Thresholds) []store.Finding {
	var out []store.Finding

	for _, tr := range transfers {
		token := strings.ToUpper(tr.Token)

		if elevated {
			if tr.Kind != ingest.TransferDeposit && tr.Kind != ingest.TransferWithdraw {
				continue
			}
			out = append(out, store.Finding{
				Kind:     store.FindingElevatedActivity,
				Address:  address,
				Token:    token,
				Subtype:  strings.ToUpper(tr.Kind),
				Notional: tr.AmountUSD,
				TimeMs:   tr.TimeMs,
				SourceID: tr.Hash,
			})
			continue
		}

		if stableTokens[token] && tr.Kind == ingest.TransferDeposit && tr.AmountUSD >= th.DepositUSD {
			out = append(out, store.Finding{
				Kind:     store.FindingLargeDeposit,
				Address:  address,
				Token:    token,
				Notional: tr.AmountUSD,
				TimeMs:   tr.TimeMs,
				SourceID: tr.Hash,
			})
		}
	}

	for _, f := range fills {
		if elevated {
			out = append(out, store.Finding{
				Kind:     store.FindingElevatedActivity,
				Address:  address,
				Token:    f.Token,
				Subtype:  tradeSubtype(f),
				Size:     f.Size,
				Price:    f.Price,
				Notional: f.Notional,
				TimeMs:   f.TimeMs,
				SourceID: f.TradeID,
			})
			continue
		}

		if ingest.IsShortOpen(f.Side, f.Dir) && f.Notional >= th.ShortUSD {
			out = append(out, store.Finding{
				Kind:     store.FindingLargeOpenShort,
				Address:  address,
				Token:    f.Token,
				Size:     f.Size,
				Price:    f.Price,
				Notional: f.Notional,
				TimeMs:   f.TimeMs,
				SourceID: f.TradeID,
			})
		}
	}

	// Chronological order; entries with a missing timestamp rank last.
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].TimeMs, out[j].TimeMs
		if ti <= 0 {
			return false
		}
		if tj <= 0 {
			return true
		}
		return ti < tj
	})

	return out
}

// tradeSubtype builds a human-readable label for an elevated trade finding.
func tradeSubtype(f store.Fill) string {
	if f.Dir != "" {
		return strings.ToUpper(f.Dir)
	}
	return strings.ToUpper(f.Side)
}
