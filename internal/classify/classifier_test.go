package classify

import (
	"testing"

	"github.com/hlwatch/engine/internal/store"
)

var testThresholds = Thresholds{
	DepositUSD: 20_000_000,
	ShortUSD:   25_000_000,
}

func TestClassificationAsymmetry(t *testing.T) {
	smallDeposit := []store.Transfer{{
		Kind: "deposit", Token: "USDC", AmountUSD: 100, TimeMs: 1000, Hash: "0x1",
	}}

	// Elevated: a $100 deposit produces a finding
	findings := Classify("0xV", true, nil, smallDeposit, testThresholds)
	if len(findings) != 1 || findings[0].Kind != store.FindingElevatedActivity {
		t.Errorf("elevated $100 deposit: expected ELEVATED_ACTIVITY, got %v", findings)
	}

	// Non-elevated: the same deposit produces nothing
	findings = Classify("0xN", false, nil, smallDeposit, testThresholds)
	if len(findings) != 0 {
		t.Errorf("non-elevated $100 deposit: expected no findings, got %v", findings)
	}

	// Non-elevated: $30M deposit crosses the $20M threshold
	bigDeposit := []store.Transfer{{
		Kind: "deposit", Token: "USDC", AmountUSD: 30_000_000, TimeMs: 1000, Hash: "0x2",
	}}
	findings = Classify("0xN", false, nil, bigDeposit, testThresholds)
	if len(findings) != 1 || findings[0].Kind != store.FindingLargeDeposit {
		t.Errorf("non-elevated $30M deposit: expected LARGE_DEPOSIT, got %v", findings)
	}
}

func TestNonElevatedShortRules(t *testing.T) {
	fills := []store.Fill{
		// Large opening short: alert
		{Token: "BTC", Side: "sell", Dir: "Open Short", Notional: 26_000_000, TimeMs: 2000, TradeID: "1"},
		// Large long: no alert
		{Token: "BTC", Side: "buy", Dir: "Open Long", Notional: 26_000_000, TimeMs: 2100, TradeID: "2"},
		// Small short: no alert
		{Token: "ETH", Side: "sell", Notional: 1_000_000, TimeMs: 2200, TradeID: "3"},
		// Short-open label without a side still counts
		{Token: "SOL", Dir: "Open Short", Notional: 30_000_000, TimeMs: 2300, TradeID: "4"},
	}

	findings := Classify("0xN", false, fills, nil, testThresholds)
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d: %v", len(findings), findings)
	}
	for _, f := range findings {
		if f.Kind != store.FindingLargeOpenShort {
			t.Errorf("expected LARGE_OPEN_SHORT, got %s", f.Kind)
		}
	}
}

func TestElevatedUnconditional(t *testing.T) {
	fills := []store.Fill{
		{Token: "BTC", Side: "buy", Notional: 5, TimeMs: 100, TradeID: "1"},
	}
	transfers := []store.Transfer{
		{Kind: "deposit", Token: "USDC", AmountUSD: 1, TimeMs: 200, Hash: "0xa"},
		{Kind: "withdraw", Token: "USDC", AmountUSD: 2, TimeMs: 300, Hash: "0xb"},
		// Internal transfers are not alerted even for elevated wallets
		{Kind: "internal", Token: "USDC", AmountUSD: 3, TimeMs: 400, Hash: "0xc"},
	}

	findings := Classify("0xV", true, fills, transfers, testThresholds)
	if len(findings) != 3 {
		t.Fatalf("expected 3 findings, got %d: %v", len(findings), findings)
	}
	for _, f := range findings {
		if f.Kind != store.FindingElevatedActivity {
			t.Errorf("expected ELEVATED_ACTIVITY, got %s", f.Kind)
		}
	}
}

func TestZeroTimestampRanksLast(t *testing.T) {
	fills := []store.Fill{
		{Token: "BTC", Side: "sell", Notional: 30_000_000, TimeMs: 0, TradeID: "no-ts"},
		{Token: "BTC", Side: "sell", Notional: 30_000_000, TimeMs: 5000, TradeID: "late"},
		{Token: "BTC", Side: "sell", Notional: 30_000_000, TimeMs: 1000, TradeID: "early"},
	}

	findings := Classify("0xN", false, fills, nil, testThresholds)
	if len(findings) != 3 {
		t.Fatalf("expected 3 findings, got %d", len(findings))
	}
	if findings[0].SourceID != "early" || findings[1].SourceID != "late" || findings[2].SourceID != "no-ts" {
		t.Errorf("unexpected ordering: %v, %v, %v",
			findings[0].SourceID, findings[1].SourceID, findings[2].SourceID)
	}
}

func TestNonStableDepositIgnored(t *testing.T) {
	transfers := []store.Transfer{{
		Kind: "deposit", Token: "WETH", AmountUSD: 50_000_000, TimeMs: 1000, Hash: "0x1",
	}}
	if findings := Classify("0xN", false, nil, transfers, testThresholds); len(findings) != 0 {
		t.Errorf("non-stable deposit should not alert, got %v", findings)
	}
}
