package ingest

import "testing"

func TestNormalizeSide(t *testing.T) {
	cases := map[string]string{
		"B":     SideBuy,
		"buy":   SideBuy,
		"BID":   SideBuy,
		"long":  SideBuy,
		"A":     SideSell,
		"sell":  SideSell,
		"Short": SideSell,
		"ask":   SideSell,
		"s":     SideSell,
		"":      "",
		"weird": "",
	}

	for in, want := range cases {
		if got := NormalizeSide(in); got != want {
			t.Errorf("NormalizeSide(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeTransferKind(t *testing.T) {
	cases := map[string]string{
		"deposit":          TransferDeposit,
		"Deposit":          TransferDeposit,
		"withdraw":         TransferWithdraw,
		"withdrawal":       TransferWithdraw,
		"internalTransfer": TransferInternal,
		"liquidation":      "",
		"":                 "",
	}

	for in, want := range cases {
		if got := NormalizeTransferKind(in); got != want {
			t.Errorf("NormalizeTransferKind(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsShortOpen(t *testing.T) {
	if !IsShortOpen(SideSell, "") {
		t.Error("sell side should count as short open")
	}
	if !IsShortOpen("", "Open Short") {
		t.Error("Open Short label should count as short open")
	}
	if IsShortOpen(SideBuy, "Open Long") {
		t.Error("buy-side long open should not count as short open")
	}
	if IsShortOpen(SideBuy, "Close Short") {
		t.Error("closing a short is not a short open")
	}
}

func TestParseFloatSafe(t *testing.T) {
	if got := parseFloatSafe("29792.5"); got != 29792.5 {
		t.Errorf("expected 29792.5, got %f", got)
	}
	if got := parseFloatSafe(""); got != 0 {
		t.Errorf("empty string should parse to 0, got %f", got)
	}
	if got := parseFloatSafe("not-a-number"); got != 0 {
		t.Errorf("malformed input should parse to 0, got %f", got)
	}
}
