package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/hlwatch/engine/internal/store"
)

const (
	// DefaultAPIURL is the official Hyperliquid info endpoint
	DefaultAPIURL = "https://api.hyperliquid.xyz/info"
	// DefaultTimeout bounds every outbound request
	DefaultTimeout = 10 * time.Second
)

// Client fetches fills and transfers for an address from the Hyperliquid
// info API. Results are filtered to timestamp >= sinceMs; an empty list is
// a valid "no new activity" response.
type Client struct {
	apiURL string
	client *http.Client
}

// NewClient creates a ledger client. Empty arguments select defaults.
func NewClient(apiURL string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		apiURL: apiURL,
		client: &http.Client{Timeout: timeout},
	}
}

// rawFill mirrors the userFills response shape. Numeric trade fields arrive
// as strings; identifiers arrive as numbers.
type rawFill struct {
	Coin string `json:"coin"`
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Side string `json:"side"`
	Time int64  `json:"time"`
	Dir  string `json:"dir"`
	Hash string `json:"hash"`
	OID  int64  `json:"oid"`
	TID  int64  `json:"tid"`
}

// rawLedgerUpdate mirrors the userNonFundingLedgerUpdates response shape.
type rawLedgerUpdate struct {
	Time  int64  `json:"time"`
	Hash  string `json:"hash"`
	Delta struct {
		Type string `json:"type"`
		USDC string `json:"usdc"`
	} `json:"delta"`
}

// FetchFills returns normalized fills for address with time >= sinceMs.
func (c *Client) FetchFills(ctx context.Context, address string, sinceMs int64) ([]store.Fill, error) {
	body, err := c.post(ctx, map[string]string{
		"type": "userFills",
		"user": address,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch fills for %s: %w", address, err)
	}

	var raws []rawFill
	if err := sonnet.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode fills for %s: %w", address, err)
	}

	fills := make([]store.Fill, 0, len(raws))
	for _, r := range raws {
		if r.Time < sinceMs {
			continue
		}

		size := abs(parseFloatSafe(r.Sz))
		px := parseFloatSafe(r.Px)

		fills = append(fills, store.Fill{
			Token:    r.Coin,
			Side:     NormalizeSide(r.Side),
			Dir:      r.Dir,
			Size:     size,
			Price:    px,
			Notional: size * px,
			TimeMs:   r.Time,
			TradeID:  strconv.FormatInt(r.TID, 10),
			OrderID:  strconv.FormatInt(r.OID, 10),
		})
	}

	return fills, nil
}

// FetchTransfers returns normalized deposits/withdrawals for address with
// time >= sinceMs. Ledger entries that are not transfers are skipped.
func (c *Client) FetchTransfers(ctx context.Context, address string, sinceMs int64) ([]store.Transfer, error) {
	body, err := c.post(ctx, map[string]string{
		"type": "userNonFundingLedgerUpdates",
		"user": address,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch transfers for %s: %w", address, err)
	}

	var raws []rawLedgerUpdate
	if err := sonnet.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode transfers for %s: %w", address, err)
	}

	transfers := make([]store.Transfer, 0, len(raws))
	for _, r := range raws {
		if r.Time < sinceMs {
			continue
		}

		kind := NormalizeTransferKind(r.Delta.Type)
		if kind == "" {
			continue
		}

		transfers = append(transfers, store.Transfer{
			Kind:      kind,
			Token:     "USDC",
			AmountUSD: abs(parseFloatSafe(r.Delta.USDC)),
			TimeMs:    r.Time,
			Hash:      r.Hash,
		})
	}

	return transfers, nil
}

// AccountAgeDays estimates a wallet's age from its earliest visible fill.
// The info API only returns recent history, so this is a floor on the true
// age; callers fall back to a neutral default on error.
func (c *Client) AccountAgeDays(ctx context.Context, address string) (int, error) {
	body, err := c.post(ctx, map[string]string{
		"type": "userFills",
		"user": address,
	})
	if err != nil {
		return 0, fmt.Errorf("account age for %s: %w", address, err)
	}

	var raws []rawFill
	if err := sonnet.Unmarshal(body, &raws); err != nil {
		return 0, fmt.Errorf("decode account age for %s: %w", address, err)
	}

	var earliest int64
	for _, r := range raws {
		if r.Time > 0 && (earliest == 0 || r.Time < earliest) {
			earliest = r.Time
		}
	}
	if earliest == 0 {
		return 0, fmt.Errorf("no fill history for %s", address)
	}

	days := int(time.Since(time.UnixMilli(earliest)).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, nil
}

// post sends one info-API request and returns the response body.
func (c *Client) post(ctx context.Context, payload map[string]string) ([]byte, error) {
	encoded, err := sonnet.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "hlwatch-engine/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
