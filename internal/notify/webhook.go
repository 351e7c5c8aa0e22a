// Package notify delivers alerts to a Slack or Discord webhook.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/hlwatch/engine/internal/metrics"
	"github.com/hlwatch/engine/internal/store"
)

// Delivery is fire-and-forget: a failed send never rolls back store state
// already committed, callers just log and move on.

const defaultTimeout = 10 * time.Second

// Targets supported by the webhook sender.
const (
	TargetSlack   = "slack"
	TargetDiscord = "discord"
)

// Notifier posts formatted alerts to a single webhook URL.
type Notifier struct {
	url    string
	target string
	client *http.Client
}

// NewNotifier creates a Notifier. An empty URL disables delivery.
func NewNotifier(url, target string) *Notifier {
	return &Notifier{
		url:    url,
		target: strings.ToLower(target),
		client: &http.Client{Timeout: defaultTimeout},
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// NotifyFindings sends one alert covering all surviving findings for an
// address in one cycle.
func (n *Notifier) NotifyFindings(ctx context.Context, address string, findings []store.Finding, elevated bool) error {
	if !n.Enabled() || len(findings) == 0 {
		return nil
	}

	marker := ""
	if elevated {
		marker = "ELEVATED WALLET "
	}
	header := fmt.Sprintf("%sHyperliquid Alert - %s", marker, shortAddr(address))

	var lines []string
	for _, f := range findings {
		lines = append(lines, findingLine(f))
	}

	if n.target == TargetDiscord {
		content := "**" + header + "**\n" + strings.Join(lines, "\n")
		return n.post(ctx, map[string]any{"content": content})
	}

	blocks := []any{
		headerBlock(header),
		sectionBlock(strings.Join(lines, "\n")),
		dividerBlock(),
	}
	return n.post(ctx, map[string]any{"blocks": blocks})
}

// NotifyCluster sends the suspicious-cluster alert.
func (n *Notifier) NotifyCluster(ctx context.Context, c store.Cluster) error {
	if !n.Enabled() {
		return nil
	}

	var wallets []string
	for i, w := range c.Wallets {
		if i >= 10 {
			wallets = append(wallets, fmt.Sprintf("... and %d more", len(c.Wallets)-10))
			break
		}
		wallets = append(wallets, "- `"+shortAddr(w)+"` ($"+formatUSD(walletNotional(c, w))+")")
	}

	body := fmt.Sprintf(
		"*Suspicion score: %d/100*\n\n"+
			"Wallets: *%d*\n"+
			"Instrument: *%s*\n"+
			"Direction: *%s*\n"+
			"Total notional: *$%s*\n"+
			"Time window: *%.1f minutes*\n"+
			"Alignment: *%.0f%%*\n\n"+
			"First trade: `%s`\n"+
			"Last trade: `%s`\n\n"+
			"%s\n\n"+
			"All wallets promoted to the elevated watchlist.",
		c.Score, c.WalletCount, c.Token, c.Direction,
		formatUSD(c.TotalNotional), c.SpanMinutes, c.Alignment*100,
		msToISO(c.FirstTradeMs), msToISO(c.LastTradeMs),
		strings.Join(wallets, "\n"),
	)

	if n.target == TargetDiscord {
		return n.post(ctx, map[string]any{
			"content": "**SUSPICIOUS CLUSTER DETECTED**\n" + body,
		})
	}

	blocks := []any{
		headerBlock("Suspicious Cluster Detected"),
		sectionBlock(body),
		dividerBlock(),
	}
	return n.post(ctx, map[string]any{"blocks": blocks})
}

// NotifyStartup announces the engine coming online.
func (n *Notifier) NotifyStartup(ctx context.Context, watched, elevated int, pollSeconds int) error {
	if !n.Enabled() {
		return nil
	}

	body := fmt.Sprintf(
		"Monitoring *%d* addresses (*%d* elevated), polling every *%ds*.",
		watched, elevated, pollSeconds,
	)

	if n.target == TargetDiscord {
		return n.post(ctx, map[string]any{"content": "**Surveillance engine online**\n" + body})
	}
	return n.post(ctx, map[string]any{"blocks": []any{
		headerBlock("Surveillance Engine Online"),
		sectionBlock(body),
	}})
}

// NotifyStatus sends the periodic operational report.
func (n *Notifier) NotifyStatus(ctx context.Context, snap metrics.Snapshot) error {
	if !n.Enabled() {
		return nil
	}

	body := fmt.Sprintf(
		"Uptime: *%dh %dm*\n"+
			"Wallet scans: *%d* | Market scans: *%d*\n"+
			"API: %s (*%d* ok / *%d* failed)\n"+
			"Alerts sent: *%d*\n"+
			"Clusters detected: *%d* | Wallets promoted: *%d*\n"+
			"Watched: *%d* | Elevated: *%d*",
		snap.UptimeSeconds/3600, snap.UptimeSeconds%3600/60,
		snap.ScansCompleted, snap.MarketScans,
		snap.APIStatus, snap.APISuccessful, snap.APIFailed,
		snap.AlertsSent,
		snap.ClustersDetected, snap.WalletsPromoted,
		snap.WatchedAddresses, snap.ElevatedWallets,
	)

	if n.target == TargetDiscord {
		return n.post(ctx, map[string]any{"content": "**Status Report**\n" + body})
	}
	return n.post(ctx, map[string]any{"blocks": []any{
		headerBlock("Status Report"),
		sectionBlock(body),
		dividerBlock(),
	}})
}

// NotifyDegraded warns that upstream calls are failing.
func (n *Notifier) NotifyDegraded(ctx context.Context, lastErr string, successRate float64) error {
	if !n.Enabled() {
		return nil
	}

	body := fmt.Sprintf(
		"Upstream API failures are dominating.\nLast error: %s\nSuccess rate: %.1f%%",
		lastErr, successRate*100,
	)

	if n.target == TargetDiscord {
		return n.post(ctx, map[string]any{"content": "**API degradation warning**\n" + body})
	}
	return n.post(ctx, map[string]any{"blocks": []any{
		headerBlock("API Degradation Warning"),
		sectionBlock(body),
	}})
}

// findingLine formats one finding for the alert body.
func findingLine(f store.Finding) string {
	switch f.Kind {
	case store.FindingLargeDeposit:
		return fmt.Sprintf("Large deposit | %s | $%s | %s UTC",
			f.Token, formatUSD(f.Notional), msToISO(f.TimeMs))
	case store.FindingLargeOpenShort:
		return fmt.Sprintf("Large short OPEN | %s | size %.4f @ $%.2f | notional $%s | %s UTC",
			f.Token, f.Size, f.Price, formatUSD(f.Notional), msToISO(f.TimeMs))
	case store.FindingElevatedActivity:
		return fmt.Sprintf("Elevated activity | %s | %s | notional $%s | %s UTC",
			f.Token, f.Subtype, formatUSD(f.Notional), msToISO(f.TimeMs))
	case store.FindingAggregate:
		return fmt.Sprintf("%s | total notional $%s", f.Subtype, formatUSD(f.Notional))
	default:
		return fmt.Sprintf("%s | %s | $%s", f.Kind, f.Token, formatUSD(f.Notional))
	}
}

// post sends one webhook payload.
func (n *Notifier) post(ctx context.Context, payload map[string]any) error {
	encoded, err := sonnet.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func headerBlock(text string) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{"type": "plain_text", "text": text},
	}
}

func sectionBlock(text string) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text},
	}
}

func dividerBlock() map[string]any {
	return map[string]any{"type": "divider"}
}

// walletNotional sums the cluster's trade notionals for one wallet.
func walletNotional(c store.Cluster, wallet string) float64 {
	var total float64
	for _, t := range c.Trades {
		if strings.EqualFold(t.Wallet, wallet) {
			total += t.Notional
		}
	}
	return total
}

// shortAddr abbreviates a wallet address for display.
func shortAddr(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:10] + "..." + addr[len(addr)-6:]
}

// msToISO renders a millisecond epoch as UTC ISO-8601.
func msToISO(ms int64) string {
	if ms <= 0 {
		return "unknown"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// formatUSD renders an amount with thousands separators, no cents.
func formatUSD(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}

	whole := fmt.Sprintf("%.0f", v)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return b.String()
}
