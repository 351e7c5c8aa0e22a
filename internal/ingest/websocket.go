package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"

	"github.com/hlwatch/engine/internal/store"
)

// Reconnection constants
const (
	InitialBackoff = 1 * time.Second
	MaxBackoff     = 60 * time.Second
	BackoffFactor  = 2.0
	JitterPercent  = 0.2

	// Heartbeat constants
	HeartbeatTimeout = 60 * time.Second
	PongTimeout      = 10 * time.Second

	// Write timeout
	WriteTimeout = 10 * time.Second
)

// FillHandler receives one live fill for one wallet.
type FillHandler func(wallet string, fill store.Fill)

// Listener maintains a WebSocket subscription to per-user fill streams so
// large trades land in the archive between polls. Polling remains the
// authoritative ingest path; the listener only supplements it.
type Listener struct {
	url       string
	handler   FillHandler
	conn      *websocket.Conn
	connMu    sync.Mutex
	backoff   time.Duration
	lastMsg   time.Time
	lastMsgMu sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
	users     []string
	usersMu   sync.RWMutex
}

// NewListener creates a WebSocket listener.
func NewListener(url string, handler FillHandler) *Listener {
	return &Listener{
		url:      url,
		handler:  handler,
		backoff:  InitialBackoff,
		stopChan: make(chan struct{}),
	}
}

// SetUsers sets the wallet addresses to subscribe to. Takes effect on the
// next (re)connect.
func (l *Listener) SetUsers(users []string) {
	l.usersMu.Lock()
	defer l.usersMu.Unlock()
	l.users = users
}

// Start begins the WebSocket listener with automatic reconnection.
func (l *Listener) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.runLoop(ctx)

	l.wg.Add(1)
	go l.heartbeatMonitor(ctx)
}

// Stop gracefully shuts down the listener.
func (l *Listener) Stop() {
	close(l.stopChan)
	l.closeConnection()
	l.wg.Wait()
}

// runLoop handles connection, reading, and reconnection.
func (l *Listener) runLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ws_loop_stopping", "reason", "context cancelled")
			return
		case <-l.stopChan:
			slog.Info("ws_loop_stopping", "reason", "stop signal")
			return
		default:
		}

		if err := l.connect(ctx); err != nil {
			slog.Error("ws_connect_failed", "error", err, "backoff", l.backoff)
			l.waitBackoff(ctx)
			continue
		}

		if err := l.readLoop(ctx); err != nil {
			slog.Warn("ws_read_error", "error", err)
		}

		l.closeConnection()

		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		default:
			l.waitBackoff(ctx)
		}
	}
}

// connect establishes the WebSocket connection and subscribes to fills.
func (l *Listener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	// Reset backoff on successful connection
	l.backoff = InitialBackoff

	slog.Info("ws_connected", "endpoint", l.url)

	if err := l.subscribe(); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	l.updateLastMsg()
	return nil
}

// subscribeMessage is one userFills subscription request.
type subscribeMessage struct {
	Method       string `json:"method"`
	Subscription struct {
		Type string `json:"type"`
		User string `json:"user"`
	} `json:"subscription"`
}

// subscribe sends one userFills subscription per watched wallet.
func (l *Listener) subscribe() error {
	l.usersMu.RLock()
	users := l.users
	l.usersMu.RUnlock()

	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	for _, user := range users {
		var msg subscribeMessage
		msg.Method = "subscribe"
		msg.Subscription.Type = "userFills"
		msg.Subscription.User = user

		l.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if err := l.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("failed to send subscribe for %s: %w", user, err)
		}
	}

	slog.Info("ws_subscribed", "channel", "userFills", "user_count", len(users))
	return nil
}

// readLoop reads messages from the WebSocket.
func (l *Listener) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopChan:
			return nil
		default:
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(HeartbeatTimeout + PongTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		l.updateLastMsg()

		l.handleMessage(message)
	}
}

// fillsEnvelope is the wire shape of a userFills stream message.
type fillsEnvelope struct {
	Channel string `json:"channel"`
	Data    struct {
		IsSnapshot bool      `json:"isSnapshot"`
		User       string    `json:"user"`
		Fills      []rawFill `json:"fills"`
	} `json:"data"`
}

// handleMessage parses a stream message and dispatches live fills.
// Snapshot batches replay history the poller already covers, so they are
// dropped.
func (l *Listener) handleMessage(data []byte) {
	var env fillsEnvelope
	if err := sonnet.Unmarshal(data, &env); err != nil {
		slog.Debug("ws_parse_error", "error", err)
		return
	}

	if env.Channel != "userFills" {
		if env.Channel != "" {
			slog.Debug("ws_message", "channel", env.Channel)
		}
		return
	}

	if env.Data.IsSnapshot || l.handler == nil {
		return
	}

	for _, r := range env.Data.Fills {
		size := abs(parseFloatSafe(r.Sz))
		px := parseFloatSafe(r.Px)

		fill := store.Fill{
			Token:    r.Coin,
			Side:     NormalizeSide(r.Side),
			Dir:      r.Dir,
			Size:     size,
			Price:    px,
			Notional: size * px,
			TimeMs:   r.Time,
			TradeID:  strconv.FormatInt(r.TID, 10),
			OrderID:  strconv.FormatInt(r.OID, 10),
		}

		l.handler(env.Data.User, fill)

		slog.Debug("live_fill_received",
			"user", truncate(env.Data.User, 10),
			"token", fill.Token,
			"side", fill.Side,
			"notional", fill.Notional,
		)
	}
}

// heartbeatMonitor checks for connection health.
func (l *Listener) heartbeatMonitor(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.checkHeartbeat()
		}
	}
}

// checkHeartbeat verifies we've received messages recently.
func (l *Listener) checkHeartbeat() {
	l.lastMsgMu.RLock()
	lastMsg := l.lastMsg
	l.lastMsgMu.RUnlock()

	if lastMsg.IsZero() {
		return
	}

	elapsed := time.Since(lastMsg)
	if elapsed > HeartbeatTimeout {
		slog.Warn("ws_heartbeat_timeout", "elapsed", elapsed)

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn != nil {
			conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Warn("ws_ping_failed", "error", err)
				l.closeConnection()
			}
		}
	}
}

// updateLastMsg updates the last message timestamp.
func (l *Listener) updateLastMsg() {
	l.lastMsgMu.Lock()
	l.lastMsg = time.Now()
	l.lastMsgMu.Unlock()
}

// closeConnection safely closes the WebSocket connection.
func (l *Listener) closeConnection() {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
		slog.Info("ws_disconnected")
	}
}

// waitBackoff waits for the backoff duration with jitter.
func (l *Listener) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(l.backoff) * JitterPercent * (rand.Float64()*2 - 1))
	wait := l.backoff + jitter

	slog.Debug("ws_waiting_backoff", "duration", wait)

	select {
	case <-ctx.Done():
	case <-l.stopChan:
	case <-time.After(wait):
	}

	l.backoff = time.Duration(float64(l.backoff) * BackoffFactor)
	if l.backoff > MaxBackoff {
		l.backoff = MaxBackoff
	}
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
