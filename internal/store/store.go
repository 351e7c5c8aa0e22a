package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"
)

// Store is the durable event store backing the engine: seen-event digests,
// resume cursors, the large-trade archive, detected clusters and the
// elevated-wallet list. A single Store is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS seen(
			digest TEXT PRIMARY KEY,
			ts INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS cursors(
			source TEXT PRIMARY KEY,
			last_ms INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS market_trades(
			trade_id TEXT PRIMARY KEY,
			wallet TEXT,
			token TEXT,
			side TEXT,
			notional REAL,
			px REAL,
			size REAL,
			timestamp_ms INTEGER,
			wallet_age_days INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS suspicious_clusters(
			cluster_id TEXT PRIMARY KEY,
			wallets TEXT,
			token TEXT,
			direction TEXT,
			total_notional REAL,
			trade_count INTEGER,
			wallet_count INTEGER,
			time_window_minutes REAL,
			alignment REAL,
			suspicion_score INTEGER,
			first_trade_ms INTEGER,
			last_trade_ms INTEGER,
			created_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS elevated_wallets(
			address TEXT PRIMARY KEY,
			reason TEXT,
			added_at INTEGER
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Digest computes a stable content hash over the given parts. Used for
// seen-event deduplication and as a fallback trade identifier.
func Digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CursorSource returns the cursor key for one watched address.
func CursorSource(address string) string {
	return "hyperliquid:addr:" + strings.ToLower(address)
}

// MarkSeen records a digest. Inserting an already-seen digest is a no-op.
func (s *Store) MarkSeen(digest string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO seen(digest, ts) VALUES(?, ?)",
		digest, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// IsSeen reports whether the digest was previously marked, including marks
// from earlier process runs.
func (s *Store) IsSeen(digest string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM seen WHERE digest=?", digest).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is seen: %w", err)
	}
	return true, nil
}

// GetCursor returns the resume cursor for source. On first use the fallback
// is persisted immediately so a crash before the next SetCursor does not
// lose it.
func (s *Store) GetCursor(source string, fallbackMs int64) (int64, error) {
	var lastMs sql.NullInt64
	err := s.db.QueryRow("SELECT last_ms FROM cursors WHERE source=?", source).Scan(&lastMs)
	if err == nil && lastMs.Valid && lastMs.Int64 > 0 {
		return lastMs.Int64, nil
	}
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("get cursor: %w", err)
	}

	if err := s.SetCursor(source, fallbackMs); err != nil {
		return 0, err
	}
	return fallbackMs, nil
}

// SetCursor upserts the resume cursor for source.
func (s *Store) SetCursor(source string, ms int64) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO cursors(source, last_ms) VALUES(?, ?)",
		source, ms,
	)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// DeleteCursor removes the cursor for source so the next scan falls back to
// its full lookback window. Used by the admin reset action.
func (s *Store) DeleteCursor(source string) error {
	_, err := s.db.Exec("DELETE FROM cursors WHERE source=?", source)
	if err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}

// RecordLargeTrade upserts a trade into the archive. When the upstream trade
// identifier is missing, a content hash of wallet+token+timestamp keys the
// row so re-fetched trades replace rather than duplicate.
func (s *Store) RecordLargeTrade(t LargeTrade) error {
	id := t.TradeID
	if id == "" {
		id = Digest(t.Wallet, t.Token, strconv.FormatInt(t.TimeMs, 10))
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO market_trades(
			trade_id, wallet, token, side, notional, px, size, timestamp_ms, wallet_age_days
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, t.Wallet, t.Token, t.Side, t.Notional, t.Price, t.Size, t.TimeMs, t.WalletAgeDays,
	)
	if err != nil {
		return fmt.Errorf("record large trade: %w", err)
	}
	return nil
}

// RecentLargeTrades returns archived trades with notional >= minNotional and
// timestamp within windowMinutes of now, newest first.
func (s *Store) RecentLargeTrades(windowMinutes int, minNotional float64) ([]LargeTrade, error) {
	cutoffMs := time.Now().Add(-time.Duration(windowMinutes) * time.Minute).UnixMilli()

	rows, err := s.db.Query(`
		SELECT trade_id, wallet, token, side, notional, px, size, timestamp_ms, wallet_age_days
		FROM market_trades
		WHERE timestamp_ms >= ? AND notional >= ?
		ORDER BY timestamp_ms DESC`,
		cutoffMs, minNotional,
	)
	if err != nil {
		return nil, fmt.Errorf("recent large trades: %w", err)
	}
	defer rows.Close()

	var trades []LargeTrade
	for rows.Next() {
		var t LargeTrade
		var age sql.NullInt64
		if err := rows.Scan(&t.TradeID, &t.Wallet, &t.Token, &t.Side,
			&t.Notional, &t.Price, &t.Size, &t.TimeMs, &age); err != nil {
			return nil, fmt.Errorf("scan large trade: %w", err)
		}
		if age.Valid && age.Int64 > 0 {
			t.WalletAgeDays = int(age.Int64)
		} else {
			t.WalletAgeDays = 30
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveCluster persists a detected cluster. Rows are never updated; a
// recurring signature is absorbed by the seen-digest check upstream.
func (s *Store) SaveCluster(c Cluster) error {
	wallets, err := sonnet.Marshal(c.Wallets)
	if err != nil {
		return fmt.Errorf("encode cluster wallets: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR IGNORE INTO suspicious_clusters(
			cluster_id, wallets, token, direction, total_notional, trade_count,
			wallet_count, time_window_minutes, alignment, suspicion_score,
			first_trade_ms, last_trade_ms, created_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(wallets), c.Token, c.Direction, c.TotalNotional, c.TradeCount,
		c.WalletCount, c.SpanMinutes, c.Alignment, c.Score,
		c.FirstTradeMs, c.LastTradeMs, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save cluster: %w", err)
	}
	return nil
}

// AddElevated persists an elevated-wallet entry. Re-adding is a no-op.
func (s *Store) AddElevated(address, reason string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO elevated_wallets(address, reason, added_at) VALUES(?, ?, ?)",
		address, reason, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("add elevated: %w", err)
	}
	return nil
}

// ListElevated returns all persisted elevated wallets.
func (s *Store) ListElevated() ([]ElevatedWallet, error) {
	rows, err := s.db.Query("SELECT address, reason, added_at FROM elevated_wallets")
	if err != nil {
		return nil, fmt.Errorf("list elevated: %w", err)
	}
	defer rows.Close()

	var out []ElevatedWallet
	for rows.Next() {
		var w ElevatedWallet
		if err := rows.Scan(&w.Address, &w.Reason, &w.AddedAt); err != nil {
			return nil, fmt.Errorf("scan elevated: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
