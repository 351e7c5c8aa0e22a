// Package watchlist maintains the watched and elevated address sets.
package watchlist

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hlwatch/engine/internal/store"
)

// Manager is the store-backed watchlist with an in-process read-through
// cache, so concurrent scan workers observe a consistent view. Elevated is
// always a subset of Watched; promotion grows both. Addresses compare
// case-insensitively.
type Manager struct {
	store *store.Store

	mu       sync.RWMutex
	elevated map[string]bool
	watched  map[string]bool
	order    []string // watched addresses in stable scan order
}

// NewManager creates a Manager seeded with the configured address lists.
// Call Refresh before first use to fold in wallets promoted in earlier runs.
func NewManager(st *store.Store, watchSeeds, elevatedSeeds []string) *Manager {
	m := &Manager{
		store:    st,
		elevated: make(map[string]bool),
		watched:  make(map[string]bool),
	}

	for _, addr := range watchSeeds {
		m.addWatchedLocked(addr)
	}
	for _, addr := range elevatedSeeds {
		key := strings.ToLower(addr)
		m.elevated[key] = true
		m.addWatchedLocked(addr)
	}

	return m
}

// Refresh reloads persisted elevated wallets into the cache. Run at startup
// so promotions survive restarts.
func (m *Manager) Refresh() error {
	rows, err := m.store.ListElevated()
	if err != nil {
		return fmt.Errorf("refresh watchlist: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, row := range rows {
		key := strings.ToLower(row.Address)
		if !m.elevated[key] {
			m.elevated[key] = true
			loaded++
		}
		m.addWatchedLocked(key)
	}

	if loaded > 0 {
		slog.Info("watchlist_loaded", "persisted_elevated", loaded)
	}
	return nil
}

// IsElevated reports whether the address is under elevated monitoring.
func (m *Manager) IsElevated(address string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.elevated[strings.ToLower(address)]
}

// Watched returns the addresses to scan, in stable order.
func (m *Manager) Watched() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Counts returns (watched, elevated) set sizes.
func (m *Manager) Counts() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order), len(m.elevated)
}

// Promote persists elevated status for every wallet not already elevated
// and folds the wallets into both caches. Idempotent: re-promoting an
// elevated wallet is a no-op for that wallet. Returns the newly elevated
// addresses.
func (m *Manager) Promote(wallets []string, reason string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var added []string
	for _, wallet := range wallets {
		key := strings.ToLower(wallet)
		if key == "" || m.elevated[key] {
			continue
		}

		if err := m.store.AddElevated(key, reason); err != nil {
			return added, fmt.Errorf("promote %s: %w", key, err)
		}

		m.elevated[key] = true
		m.addWatchedLocked(key)
		added = append(added, key)
	}

	if len(added) > 0 {
		slog.Info("wallets_promoted", "count", len(added), "reason", reason)
	}
	return added, nil
}

// addWatchedLocked adds an address to the watched set. Caller holds the lock
// (or is inside the constructor).
func (m *Manager) addWatchedLocked(address string) {
	key := strings.ToLower(address)
	if key == "" || m.watched[key] {
		return
	}
	m.watched[key] = true
	m.order = append(m.order, address)
}
