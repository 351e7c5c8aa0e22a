package watchlist

import (
	"path/filepath"
	"testing"

	"github.com/hlwatch/engine/internal/store"
)

func openTestStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestElevatedSubsetOfWatched(t *testing.T) {
	st, _ := openTestStore(t)

	// An elevated seed not present in the watch seeds must still be watched
	m := NewManager(st, []string{"0xWatchOnly"}, []string{"0xvip"})

	watched, elevated := m.Counts()
	if watched != 2 || elevated != 1 {
		t.Errorf("expected 2 watched / 1 elevated, got %d / %d", watched, elevated)
	}
	if !m.IsElevated("0xVIP") {
		t.Error("elevation check must be case-insensitive")
	}
	if m.IsElevated("0xwatchonly") {
		t.Error("watch-only address should not be elevated")
	}
}

func TestPromoteIdempotent(t *testing.T) {
	st, _ := openTestStore(t)
	m := NewManager(st, []string{"0xseed"}, nil)

	added, err := m.Promote([]string{"0xAAA", "0xbbb"}, "cluster deadbeef (score: 80)")
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("expected 2 newly elevated, got %d", len(added))
	}

	// Second promotion of the same wallets changes nothing
	added, err = m.Promote([]string{"0xaaa", "0xBBB"}, "cluster deadbeef again")
	if err != nil {
		t.Fatalf("second Promote failed: %v", err)
	}
	if len(added) != 0 {
		t.Errorf("re-promotion must be a no-op, got %v", added)
	}

	rows, err := st.ListElevated()
	if err != nil {
		t.Fatalf("ListElevated failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 persisted entries, got %d", len(rows))
	}

	// Promoted wallets join the watched set
	watched, elevated := m.Counts()
	if watched != 3 || elevated != 2 {
		t.Errorf("expected 3 watched / 2 elevated, got %d / %d", watched, elevated)
	}
}

func TestRefreshRestoresPromotions(t *testing.T) {
	st, path := openTestStore(t)

	m := NewManager(st, nil, nil)
	if _, err := m.Promote([]string{"0xpromoted"}, "cluster cafe (score: 91)"); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	st.Close()

	// Simulated restart: fresh store handle, fresh manager, then Refresh
	st2, err := store.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st2.Close()

	m2 := NewManager(st2, []string{"0xseed"}, nil)
	if err := m2.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if !m2.IsElevated("0xPROMOTED") {
		t.Error("promotion lost across restart")
	}
	watched, _ := m2.Counts()
	if watched != 2 {
		t.Errorf("expected promoted wallet folded into watched, got %d watched", watched)
	}
}
