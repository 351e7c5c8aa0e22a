package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// infoStub serves canned responses keyed by the request "type" field.
func infoStub(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad request payload: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, ok := responses[payload["type"]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func TestFetchFills(t *testing.T) {
	srv := infoStub(t, map[string]string{
		"userFills": `[
			{"coin":"BTC","px":"50000.0","sz":"-100.0","side":"A","time":2000,"dir":"Open Short","oid":11,"tid":101},
			{"coin":"ETH","px":"3000.0","sz":"10.0","side":"B","time":1000,"dir":"Open Long","oid":12,"tid":102},
			{"coin":"SOL","px":"bad","sz":"","side":"A","time":3000,"oid":13,"tid":103}
		]`,
	})
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	fills, err := c.FetchFills(context.Background(), "0xabc", 1500)
	if err != nil {
		t.Fatalf("FetchFills failed: %v", err)
	}

	// time=1000 is below sinceMs and must be filtered
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(fills))
	}

	btc := fills[0]
	if btc.Side != SideSell {
		t.Errorf("side A should normalize to sell, got %q", btc.Side)
	}
	if btc.Size != 100 {
		t.Errorf("size should be absolute, got %f", btc.Size)
	}
	if btc.Notional != 5_000_000 {
		t.Errorf("expected notional 5000000, got %f", btc.Notional)
	}
	if btc.TradeID != "101" {
		t.Errorf("expected trade ID 101, got %q", btc.TradeID)
	}

	// Malformed numerics default to zero, never an error
	sol := fills[1]
	if sol.Notional != 0 || sol.Price != 0 {
		t.Errorf("malformed fields should zero out, got %+v", sol)
	}
}

func TestFetchTransfers(t *testing.T) {
	srv := infoStub(t, map[string]string{
		"userNonFundingLedgerUpdates": `[
			{"time":2000,"hash":"0xdep","delta":{"type":"deposit","usdc":"30000000.0"}},
			{"time":2500,"hash":"0xwd","delta":{"type":"withdraw","usdc":"-500.0"}},
			{"time":2600,"hash":"0xliq","delta":{"type":"liquidation","usdc":"100.0"}},
			{"time":100,"hash":"0xold","delta":{"type":"deposit","usdc":"1.0"}}
		]`,
	})
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	transfers, err := c.FetchTransfers(context.Background(), "0xabc", 1500)
	if err != nil {
		t.Fatalf("FetchTransfers failed: %v", err)
	}

	// liquidation is not a transfer, time=100 is filtered
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(transfers))
	}
	if transfers[0].Kind != TransferDeposit || transfers[0].AmountUSD != 30_000_000 {
		t.Errorf("unexpected deposit: %+v", transfers[0])
	}
	if transfers[1].Kind != TransferWithdraw || transfers[1].AmountUSD != 500 {
		t.Errorf("withdrawal amount should be absolute: %+v", transfers[1])
	}
}

func TestFetchFillsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if _, err := c.FetchFills(context.Background(), "0xabc", 0); err == nil {
		t.Error("expected error on non-2xx response")
	}
}

func TestAccountAgeDays(t *testing.T) {
	tenDaysAgo := time.Now().Add(-10 * 24 * time.Hour).UnixMilli()
	recent := time.Now().Add(-1 * time.Hour).UnixMilli()

	srv := infoStub(t, map[string]string{
		"userFills": `[
			{"coin":"BTC","px":"1","sz":"1","side":"B","time":` + itoa(recent) + `,"tid":1},
			{"coin":"BTC","px":"1","sz":"1","side":"B","time":` + itoa(tenDaysAgo) + `,"tid":2}
		]`,
	})
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	days, err := c.AccountAgeDays(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("AccountAgeDays failed: %v", err)
	}
	if days != 10 {
		t.Errorf("expected age 10 days, got %d", days)
	}
}

func TestAccountAgeDaysNoHistory(t *testing.T) {
	srv := infoStub(t, map[string]string{"userFills": `[]`})
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if _, err := c.AccountAgeDays(context.Background(), "0xabc"); err == nil {
		t.Error("expected error for empty fill history")
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
