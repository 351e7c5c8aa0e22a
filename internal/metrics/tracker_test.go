package metrics

import "testing"

func TestDegradationWarningOnce(t *testing.T) {
	tr := NewTracker()

	// Below the minimum sample size nothing warns
	for i := 0; i < 5; i++ {
		if tr.RecordAPIFailure() {
			t.Fatal("warned before minimum call count")
		}
	}
	for i := 0; i < 4; i++ {
		tr.RecordAPISuccess()
	}

	// 6th failure of 10 calls crosses the 30% ratio: warn exactly once
	warned := 0
	for i := 0; i < 3; i++ {
		if tr.RecordAPIFailure() {
			warned++
		}
	}
	if warned != 1 {
		t.Errorf("expected exactly one degradation warning, got %d", warned)
	}

	// Recovery re-arms the warning
	tr.RecordAPISuccess()
	for i := 0; i < 10; i++ {
		tr.RecordAPIFailure()
	}
	snap := tr.Snapshot(0, 0)
	if snap.APIStatus != StatusDegraded {
		t.Errorf("expected degraded status, got %s", snap.APIStatus)
	}
}

func TestSnapshotCounters(t *testing.T) {
	tr := NewTracker()

	tr.IncrementScans()
	tr.IncrementScans()
	tr.IncrementMarketScans()
	tr.IncrementAlerts()
	tr.IncrementClusters()
	tr.AddPromoted(3)
	tr.RecordAPISuccess()

	snap := tr.Snapshot(5, 2)
	if snap.ScansCompleted != 2 || snap.MarketScans != 1 || snap.AlertsSent != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}
	if snap.ClustersDetected != 1 || snap.WalletsPromoted != 3 {
		t.Errorf("unexpected cluster counters: %+v", snap)
	}
	if snap.WatchedAddresses != 5 || snap.ElevatedWallets != 2 {
		t.Errorf("unexpected set sizes: %+v", snap)
	}
	if snap.APIStatus != StatusHealthy {
		t.Errorf("expected healthy after success, got %s", snap.APIStatus)
	}

	rate, total := tr.SuccessRate()
	if total != 1 || rate != 1 {
		t.Errorf("unexpected success rate %f over %d", rate, total)
	}
}
