package metrics

import (
	"sync"
	"testing"
)

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.IncActionStarted()
	c.IncActionCompleted()
	c.IncActionFailed()
	c.IncActionAborted()
	c.IncParseError()
	c.IncInstallAttempted()
	c.IncInstallFailed()
	c.IncRemediationApplied()
	c.IncPreviewReady()
	c.IncStaticFallback()
	c.AbsorbPolicyStats(1, 1, 0, 10)

	snap := c.Snapshot()
	if snap.ActionsStarted != 0 {
		t.Errorf("nil collector snapshot not zero: %+v", snap)
	}
}

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("buffered", "npm", "sess-1")
	c.IncActionStarted()
	c.IncActionStarted()
	c.IncActionCompleted()
	c.IncActionFailed()
	c.IncInstallAttempted()
	c.IncPreviewReady()

	snap := c.Snapshot()
	if snap.ActionsStarted != 2 {
		t.Errorf("ActionsStarted = %d, want 2", snap.ActionsStarted)
	}
	if snap.ActionsCompleted != 1 || snap.ActionsFailed != 1 {
		t.Errorf("completed/failed = %d/%d", snap.ActionsCompleted, snap.ActionsFailed)
	}
	if snap.InstallsAttempted != 1 || snap.PreviewsReady != 1 {
		t.Errorf("installs/previews = %d/%d", snap.InstallsAttempted, snap.PreviewsReady)
	}
	if snap.Policy != "buffered" || snap.PackageManager != "npm" || snap.SessionID != "sess-1" {
		t.Errorf("dimensions = %q %q %q", snap.Policy, snap.PackageManager, snap.SessionID)
	}
}

func TestCollector_AbsorbPolicyStats(t *testing.T) {
	c := NewCollector("strict", "npm", "sess-1")
	c.AbsorbPolicyStats(10, 7, 3, 4096)

	snap := c.Snapshot()
	if snap.WritesTotal != 10 || snap.WritesPersisted != 7 || snap.WritesCoalesced != 3 {
		t.Errorf("writes = %d/%d/%d", snap.WritesTotal, snap.WritesPersisted, snap.WritesCoalesced)
	}
	if snap.BytesWritten != 4096 {
		t.Errorf("bytes = %d", snap.BytesWritten)
	}
}

func TestCollector_ConcurrentIncrements(t *testing.T) {
	c := NewCollector("strict", "npm", "sess-1")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncActionStarted()
		}()
	}
	wg.Wait()

	if got := c.Snapshot().ActionsStarted; got != 50 {
		t.Errorf("ActionsStarted = %d, want 50", got)
	}
}
