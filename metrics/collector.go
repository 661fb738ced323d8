// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters during a single session. It is a leaf
// package with no internal dependencies. File-write policy metrics are
// absorbed from policy stats at session end rather than recorded live,
// avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Action lifecycle
	ActionsStarted   int64
	ActionsCompleted int64
	ActionsFailed    int64
	ActionsAborted   int64

	// Parser
	ParseErrors int64

	// File writes (absorbed from policy stats at session end)
	WritesTotal     int64
	WritesPersisted int64
	WritesCoalesced int64
	BytesWritten    int64

	// Bootstrap
	InstallsAttempted   int64
	InstallsFailed      int64
	RemediationsApplied int64
	PreviewsReady       int64
	StaticFallbacks     int64

	// Dimensions (informational, set at construction)
	Policy         string
	PackageManager string
	SessionID      string
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	// Action lifecycle
	actionsStarted   int64
	actionsCompleted int64
	actionsFailed    int64
	actionsAborted   int64

	// Parser
	parseErrors int64

	// Bootstrap
	installsAttempted   int64
	installsFailed      int64
	remediationsApplied int64
	previewsReady       int64
	staticFallbacks     int64

	// File writes (set once via AbsorbPolicyStats)
	writesTotal     int64
	writesPersisted int64
	writesCoalesced int64
	bytesWritten    int64

	// Dimensions
	policy         string
	packageManager string
	sessionID      string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(policy, packageManager, sessionID string) *Collector {
	return &Collector{
		policy:         policy,
		packageManager: packageManager,
		sessionID:      sessionID,
	}
}

// --- Action lifecycle ---

// IncActionStarted records an action entering the running state.
func (c *Collector) IncActionStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.actionsStarted++
	c.mu.Unlock()
}

// IncActionCompleted records a successful action completion.
func (c *Collector) IncActionCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.actionsCompleted++
	c.mu.Unlock()
}

// IncActionFailed records an action failure.
func (c *Collector) IncActionFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.actionsFailed++
	c.mu.Unlock()
}

// IncActionAborted records an action abort.
func (c *Collector) IncActionAborted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.actionsAborted++
	c.mu.Unlock()
}

// --- Parser ---

// IncParseError records a recovered parse failure.
func (c *Collector) IncParseError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.parseErrors++
	c.mu.Unlock()
}

// --- Bootstrap ---

// IncInstallAttempted records an install ladder invocation.
func (c *Collector) IncInstallAttempted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.installsAttempted++
	c.mu.Unlock()
}

// IncInstallFailed records an exhausted install ladder.
func (c *Collector) IncInstallFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.installsFailed++
	c.mu.Unlock()
}

// IncRemediationApplied records one applied auto-remediation.
func (c *Collector) IncRemediationApplied() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.remediationsApplied++
	c.mu.Unlock()
}

// IncPreviewReady records a preview becoming reachable.
func (c *Collector) IncPreviewReady() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.previewsReady++
	c.mu.Unlock()
}

// IncStaticFallback records a static fallback activation.
func (c *Collector) IncStaticFallback() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.staticFallbacks++
	c.mu.Unlock()
}

// --- File writes (absorbed from policy stats) ---

// AbsorbPolicyStats copies file-write counters from the flush policy into
// the collector. Called once after session completion with the final stats
// snapshot. Plain int64 parameters keep this package free of dependencies
// on the policy package.
func (c *Collector) AbsorbPolicyStats(total, persisted, coalesced, bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.writesTotal = total
	c.writesPersisted = persisted
	c.writesCoalesced = coalesced
	c.bytesWritten = bytes
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		ActionsStarted:   c.actionsStarted,
		ActionsCompleted: c.actionsCompleted,
		ActionsFailed:    c.actionsFailed,
		ActionsAborted:   c.actionsAborted,

		ParseErrors: c.parseErrors,

		WritesTotal:     c.writesTotal,
		WritesPersisted: c.writesPersisted,
		WritesCoalesced: c.writesCoalesced,
		BytesWritten:    c.bytesWritten,

		InstallsAttempted:   c.installsAttempted,
		InstallsFailed:      c.installsFailed,
		RemediationsApplied: c.remediationsApplied,
		PreviewsReady:       c.previewsReady,
		StaticFallbacks:     c.staticFallbacks,

		Policy:         c.policy,
		PackageManager: c.packageManager,
		SessionID:      c.sessionID,
	}
}
