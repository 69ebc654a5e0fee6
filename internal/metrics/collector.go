package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector provides simple built-in metrics collection with no external dependencies
type Collector struct {
	serverMetrics *ServerMetrics
	counters      map[string]*int64
	mu            sync.RWMutex
	startTime     time.Time
}

// ServerMetrics tracks diff-server performance data
type ServerMetrics struct {
	// Session management
	SessionsOpened        int64 `json:"sessions_opened"`
	SessionsClosed        int64 `json:"sessions_closed"`
	ActiveSessions        int64 `json:"active_sessions"`
	MaxConcurrentSessions int64 `json:"max_concurrent_sessions"`

	// Token operations
	TokensGenerated int64 `json:"tokens_generated"`
	TokensVerified  int64 `json:"tokens_verified"`
	TokenFailures   int64 `json:"token_failures"`

	// Update pipeline
	FullRenders   int64 `json:"full_renders"`
	DiffsComputed int64 `json:"diffs_computed"`
	DiffErrors    int64 `json:"diff_errors"`

	// Wire savings: bytes a full render would have cost against bytes
	// actually sent as diffs.
	FullBytes int64 `json:"full_bytes"`
	DiffBytes int64 `json:"diff_bytes"`

	// Cleanup operations
	CleanupOperations      int64 `json:"cleanup_operations"`
	ExpiredSessionsRemoved int64 `json:"expired_sessions_removed"`

	// Uptime
	StartTime time.Time     `json:"start_time"`
	Uptime    time.Duration `json:"uptime"`
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		serverMetrics: &ServerMetrics{
			StartTime: time.Now(),
		},
		counters:  make(map[string]*int64),
		startTime: time.Now(),
	}
}

// IncrementSessionOpened records a client attaching to a view.
func (c *Collector) IncrementSessionOpened() {
	atomic.AddInt64(&c.serverMetrics.SessionsOpened, 1)
	active := atomic.AddInt64(&c.serverMetrics.ActiveSessions, 1)

	for {
		max := atomic.LoadInt64(&c.serverMetrics.MaxConcurrentSessions)
		if active <= max {
			break
		}
		if atomic.CompareAndSwapInt64(&c.serverMetrics.MaxConcurrentSessions, max, active) {
			break
		}
	}
}

// IncrementSessionClosed records a client detaching.
func (c *Collector) IncrementSessionClosed() {
	atomic.AddInt64(&c.serverMetrics.SessionsClosed, 1)
	atomic.AddInt64(&c.serverMetrics.ActiveSessions, -1)
}

// IncrementTokenGenerated records a token generation
func (c *Collector) IncrementTokenGenerated() {
	atomic.AddInt64(&c.serverMetrics.TokensGenerated, 1)
}

// IncrementTokenVerified records a successful token verification
func (c *Collector) IncrementTokenVerified() {
	atomic.AddInt64(&c.serverMetrics.TokensVerified, 1)
}

// IncrementTokenFailure records a token verification failure
func (c *Collector) IncrementTokenFailure() {
	atomic.AddInt64(&c.serverMetrics.TokenFailures, 1)
}

// IncrementFullRender records an initial full-tree send.
func (c *Collector) IncrementFullRender() {
	atomic.AddInt64(&c.serverMetrics.FullRenders, 1)
}

// IncrementDiffComputed records one computed diff and the wire sizes of the
// diff against the full render it replaced.
func (c *Collector) IncrementDiffComputed(fullBytes, diffBytes int64) {
	atomic.AddInt64(&c.serverMetrics.DiffsComputed, 1)
	atomic.AddInt64(&c.serverMetrics.FullBytes, fullBytes)
	atomic.AddInt64(&c.serverMetrics.DiffBytes, diffBytes)
}

// IncrementDiffError records a diff computation failure.
func (c *Collector) IncrementDiffError() {
	atomic.AddInt64(&c.serverMetrics.DiffErrors, 1)
}

// IncrementCleanupOperation records a cleanup operation
func (c *Collector) IncrementCleanupOperation(expiredSessionsRemoved int64) {
	atomic.AddInt64(&c.serverMetrics.CleanupOperations, 1)
	atomic.AddInt64(&c.serverMetrics.ExpiredSessionsRemoved, expiredSessionsRemoved)
}

// IncrementCounter increments a custom named counter
func (c *Collector) IncrementCounter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, exists := c.counters[name]; exists {
		atomic.AddInt64(counter, 1)
	} else {
		var newCounter int64 = 1
		c.counters[name] = &newCounter
	}
}

// GetMetrics returns a snapshot of the current server metrics.
func (c *Collector) GetMetrics() ServerMetrics {
	return ServerMetrics{
		SessionsOpened:         atomic.LoadInt64(&c.serverMetrics.SessionsOpened),
		SessionsClosed:         atomic.LoadInt64(&c.serverMetrics.SessionsClosed),
		ActiveSessions:         atomic.LoadInt64(&c.serverMetrics.ActiveSessions),
		MaxConcurrentSessions:  atomic.LoadInt64(&c.serverMetrics.MaxConcurrentSessions),
		TokensGenerated:        atomic.LoadInt64(&c.serverMetrics.TokensGenerated),
		TokensVerified:         atomic.LoadInt64(&c.serverMetrics.TokensVerified),
		TokenFailures:          atomic.LoadInt64(&c.serverMetrics.TokenFailures),
		FullRenders:            atomic.LoadInt64(&c.serverMetrics.FullRenders),
		DiffsComputed:          atomic.LoadInt64(&c.serverMetrics.DiffsComputed),
		DiffErrors:             atomic.LoadInt64(&c.serverMetrics.DiffErrors),
		FullBytes:              atomic.LoadInt64(&c.serverMetrics.FullBytes),
		DiffBytes:              atomic.LoadInt64(&c.serverMetrics.DiffBytes),
		CleanupOperations:      atomic.LoadInt64(&c.serverMetrics.CleanupOperations),
		ExpiredSessionsRemoved: atomic.LoadInt64(&c.serverMetrics.ExpiredSessionsRemoved),
		StartTime:              c.serverMetrics.StartTime,
		Uptime:                 time.Since(c.startTime),
	}
}

// GetCounters returns all custom counters
func (c *Collector) GetCounters() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]int64)
	for name, counter := range c.counters {
		result[name] = atomic.LoadInt64(counter)
	}
	return result
}

// Reset resets all metrics to zero
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	atomic.StoreInt64(&c.serverMetrics.SessionsOpened, 0)
	atomic.StoreInt64(&c.serverMetrics.SessionsClosed, 0)
	atomic.StoreInt64(&c.serverMetrics.ActiveSessions, 0)
	atomic.StoreInt64(&c.serverMetrics.MaxConcurrentSessions, 0)
	atomic.StoreInt64(&c.serverMetrics.TokensGenerated, 0)
	atomic.StoreInt64(&c.serverMetrics.TokensVerified, 0)
	atomic.StoreInt64(&c.serverMetrics.TokenFailures, 0)
	atomic.StoreInt64(&c.serverMetrics.FullRenders, 0)
	atomic.StoreInt64(&c.serverMetrics.DiffsComputed, 0)
	atomic.StoreInt64(&c.serverMetrics.DiffErrors, 0)
	atomic.StoreInt64(&c.serverMetrics.FullBytes, 0)
	atomic.StoreInt64(&c.serverMetrics.DiffBytes, 0)
	atomic.StoreInt64(&c.serverMetrics.CleanupOperations, 0)
	atomic.StoreInt64(&c.serverMetrics.ExpiredSessionsRemoved, 0)

	c.counters = make(map[string]*int64)

	c.startTime = time.Now()
	c.serverMetrics.StartTime = time.Now()
}

// GetErrorRate returns the error rate for diff computation
func (c *Collector) GetErrorRate() float64 {
	computed := atomic.LoadInt64(&c.serverMetrics.DiffsComputed)
	errors := atomic.LoadInt64(&c.serverMetrics.DiffErrors)

	if computed == 0 {
		return 0.0
	}

	return float64(errors) / float64(computed+errors) * 100.0
}

// GetTokenSuccessRate returns the success rate for token operations
func (c *Collector) GetTokenSuccessRate() float64 {
	verified := atomic.LoadInt64(&c.serverMetrics.TokensVerified)
	failures := atomic.LoadInt64(&c.serverMetrics.TokenFailures)

	total := verified + failures
	if total == 0 {
		return 100.0 // No operations means 100% success rate
	}

	return float64(verified) / float64(total) * 100.0
}

// GetWireSavings returns the percentage of bytes saved by sending diffs
// instead of full renders.
func (c *Collector) GetWireSavings() float64 {
	full := atomic.LoadInt64(&c.serverMetrics.FullBytes)
	diff := atomic.LoadInt64(&c.serverMetrics.DiffBytes)

	if full == 0 {
		return 0.0
	}

	return (1.0 - float64(diff)/float64(full)) * 100.0
}
