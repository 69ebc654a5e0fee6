package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Manager budgets the memory spent on retained render trees. Every attached
// session keeps its last rendered tree server-side so the next update can be
// diffed against it; the manager caps what that retention may cost.
type Manager struct {
	maxBytes     int64
	currentUsage int64
	sessionUsage map[string]int64 // sessionID -> retained tree size
	thresholds   *Thresholds
	mu           sync.RWMutex
	config       *Config
}

// Config defines memory manager configuration
type Config struct {
	MaxMemoryMB          int           // Maximum memory in MB
	WarningThresholdPct  int           // Warning threshold percentage
	CriticalThresholdPct int           // Critical threshold percentage
	CleanupInterval      time.Duration // How often to check memory usage
}

// Thresholds defines memory usage thresholds
type Thresholds struct {
	WarningBytes  int64
	CriticalBytes int64
}

// DefaultConfig returns secure default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxMemoryMB:          100, // 100MB default limit
		WarningThresholdPct:  75,
		CriticalThresholdPct: 90,
		CleanupInterval:      1 * time.Minute,
	}
}

// NewManager creates a new memory manager
func NewManager(config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}

	maxBytes := int64(config.MaxMemoryMB) * 1024 * 1024

	return &Manager{
		maxBytes:     maxBytes,
		sessionUsage: make(map[string]int64),
		config:       config,
		thresholds: &Thresholds{
			WarningBytes:  (maxBytes * int64(config.WarningThresholdPct)) / 100,
			CriticalBytes: (maxBytes * int64(config.CriticalThresholdPct)) / 100,
		},
	}
}

// Retain records the retained tree size for a newly attached session,
// failing if the budget would be exceeded.
func (m *Manager) Retain(sessionID string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentUsage+size > m.maxBytes {
		return fmt.Errorf("retained tree would exceed memory limit: %d + %d > %d",
			m.currentUsage, size, m.maxBytes)
	}

	m.sessionUsage[sessionID] = size
	m.currentUsage += size
	return nil
}

// Release drops the retained tree accounting for a detached session.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if usage, exists := m.sessionUsage[sessionID]; exists {
		m.currentUsage -= usage
		delete(m.sessionUsage, sessionID)
	}
}

// Update replaces the retained tree size of a session after a re-render.
func (m *Manager) Update(sessionID string, newSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldSize, exists := m.sessionUsage[sessionID]
	if !exists {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	delta := newSize - oldSize
	if m.currentUsage+delta > m.maxBytes {
		return fmt.Errorf("retained tree would exceed memory limit: %d + %d > %d",
			m.currentUsage, delta, m.maxBytes)
	}

	m.sessionUsage[sessionID] = newSize
	m.currentUsage += delta
	return nil
}

// Status contains memory usage information
type Status struct {
	CurrentUsage      int64   `json:"current_usage"`
	MaxMemory         int64   `json:"max_memory"`
	UsagePercentage   float64 `json:"usage_percentage"`
	Level             string  `json:"level"` // "OK", "WARNING", "CRITICAL"
	ActiveSessions    int     `json:"active_sessions"`
	WarningThreshold  int64   `json:"warning_threshold"`
	CriticalThreshold int64   `json:"critical_threshold"`
}

// GetStatus returns current memory usage status
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		CurrentUsage:      m.currentUsage,
		MaxMemory:         m.maxBytes,
		UsagePercentage:   float64(m.currentUsage) / float64(m.maxBytes) * 100,
		ActiveSessions:    len(m.sessionUsage),
		WarningThreshold:  m.thresholds.WarningBytes,
		CriticalThreshold: m.thresholds.CriticalBytes,
	}

	switch {
	case m.currentUsage >= m.thresholds.CriticalBytes:
		status.Level = "CRITICAL"
	case m.currentUsage >= m.thresholds.WarningBytes:
		status.Level = "WARNING"
	default:
		status.Level = "OK"
	}

	return status
}

// IsAtCapacity checks if memory is at or near capacity
func (m *Manager) IsAtCapacity() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentUsage >= m.thresholds.CriticalBytes
}

// IsNearCapacity checks if memory usage is approaching capacity
func (m *Manager) IsNearCapacity() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentUsage >= m.thresholds.WarningBytes
}

// Available returns the remaining budget in bytes.
func (m *Manager) Available() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	available := m.maxBytes - m.currentUsage
	if available < 0 {
		return 0
	}
	return available
}

// SessionUsage returns the retained tree size of one session.
func (m *Manager) SessionUsage(sessionID string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	usage, exists := m.sessionUsage[sessionID]
	return usage, exists
}

// SessionInfo pairs a session with its retained tree size.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	Usage     int64  `json:"usage"`
}

// TopSessions returns the sessions retaining the most memory, largest
// first. Eviction under pressure starts from this list.
func (m *Manager) TopSessions(limit int) []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]SessionInfo, 0, len(m.sessionUsage))
	for id, usage := range m.sessionUsage {
		sessions = append(sessions, SessionInfo{SessionID: id, Usage: usage})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Usage > sessions[j].Usage
	})

	if limit > len(sessions) {
		limit = len(sessions)
	}
	return sessions[:limit]
}

// Count returns the number of sessions being tracked.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessionUsage)
}

// Reset clears all memory tracking
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentUsage = 0
	m.sessionUsage = make(map[string]int64)
}
