package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Session tracks one client attached to a view.
type Session struct {
	ID          string
	ViewID      string
	SiteID      string
	CreatedAt   time.Time
	LastAccess  time.Time
	ResumeToken string // Stable token letting a reconnecting client resume
}

// Manager handles session lifecycle
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	ttl      time.Duration
}

// NewManager creates a new session manager
func NewManager(ttl time.Duration) *Manager {
	if ttl == 0 {
		ttl = 24 * time.Hour // Default 24 hours
	}

	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create registers a new session for a client joining a view.
func (m *Manager) Create(siteID, viewID, resumeToken string) (*Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:          sessionID,
		ViewID:      viewID,
		SiteID:      siteID,
		CreatedAt:   time.Now(),
		LastAccess:  time.Now(),
		ResumeToken: resumeToken,
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()

	return session, nil
}

// Get retrieves a session by ID, refreshing its last-access time.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, false
	}

	if time.Since(session.LastAccess) > m.ttl {
		delete(m.sessions, sessionID)
		return nil, false
	}

	session.LastAccess = time.Now()
	return session, true
}

// Delete removes a session
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpired removes sessions idle past the TTL.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	cutoff := time.Now().Add(-m.ttl)

	for sessionID, session := range m.sessions {
		if session.LastAccess.Before(cutoff) {
			delete(m.sessions, sessionID)
			count++
		}
	}

	return count
}

// generateSessionID creates a cryptographically secure session ID
func generateSessionID() (string, error) {
	bytes := make([]byte, 32) // 256-bit session ID
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
