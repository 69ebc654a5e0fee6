package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Service issues and verifies the JWT join tokens that authorize a client
// to attach to a rendered view, with nonce-based replay protection.
type Service struct {
	signingKey []byte
	algorithm  jwt.SigningMethod
	nonces     *NonceStore
	config     *Config
	mu         sync.RWMutex
}

// Config defines token service configuration
type Config struct {
	TTL         time.Duration // Default: 24 hours
	NonceWindow time.Duration // Default: 5 minutes
}

// DefaultConfig returns secure default configuration
func DefaultConfig() *Config {
	return &Config{
		TTL:         24 * time.Hour,
		NonceWindow: 5 * time.Minute,
	}
}

// JoinToken is the JWT payload granting access to one view within a site.
type JoinToken struct {
	ViewID string `json:"view_id"`
	SiteID string `json:"site_id"`
	Nonce  string `json:"nonce"`
	jwt.RegisteredClaims
}

// NonceStore provides in-memory nonce tracking for replay protection
type NonceStore struct {
	nonces map[string]time.Time
	mu     sync.RWMutex
}

// NewNonceStore creates a new nonce store
func NewNonceStore() *NonceStore {
	return &NonceStore{
		nonces: make(map[string]time.Time),
	}
}

// Add stores a nonce with timestamp
func (ns *NonceStore) Add(nonce string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.nonces[nonce] = time.Now()
}

// Exists checks if a nonce exists and is within the window
func (ns *NonceStore) Exists(nonce string, window time.Duration) bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	if ts, exists := ns.nonces[nonce]; exists {
		return time.Since(ts) < window
	}
	return false
}

// Cleanup removes expired nonces
func (ns *NonceStore) Cleanup(maxAge time.Duration) int {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	count := 0
	cutoff := time.Now().Add(-maxAge)
	for nonce, ts := range ns.nonces {
		if ts.Before(cutoff) {
			delete(ns.nonces, nonce)
			count++
		}
	}
	return count
}

// NewService creates a token service with a freshly generated signing key.
func NewService(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	signingKey := make([]byte, 32) // 256-bit key for HS256
	if _, err := rand.Read(signingKey); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	return &Service{
		signingKey: signingKey,
		algorithm:  jwt.SigningMethodHS256, // fixed to prevent algorithm confusion
		nonces:     NewNonceStore(),
		config:     config,
	}, nil
}

// Generate creates a join token for the given site and view.
func (s *Service) Generate(siteID, viewID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	nonce, err := generateNonce()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	claims := &JoinToken{
		ViewID: viewID,
		SiteID: siteID,
		Nonce:  nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "livediff",
			Subject:   viewID,
			Audience:  jwt.ClaimStrings{siteID},
		},
	}

	signed, err := jwt.NewWithClaims(s.algorithm, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a join token and burns its nonce. A token replayed
// inside the nonce window is rejected.
func (s *Service) Verify(tokenString string) (*JoinToken, error) {
	s.mu.Lock() // full lock, verification mutates the nonce store
	defer s.mu.Unlock()

	token, err := jwt.ParseWithClaims(tokenString, &JoinToken{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != s.algorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JoinToken)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if s.nonces.Exists(claims.Nonce, s.config.NonceWindow) {
		return nil, fmt.Errorf("token replay detected")
	}
	s.nonces.Add(claims.Nonce)

	return claims, nil
}

// RotateSigningKey replaces the signing key, invalidating all outstanding
// tokens.
func (s *Service) RotateSigningKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newKey := make([]byte, 32)
	if _, err := rand.Read(newKey); err != nil {
		return fmt.Errorf("failed to generate new signing key: %w", err)
	}
	s.signingKey = newKey
	return nil
}

// CleanupExpiredNonces removes old nonces to prevent memory leaks
func (s *Service) CleanupExpiredNonces() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nonces.Cleanup(s.config.NonceWindow * 2)
}

// generateNonce creates a cryptographically secure nonce
func generateNonce() (string, error) {
	bytes := make([]byte, 16) // 128-bit nonce
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
