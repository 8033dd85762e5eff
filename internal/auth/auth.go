package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotAdmin is returned when a non-admin asks for a token.
var ErrNotAdmin = errors.New("user is not an admin")

// tokenLength is the number of characters handed out per token.
const tokenLength = 8

type grant struct {
	issued time.Time
	user   int64
}

// Manager tracks which users may start batches. Admins always may; other
// users redeem a short token issued by an admin and stay authorized until
// that token expires.
type Manager struct {
	ttl time.Duration
	now func() time.Time

	mu         sync.Mutex
	admins     map[int64]struct{}
	tokens     map[string]grant
	authorized map[int64]string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager for the given admins. Tokens and the
// grants made with them last ttl.
func NewManager(admins []int64, ttl time.Duration, opts ...Option) *Manager {
	m := &Manager{
		ttl:        ttl,
		now:        time.Now,
		admins:     make(map[int64]struct{}, len(admins)),
		tokens:     make(map[string]grant),
		authorized: make(map[int64]string),
	}
	for _, id := range admins {
		m.admins[id] = struct{}{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsAdmin reports whether user is configured as an admin.
func (m *Manager) IsAdmin(user int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.admins[user]
	return ok
}

// GenerateToken issues a fresh token on behalf of admin.
func (m *Manager) GenerateToken(admin int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.admins[admin]; !ok {
		return "", ErrNotAdmin
	}
	for {
		token := strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenLength]
		if _, taken := m.tokens[token]; !taken {
			m.tokens[token] = grant{issued: m.now()}
			return token, nil
		}
	}
}

// Authorize redeems token for user. Admins and already authorized users
// succeed without a token. A token can be redeemed until it expires.
func (m *Manager) Authorize(user int64, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.admins[user]; ok {
		return true
	}
	if m.authorizedLocked(user) {
		return true
	}

	token = strings.TrimSpace(token)
	g, ok := m.tokens[token]
	if !ok || m.expired(g) {
		return false
	}
	g.user = user
	m.tokens[token] = g
	m.authorized[user] = token
	return true
}

// IsAuthorized reports whether user holds a live grant. Stale grants are
// dropped on the way.
func (m *Manager) IsAuthorized(user int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authorizedLocked(user)
}

// Allowed reports whether user may start batches.
func (m *Manager) Allowed(user int64) bool {
	return m.IsAdmin(user) || m.IsAuthorized(user)
}

// Sweep drops expired tokens and the grants made with them and returns
// how many tokens were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for token, g := range m.tokens {
		if !m.expired(g) {
			continue
		}
		delete(m.tokens, token)
		if m.authorized[g.user] == token {
			delete(m.authorized, g.user)
		}
		removed++
	}
	return removed
}

func (m *Manager) authorizedLocked(user int64) bool {
	token, ok := m.authorized[user]
	if !ok {
		return false
	}
	g, ok := m.tokens[token]
	if !ok || m.expired(g) {
		delete(m.tokens, token)
		delete(m.authorized, user)
		return false
	}
	return true
}

func (m *Manager) expired(g grant) bool {
	return m.now().Sub(g.issued) > m.ttl
}
