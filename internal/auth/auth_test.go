package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestManager() (*Manager, *clock) {
	c := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager([]int64{1}, 15*time.Minute, WithClock(c.Now)), c
}

func TestGenerateToken(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.GenerateToken(2)
	assert.ErrorIs(t, err, ErrNotAdmin)

	a, err := m.GenerateToken(1)
	require.NoError(t, err)
	b, err := m.GenerateToken(1)
	require.NoError(t, err)
	assert.Len(t, a, tokenLength)
	assert.NotEqual(t, a, b)
}

func TestAuthorize(t *testing.T) {
	m, c := newTestManager()
	token, err := m.GenerateToken(1)
	require.NoError(t, err)

	assert.True(t, m.Authorize(1, ""), "admins need no token")
	assert.False(t, m.Authorize(2, "nope"))
	assert.False(t, m.Allowed(2))

	require.True(t, m.Authorize(2, token))
	assert.True(t, m.IsAuthorized(2))
	assert.True(t, m.Allowed(2))
	assert.True(t, m.Authorize(2, ""), "authorized users need no token")

	c.now = c.now.Add(16 * time.Minute)
	assert.False(t, m.IsAuthorized(2))
	assert.False(t, m.Authorize(3, token), "expired token")
	assert.True(t, m.Allowed(1))
}

func TestSweep(t *testing.T) {
	m, c := newTestManager()
	old, err := m.GenerateToken(1)
	require.NoError(t, err)
	require.True(t, m.Authorize(5, old))

	c.now = c.now.Add(10 * time.Minute)
	fresh, err := m.GenerateToken(1)
	require.NoError(t, err)

	c.now = c.now.Add(6 * time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.False(t, m.IsAuthorized(5))
	assert.True(t, m.Authorize(6, fresh))
	assert.Equal(t, 0, m.Sweep())
}
