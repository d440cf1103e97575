package messaging

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTOTPVerifier(t *testing.T) {
	v := NewTOTPVerifier()
	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	v.now = func() time.Time { return now }

	secret, provURL, err := v.Enroll("alice")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.True(t, strings.HasPrefix(provURL, "otpauth://totp/"))
	assert.Contains(t, provURL, "issuer=CrewSeal")

	code, err := totpCodeAt(secret, now)
	require.NoError(t, err)
	assert.True(t, v.Verify("alice", code))

	// Spaces and padding in user input are tolerated.
	spaced := code[:3] + " " + code[3:]
	assert.True(t, v.Verify("alice", " "+spaced+" "))

	assert.False(t, v.Verify("alice", "12345"), "too short")
	assert.False(t, v.Verify("alice", "12345a"), "non-digit")
	assert.False(t, v.Verify("bob", code), "unenrolled user")
}

func TestTOTPVerifierClockSkew(t *testing.T) {
	v := NewTOTPVerifier()
	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	v.now = func() time.Time { return now }

	secret, _, err := v.Enroll("alice")
	require.NoError(t, err)

	prev, err := totpCodeAt(secret, now.Add(-30*time.Second))
	require.NoError(t, err)
	next, err := totpCodeAt(secret, now.Add(30*time.Second))
	require.NoError(t, err)
	stale, err := totpCodeAt(secret, now.Add(-90*time.Second))
	require.NoError(t, err)

	assert.True(t, v.Verify("alice", prev), "one period behind")
	assert.True(t, v.Verify("alice", next), "one period ahead")
	if stale != prev && stale != next {
		assert.False(t, v.Verify("alice", stale), "three periods behind")
	}
}

func TestTOTPVerifierUnenroll(t *testing.T) {
	v := NewTOTPVerifier()
	secret, _, err := v.Enroll("alice")
	require.NoError(t, err)

	code, err := totpCodeAt(secret, time.Now())
	require.NoError(t, err)
	require.True(t, v.Verify("alice", code))

	v.Unenroll("alice")
	assert.False(t, v.Verify("alice", code))
}
