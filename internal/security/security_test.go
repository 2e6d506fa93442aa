package security

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storysage/internal/errs"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("0123456789abcdef-secret", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := issuer.Issue("anon_1", "d1")
	require.NoError(t, err)
	require.NotNil(t, expiresAt)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "anon_1", claims.Subject)
	assert.Equal(t, "d1", claims.DeviceID)
}

func TestTokenRejections(t *testing.T) {
	issuer, err := NewTokenIssuer("0123456789abcdef-secret", time.Hour)
	require.NoError(t, err)
	other, err := NewTokenIssuer("another-secret-value-123", time.Hour)
	require.NoError(t, err)

	foreign, _, err := other.Issue("u1", "d1")
	require.NoError(t, err)

	expiredIssuer, err := NewTokenIssuer("0123456789abcdef-secret", time.Minute)
	require.NoError(t, err)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := expiredIssuer.Issue("u1", "d1")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong key", foreign},
		{"expired", expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(tt.token)
			assert.ErrorIs(t, err, errs.ErrUnauthorized)
		})
	}
}

func TestShortSecretRejected(t *testing.T) {
	_, err := NewTokenIssuer("short", time.Hour)
	assert.Error(t, err)
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Close()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.2.3.4:5", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.9"}, "1.2.3.4:5", "10.0.0.9"},
		{"remote addr", nil, "1.2.3.4:5678", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}
