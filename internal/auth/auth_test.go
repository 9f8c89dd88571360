package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifierRoundTrip(t *testing.T) {
	v := NewVerifier("secret", time.Hour)

	token, err := v.Issue("user-1", 0)
	require.NoError(t, err)

	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestVerifierRejects(t *testing.T) {
	v := NewVerifier("secret", time.Hour)
	other := NewVerifier("other-secret", time.Hour)

	foreign, err := other.Issue("user-1", 0)
	require.NoError(t, err)

	expired := NewVerifier("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("user-1", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "empty", token: "", want: ErrMissingToken},
		{name: "garbage", token: "not-a-jwt", want: ErrInvalidToken},
		{name: "wrong secret", token: foreign, want: ErrInvalidToken},
		{name: "expired", token: old, want: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIssueRequiresUser(t *testing.T) {
	_, err := NewVerifier("secret", 0).Issue("", 0)
	assert.Error(t, err)
}

func TestIdentities(t *testing.T) {
	ctx := context.Background()

	id, ok := StaticIdentity("u1").CurrentUser(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", id)

	_, ok = StaticIdentity("").CurrentUser(ctx)
	assert.False(t, ok)

	_, ok = ContextIdentity{}.CurrentUser(ctx)
	assert.False(t, ok)

	id, ok = ContextIdentity{}.CurrentUser(ContextWithUser(ctx, "u2"))
	assert.True(t, ok)
	assert.Equal(t, "u2", id)
}
