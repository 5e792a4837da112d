package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret", 60)

	token, err := svc.GenerateToken("user-1", "alice", "member")
	require.NoError(t, err)

	userID, userName, role, err := svc.ParseAuthContext(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "alice", userName)
	assert.Equal(t, "member", role)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewService("secret-a", 60).GenerateToken("user-1", "alice", "member")
	require.NoError(t, err)

	_, err = NewService("secret-b", 60).ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	svc := NewService("test-secret", -1)

	token, err := svc.GenerateToken("user-1", "alice", "member")
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.Error(t, err)
}
