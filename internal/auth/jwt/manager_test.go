package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_GenerateToken(t *testing.T) {
	manager := NewManager("test-secret-key-32-chars-long-minimum", "mailwatch", time.Hour)

	token, err := manager.GenerateToken("admin")
	require.NoError(t, err)

	assert.NotEmpty(t, token.Token)
	assert.Equal(t, int64(3600), token.ExpiresIn)
}

func TestManager_ValidateToken(t *testing.T) {
	manager := NewManager("test-secret-key-32-chars-long-minimum", "mailwatch", time.Hour)

	token, err := manager.GenerateToken("admin")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "mailwatch", claims.Issuer)
}

func TestManager_ValidateToken_Invalid(t *testing.T) {
	manager := NewManager("test-secret-key-32-chars-long-minimum", "mailwatch", time.Hour)

	t.Run("格式非法的令牌", func(t *testing.T) {
		_, err := manager.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("密钥不匹配的令牌", func(t *testing.T) {
		other := NewManager("another-secret-key-32-chars-long-min", "mailwatch", time.Hour)
		token, err := other.GenerateToken("admin")
		require.NoError(t, err)

		_, verr := manager.ValidateToken(token.Token)
		assert.ErrorIs(t, verr, ErrInvalidToken)
	})

	t.Run("已过期的令牌", func(t *testing.T) {
		expired := NewManager("test-secret-key-32-chars-long-minimum", "mailwatch", -time.Minute)
		token, err := expired.GenerateToken("admin")
		require.NoError(t, err)

		_, verr := manager.ValidateToken(token.Token)
		assert.ErrorIs(t, verr, ErrExpiredToken)
	})
}
