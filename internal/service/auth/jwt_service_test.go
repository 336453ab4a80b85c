package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobdeck/jobdeck-api/internal/config"
)

const testSecret = "test-secret-key-thats-at-least-32-characters"

func newTestService(t *testing.T) *hmacJWTService {
	t.Helper()

	svc, err := NewJWTService(config.AuthConfig{JWTSecret: testSecret})
	require.NoError(t, err)
	return svc.(*hmacJWTService)
}

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewJWTService(config.AuthConfig{JWTSecret: "too short"})
	assert.Error(t, err)
}

func TestValidateTokenRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)
	userID := uuid.New()

	token, err := svc.GenerateToken(ctx, userID, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestValidateTokenExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)

	issued := time.Now().Add(-24 * time.Hour)
	svc.timeFunc = func() time.Time { return issued }
	token, err := svc.GenerateToken(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)

	svc.timeFunc = time.Now
	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenWrongKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)

	other, err := NewJWTService(config.AuthConfig{
		JWTSecret: "another-secret-key-also-32-characters-minimum",
	})
	require.NoError(t, err)

	token, err := other.GenerateToken(ctx, uuid.New(), time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenMalformed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)

	for _, token := range []string{"not.a.jwt", "garbage", strings.Repeat("x", 200)} {
		_, err := svc.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestValidateTokenEmpty(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	_, err := svc.ValidateToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
}
