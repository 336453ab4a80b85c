package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MockJWTService is a configurable JWTService for handler and middleware
// tests.
type MockJWTService struct {
	// ValidateFn, when set, handles each ValidateToken call.
	ValidateFn func(ctx context.Context, tokenString string) (*Claims, error)

	// UserID is returned in the claims when ValidateFn is nil.
	UserID uuid.UUID
}

var _ JWTService = (*MockJWTService)(nil)

func (m *MockJWTService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if m.ValidateFn != nil {
		return m.ValidateFn(ctx, tokenString)
	}
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	return &Claims{UserID: m.UserID, Subject: m.UserID.String()}, nil
}

func (m *MockJWTService) GenerateToken(_ context.Context, userID uuid.UUID, _ time.Duration) (string, error) {
	return "mock-token-" + userID.String(), nil
}
