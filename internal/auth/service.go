package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-signup/internal/accounts"
	"github.com/odyssey-erp/odyssey-signup/internal/shared"
)

// UserFinder looks up confirmed users.
type UserFinder interface {
	FindUserByEmail(ctx context.Context, email string) (*accounts.User, error)
}

// PasswordVerifier checks plaintext passwords against stored digests.
type PasswordVerifier interface {
	Verify(plaintext, digest string) bool
	Dummy(plaintext string)
}

// Service wraps authentication business rules.
type Service struct {
	users  UserFinder
	hasher PasswordVerifier
}

// NewService constructs a new Service.
func NewService(users UserFinder, hasher PasswordVerifier) *Service {
	return &Service{users: users, hasher: hasher}
}

// Login validates email/password credentials. An unknown email and a wrong
// password both return shared.ErrInvalidCredentials after one hash each.
func (s *Service) Login(ctx context.Context, email, password string) (*accounts.User, error) {
	user, err := s.users.FindUserByEmail(ctx, accounts.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			s.hasher.Dummy(password)
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: lookup user: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}
