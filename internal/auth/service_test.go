package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-signup/internal/accounts"
	"github.com/odyssey-erp/odyssey-signup/internal/credential"
	"github.com/odyssey-erp/odyssey-signup/internal/shared"
)

type stubUsers struct {
	users map[string]*accounts.User
	err   error
}

func (s *stubUsers) FindUserByEmail(ctx context.Context, email string) (*accounts.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[email]; ok {
		return u, nil
	}
	return nil, accounts.ErrNotFound
}

type countingHasher struct {
	*credential.Hasher
	verifies int
	dummies  int
}

func (c *countingHasher) Verify(plaintext, digest string) bool {
	c.verifies++
	return c.Hasher.Verify(plaintext, digest)
}

func (c *countingHasher) Dummy(plaintext string) {
	c.dummies++
	c.Hasher.Dummy(plaintext)
}

func newTestHasher() *credential.Hasher {
	return credential.NewHasher("pepper-salt", credential.Params{Memory: 64, Time: 1, Threads: 1, KeyLen: 32})
}

func TestLoginSuccess(t *testing.T) {
	h := newTestHasher()
	digest, err := h.Hash("pw1")
	require.NoError(t, err)
	svc := NewService(&stubUsers{users: map[string]*accounts.User{
		"alice@example.com": {Email: "alice@example.com", PasswordHash: digest},
	}}, h)

	user, err := svc.Login(context.Background(), "  Alice@Example.com ", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestLoginIndistinguishableFailures(t *testing.T) {
	hasher := &countingHasher{Hasher: newTestHasher()}
	digest, err := hasher.Hash("pw1")
	require.NoError(t, err)
	svc := NewService(&stubUsers{users: map[string]*accounts.User{
		"alice@example.com": {Email: "alice@example.com", PasswordHash: digest},
	}}, hasher)

	_, wrongPassword := svc.Login(context.Background(), "alice@example.com", "wrong")
	_, unknownUser := svc.Login(context.Background(), "nobody@example.com", "pw1")

	require.ErrorIs(t, wrongPassword, shared.ErrInvalidCredentials)
	require.ErrorIs(t, unknownUser, shared.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword, unknownUser)
	assert.Equal(t, 1, hasher.verifies)
	assert.Equal(t, 1, hasher.dummies)
}

func TestLoginStoreFault(t *testing.T) {
	svc := NewService(&stubUsers{err: errors.New("connection reset")}, newTestHasher())
	_, err := svc.Login(context.Background(), "alice@example.com", "pw1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
}
