package accounts

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository. A single mutex makes every
// operation atomic, which gives PromoteConfirmation the same
// delete-then-insert guarantee as the PostgreSQL transaction.
type MemoryRepository struct {
	mu            sync.Mutex
	users         map[string]User
	confirmations map[string]PendingConfirmation
	now           func() time.Time
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:         make(map[string]User),
		confirmations: make(map[string]PendingConfirmation),
		now:           time.Now,
	}
}

// CreateConfirmation stores a pending confirmation.
func (m *MemoryRepository) CreateConfirmation(ctx context.Context, c PendingConfirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.confirmations[c.Token]; ok {
		return ErrDuplicate
	}
	c.Email = NormalizeEmail(c.Email)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	m.confirmations[c.Token] = c
	return nil
}

// GetConfirmation returns a copy of the stored confirmation.
func (m *MemoryRepository) GetConfirmation(ctx context.Context, token string) (*PendingConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.confirmations[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// DeleteConfirmation removes a confirmation if present.
func (m *MemoryRepository) DeleteConfirmation(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.confirmations[token]
	delete(m.confirmations, token)
	return ok, nil
}

// DeleteConfirmationsBefore removes confirmations created before cutoff.
func (m *MemoryRepository) DeleteConfirmationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for token, c := range m.confirmations {
		if c.CreatedAt.Before(cutoff) {
			delete(m.confirmations, token)
			removed++
		}
	}
	return removed, nil
}

// PromoteConfirmation consumes the confirmation and upserts the user.
func (m *MemoryRepository) PromoteConfirmation(ctx context.Context, token string, notBefore time.Time) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.confirmations[token]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.confirmations, token)
	if c.CreatedAt.Before(notBefore) {
		return nil, ErrNotFound
	}
	u := User{Email: c.Email, PasswordHash: c.PasswordHash, CreatedAt: m.now()}
	if existing, ok := m.users[c.Email]; ok {
		u.CreatedAt = existing.CreatedAt
	}
	m.users[c.Email] = u
	return &u, nil
}

// FindUserByEmail looks a user up by normalised email.
func (m *MemoryRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// Users returns a snapshot of stored users.
func (m *MemoryRepository) Users() []User {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out
}

// Confirmations returns a snapshot of pending confirmations.
func (m *MemoryRepository) Confirmations() []PendingConfirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PendingConfirmation, 0, len(m.confirmations))
	for _, c := range m.confirmations {
		out = append(out, c)
	}
	return out
}

var _ Repository = (*MemoryRepository)(nil)
