package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-signup/internal/platform/db"
)

var (
	// ErrNotFound indicates the requested user or confirmation does not exist.
	ErrNotFound = errors.New("accounts: not found")
	// ErrDuplicate indicates a confirmation token collision.
	ErrDuplicate = errors.New("accounts: duplicate token")
)

// Repository is the confirmation store. It owns every mutation of the
// users and confirmations tables.
type Repository interface {
	CreateConfirmation(ctx context.Context, c PendingConfirmation) error
	GetConfirmation(ctx context.Context, token string) (*PendingConfirmation, error)
	// DeleteConfirmation removes the row and reports whether it existed.
	DeleteConfirmation(ctx context.Context, token string) (bool, error)
	// DeleteConfirmationsBefore removes rows created before cutoff.
	DeleteConfirmationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// PromoteConfirmation deletes the confirmation and writes the user in one
	// unit of work. Rows created before notBefore are deleted but not promoted
	// and ErrNotFound is returned.
	PromoteConfirmation(ctx context.Context, token string, notBefore time.Time) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool db.Pool
}

// NewRepository constructs a PostgreSQL repository over a *pgxpool.Pool.
func NewRepository(pool db.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateConfirmation inserts a pending confirmation.
func (r *PGRepository) CreateConfirmation(ctx context.Context, c PendingConfirmation) error {
	const query = `
		INSERT INTO confirmations (token, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO NOTHING
	`
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	tag, err := r.pool.Exec(ctx, query, c.Token, NormalizeEmail(c.Email), c.PasswordHash, createdAt)
	if err != nil {
		return fmt.Errorf("accounts: insert confirmation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

// GetConfirmation fetches a pending confirmation by token.
func (r *PGRepository) GetConfirmation(ctx context.Context, token string) (*PendingConfirmation, error) {
	const query = `SELECT token, email, password_hash, created_at FROM confirmations WHERE token = $1`
	var c PendingConfirmation
	err := r.pool.QueryRow(ctx, query, token).Scan(&c.Token, &c.Email, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("accounts: get confirmation: %w", err)
	}
	return &c, nil
}

// DeleteConfirmation removes a pending confirmation. A missing row is not an error.
func (r *PGRepository) DeleteConfirmation(ctx context.Context, token string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM confirmations WHERE token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("accounts: delete confirmation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteConfirmationsBefore removes every confirmation created before cutoff.
func (r *PGRepository) DeleteConfirmationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM confirmations WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("accounts: sweep confirmations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PromoteConfirmation converts a confirmation into a user inside a
// read-committed transaction. The DELETE takes the row lock, so a concurrent
// expiry or second confirmation waits and then observes zero rows.
func (r *PGRepository) PromoteConfirmation(ctx context.Context, token string, notBefore time.Time) (*User, error) {
	var (
		user  *User
		stale bool
	)
	err := db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var c PendingConfirmation
		err := tx.QueryRow(ctx,
			`DELETE FROM confirmations WHERE token = $1 RETURNING email, password_hash, created_at`,
			token,
		).Scan(&c.Email, &c.PasswordHash, &c.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("accounts: consume confirmation: %w", err)
		}
		if c.CreatedAt.Before(notBefore) {
			stale = true
			return nil
		}

		var u User
		err = tx.QueryRow(ctx, `
			INSERT INTO users (email, password_hash, created_at)
			VALUES ($1, $2, now())
			ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash
			RETURNING email, password_hash, created_at
		`, c.Email, c.PasswordHash).Scan(&u.Email, &u.PasswordHash, &u.CreatedAt)
		if err != nil {
			return fmt.Errorf("accounts: upsert user: %w", err)
		}
		user = &u
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stale {
		return nil, ErrNotFound
	}
	return user, nil
}

// FindUserByEmail fetches a user by normalised email.
func (r *PGRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	const query = `SELECT email, password_hash, created_at FROM users WHERE email = $1`
	var u User
	err := r.pool.QueryRow(ctx, query, NormalizeEmail(email)).Scan(&u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("accounts: find user: %w", err)
	}
	return &u, nil
}

var _ Repository = (*PGRepository)(nil)
