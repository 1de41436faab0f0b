// Package confirmation owns the lifecycle of pending registrations: token
// issue, dispatch, autonomous expiry and single-use promotion into a user.
package confirmation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-signup/internal/accounts"
	"github.com/odyssey-erp/odyssey-signup/internal/notify"
)

const (
	// DefaultTTL applies when Config.TTL is zero.
	DefaultTTL = time.Hour
	// DefaultDispatchTimeout bounds a single delivery attempt.
	DefaultDispatchTimeout = time.Minute
	// maxTokenLength matches the confirmations.token column.
	maxTokenLength = 128
	tokenBytes     = 32
	tokenAttempts  = 3
)

var (
	// ErrInvalidCredential indicates the password could not be hashed.
	ErrInvalidCredential = errors.New("confirmation: invalid credential")
	// ErrInvalidToken indicates the token is unknown, consumed or expired.
	ErrInvalidToken = errors.New("confirmation: invalid or expired token")
)

// Registration outcomes reported to the Recorder.
const (
	OutcomeStarted    = "started"
	OutcomeDispatched = "dispatched"
	OutcomeFailed     = "failed"
	OutcomeConfirmed  = "confirmed"
	OutcomeExpired    = "expired"
)

// PasswordHasher produces digests for new credentials.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// Scheduler arranges for Expire to run for token once after has elapsed.
type Scheduler interface {
	ScheduleExpiry(ctx context.Context, token string, after time.Duration) error
}

// Recorder receives lifecycle outcomes, typically for metrics.
type Recorder interface {
	RecordRegistration(outcome string)
}

// Config tunes the Manager.
type Config struct {
	TTL             time.Duration
	DispatchTimeout time.Duration
}

// Manager coordinates registration, confirmation and expiry.
type Manager struct {
	repo            accounts.Repository
	hasher          PasswordHasher
	dispatcher      notify.Dispatcher
	scheduler       Scheduler
	recorder        Recorder
	logger          *slog.Logger
	ttl             time.Duration
	dispatchTimeout time.Duration
	now             func() time.Time
	newToken        func() (string, error)
	inflight        sync.WaitGroup
}

// Deps groups the collaborators of a Manager.
type Deps struct {
	Repository accounts.Repository
	Hasher     PasswordHasher
	Dispatcher notify.Dispatcher
	Scheduler  Scheduler
	Recorder   Recorder
	Logger     *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(deps Deps, cfg Config) *Manager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	timeout := cfg.DispatchTimeout
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:            deps.Repository,
		hasher:          deps.Hasher,
		dispatcher:      deps.Dispatcher,
		scheduler:       deps.Scheduler,
		recorder:        deps.Recorder,
		logger:          logger,
		ttl:             ttl,
		dispatchTimeout: timeout,
		now:             time.Now,
		newToken:        generateToken,
	}
}

// TTL exposes the confirmation lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// BeginRegistration stores a pending confirmation for email and returns its
// token. The row is written before expiry is scheduled, so the timer can never
// fire ahead of the insert. Mail delivery continues in the background; if it
// fails the row is removed and the attempt is abandoned.
func (m *Manager) BeginRegistration(ctx context.Context, email, password string) (string, error) {
	digest, err := m.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	email = accounts.NormalizeEmail(email)

	token, err := m.insert(ctx, email, digest)
	if err != nil {
		return "", err
	}
	m.record(OutcomeStarted)

	if err := m.scheduler.ScheduleExpiry(ctx, token, m.ttl); err != nil {
		if _, delErr := m.repo.DeleteConfirmation(context.WithoutCancel(ctx), token); delErr != nil {
			m.logger.Error("discard unscheduled confirmation", slog.String("email", email), slog.Any("error", delErr))
		}
		m.record(OutcomeFailed)
		return "", fmt.Errorf("confirmation: schedule expiry: %w", err)
	}

	m.inflight.Add(1)
	go m.dispatch(context.WithoutCancel(ctx), token, email)

	return token, nil
}

func (m *Manager) insert(ctx context.Context, email, digest string) (string, error) {
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		token, err := m.newToken()
		if err != nil {
			return "", fmt.Errorf("confirmation: generate token: %w", err)
		}
		err = m.repo.CreateConfirmation(ctx, accounts.PendingConfirmation{
			Token:        token,
			Email:        email,
			PasswordHash: digest,
			CreatedAt:    m.now().UTC(),
		})
		if errors.Is(err, accounts.ErrDuplicate) {
			continue
		}
		if err != nil {
			return "", err
		}
		return token, nil
	}
	return "", fmt.Errorf("confirmation: token collision after %d attempts", tokenAttempts)
}

func (m *Manager) dispatch(ctx context.Context, token, email string) {
	defer m.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, m.dispatchTimeout)
	defer cancel()

	if err := m.dispatcher.Send(ctx, token, email); err != nil {
		m.logger.Error("confirmation dispatch failed", slog.String("email", email), slog.Any("error", err))
		if _, err := m.repo.DeleteConfirmation(context.WithoutCancel(ctx), token); err != nil {
			m.logger.Error("discard undelivered confirmation", slog.String("email", email), slog.Any("error", err))
		}
		m.record(OutcomeFailed)
		return
	}
	m.record(OutcomeDispatched)
}

// Expire deletes the pending confirmation for token. Unknown tokens are a no-op.
func (m *Manager) Expire(ctx context.Context, token string) error {
	existed, err := m.repo.DeleteConfirmation(ctx, token)
	if err != nil {
		return err
	}
	if existed {
		m.record(OutcomeExpired)
	}
	return nil
}

// Confirm consumes token and returns the user it created. Rows older than
// the TTL are treated as expired even when their timer has not fired yet.
func (m *Manager) Confirm(ctx context.Context, token string) (*accounts.User, error) {
	if token == "" || len(token) > maxTokenLength {
		return nil, ErrInvalidToken
	}
	user, err := m.repo.PromoteConfirmation(ctx, token, m.now().Add(-m.ttl))
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	m.record(OutcomeConfirmed)
	return user, nil
}

// Sweep removes confirmations older than the TTL and returns how many were deleted.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	removed, err := m.repo.DeleteConfirmationsBefore(ctx, m.now().Add(-m.ttl))
	if err != nil {
		return 0, err
	}
	for i := int64(0); i < removed; i++ {
		m.record(OutcomeExpired)
	}
	return removed, nil
}

// Wait blocks until every background dispatch has finished.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) record(outcome string) {
	if m.recorder != nil {
		m.recorder.RecordRegistration(outcome)
	}
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
