package accounts

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// User is a confirmed account.
type User struct {
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// PendingConfirmation is a registration awaiting email confirmation.
type PendingConfirmation struct {
	Token        string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// NormalizeEmail trims surrounding whitespace and case folds the whole
// address. Every read and write of an email goes through it.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}
