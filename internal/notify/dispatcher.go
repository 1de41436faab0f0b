// Package notify delivers confirmation links to the address claimed at registration.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrDelivery wraps every failure to hand a message to the relay.
var ErrDelivery = errors.New("notify: delivery failed")

// Subject is the subject line of confirmation messages.
const Subject = "Confirmation"

// Dispatcher sends a confirmation token to a destination address.
type Dispatcher interface {
	Send(ctx context.Context, token, to string) error
}

// LinkBuilder renders the confirmation URL embedded in outbound messages.
type LinkBuilder struct {
	Domain string
	Port   string
}

// ConfirmationURL renders https://{domain}:{port}/confirm/{token}.
func (b LinkBuilder) ConfirmationURL(token string) string {
	return fmt.Sprintf("https://%s:%s/confirm/%s", b.Domain, b.Port, token)
}

// LogDispatcher writes the confirmation link to the log instead of sending mail.
type LogDispatcher struct {
	logger *slog.Logger
	links  LinkBuilder
}

// NewLogDispatcher constructs a LogDispatcher.
func NewLogDispatcher(logger *slog.Logger, links LinkBuilder) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger, links: links}
}

// Send logs the link.
func (d *LogDispatcher) Send(ctx context.Context, token, to string) error {
	d.logger.InfoContext(ctx, "confirmation issued",
		slog.String("email", to),
		slog.String("subject", Subject),
		slog.String("link", d.links.ConfirmationURL(token)),
	)
	return nil
}

var _ Dispatcher = (*LogDispatcher)(nil)
