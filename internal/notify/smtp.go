package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds relay credentials and sender identity.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	ServerName string
}

type mailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPDispatcher delivers plain-text confirmation messages through an SMTP relay.
type SMTPDispatcher struct {
	client mailClient
	cfg    SMTPConfig
	links  LinkBuilder
}

// NewSMTPDispatcher constructs a dispatcher authenticating with SMTP AUTH PLAIN
// over a mandatory TLS connection.
func NewSMTPDispatcher(cfg SMTPConfig, links LinkBuilder) (*SMTPDispatcher, error) {
	opts := []mail.Option{
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: smtp client: %w", err)
	}
	return &SMTPDispatcher{client: client, cfg: cfg, links: links}, nil
}

// Send builds and delivers the confirmation message.
func (d *SMTPDispatcher) Send(ctx context.Context, token, to string) error {
	msg, err := d.message(token, to)
	if err != nil {
		return err
	}
	if err := d.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

func (d *SMTPDispatcher) message(token, to string) (*mail.Msg, error) {
	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	from := d.cfg.From
	if from == "" {
		from = d.cfg.Username
	}
	if err := msg.FromFormat(d.cfg.ServerName, from); err != nil {
		return nil, fmt.Errorf("%w: from address: %v", ErrDelivery, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("%w: to address: %v", ErrDelivery, err)
	}
	msg.Subject(Subject)
	msg.SetBodyString(mail.TypeTextPlain, d.links.ConfirmationURL(token))
	return msg, nil
}

var _ Dispatcher = (*SMTPDispatcher)(nil)
