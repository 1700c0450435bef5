package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/deskline/support-desk/internal/domain"
)

// OutboundEmail is a plain-text reply.
type OutboundEmail struct {
	To        string
	Subject   string
	Body      string
	InReplyTo string
}

// Mailer delivers outbound email.
type Mailer interface {
	Send(ctx context.Context, email OutboundEmail) error
}

// SMTPMailer sends through the SMTP server configured on an email channel.
type SMTPMailer struct {
	cfg  domain.EmailConfig
	from string
}

// NewSMTPMailer uses the channel's from address, falling back to defaultFrom.
func NewSMTPMailer(cfg domain.EmailConfig, defaultFrom string) Mailer {
	from := cfg.FromAddress
	if from == "" {
		from = defaultFrom
	}
	return &SMTPMailer{cfg: cfg, from: from}
}

func (m *SMTPMailer) Send(ctx context.Context, email OutboundEmail) error {
	if m.cfg.SMTPHost == "" {
		return errors.New("smtp host not configured")
	}
	if m.from == "" {
		return errors.New("no from address configured")
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(email.To); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(email.Subject)
	if email.InReplyTo != "" {
		msg.SetGenHeader(mail.HeaderInReplyTo, email.InReplyTo)
		msg.SetGenHeader(mail.HeaderReferences, email.InReplyTo)
	}
	msg.SetBodyString(mail.TypeTextPlain, email.Body)

	client, err := mail.NewClient(m.cfg.SMTPHost, m.options()...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (m *SMTPMailer) options() []mail.Option {
	var opts []mail.Option
	if m.cfg.SMTPPort > 0 {
		opts = append(opts, mail.WithPort(m.cfg.SMTPPort))
	}
	if m.cfg.SMTPSecure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if m.cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.SMTPUser),
			mail.WithPassword(m.cfg.SMTPPass))
	}
	return opts
}
