package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/skillforge/skillforge-lms/internal/domain/certificate"
	"github.com/skillforge/skillforge-lms/pkg/circuitbreaker"
	"github.com/skillforge/skillforge-lms/pkg/retry"
)

// Mailer sends a single email through the configured gateway.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EmailNotifier implements Notifier on top of a mail gateway, with retry and
// a circuit breaker. Notification is best effort end to end: callers log a
// returned error and move on.
type EmailNotifier struct {
	mailer  Mailer
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewEmailNotifier creates the notifier.
func NewEmailNotifier(mailer Mailer, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}

	breaker := circuitbreaker.MailBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("mail circuit state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})

	return &EmailNotifier{
		mailer:  mailer,
		retrier: retry.MailRetrier(),
		breaker: breaker,
		logger:  logger,
	}
}

// NotifyCertificateIssued emails the student about their new certificate.
func (n *EmailNotifier) NotifyCertificateIssued(ctx context.Context, cert *certificate.Certificate) error {
	subject := "Your course certificate is ready"
	body := fmt.Sprintf(
		"Congratulations! Certificate %s has been issued.\nVerification code: %s\n",
		cert.Number,
		cert.VerificationCode,
	)

	return n.retrier.Do(ctx, func(ctx context.Context) error {
		err := n.breaker.Execute(ctx, func(ctx context.Context) error {
			return n.mailer.Send(ctx, cert.StudentID, subject, body)
		})
		if err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
}

// SMTPMailer delivers mail through an SMTP gateway.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPMailer creates a mailer for the given gateway. username may be empty
// for unauthenticated relays.
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
	}
}

// Send delivers one message. The context deadline is not honored by the
// underlying SMTP call; the retrier's per-attempt timeout bounds it instead.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := []byte(
		"From: " + m.from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"\r\n" +
			body,
	)
	return smtp.SendMail(m.addr, m.auth, m.from, []string{to}, msg)
}

// LogMailer is a Mailer that only logs, for development and tests.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a logging mailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send logs the message instead of delivering it.
func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.Info("mail (log only)", "to", to, "subject", subject)
	return nil
}
