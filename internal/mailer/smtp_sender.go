package mailer

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/util"
)

// SMTPSender delivers one-time codes by email. DialAndSend opens a fresh
// connection per message, which is fine at admin-login volume.
type SMTPSender struct {
	dialer  *gomail.Dialer
	from    string
	codeTTL time.Duration
}

func NewSMTPSender(cfg *config.Config) *SMTPSender {
	smtp := cfg.SMTP
	return &SMTPSender{
		dialer:  gomail.NewDialer(smtp.Host, smtp.Port, smtp.Username, smtp.Password),
		from:    smtp.From,
		codeTTL: cfg.Auth.CodeTTL,
	}
}

// Send emails the plaintext code to the administrator. gomail has no
// context-aware API, so the send runs in a goroutine and the context can
// only abandon the wait, not the dial.
func (s *SMTPSender) Send(ctx context.Context, identity, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", identity)
	m.SetHeader("Subject", "Your admin sign-in code")

	body := fmt.Sprintf(`
		<h3>Admin sign-in</h3>
		<p>Your one-time code is: <strong>%s</strong></p>
		<p>It expires in %d minutes. If you did not request this code, you can ignore this email.</p>
	`, code, int(s.codeTTL.Minutes()))
	m.SetBody("text/html", body)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send sign-in code email: %w", err)
		}
		util.Info("Sign-in code email sent")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send sign-in code email: %w", ctx.Err())
	}
}
