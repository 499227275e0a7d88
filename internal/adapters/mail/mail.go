// Package mail delivers session invitations.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/podnest/studio/internal/app"
	"github.com/podnest/studio/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var inviteTmpl = template.Must(template.New("invite").Parse(`<html>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4; padding: 20px;">
  <div style="background-color: #ffffff; padding: 40px; border-radius: 10px; max-width: 600px; margin: auto;">
    <h2 style="color: #8b5cf6;">You're scheduled to record!</h2>
    <p>Hi {{.RecipientName}},</p>
    <p>You've been invited as a guest for the session: <strong>{{.SessionTitle}}</strong>.</p>
    <p><strong>Time:</strong> {{.StartTime}}</p>
    <p>Click the button below at the scheduled time to join the recording. No account is required!</p>
    <div style="text-align: center; margin: 40px 0;">
      <a href="{{.JoinURL}}" style="background-color: #8b5cf6; color: white; padding: 15px 30px; text-decoration: none; border-radius: 8px; font-weight: bold;">Join Session</a>
    </div>
    <p style="color: #666; font-size: 12px;">If the button doesn't work, copy and paste this link:<br/>{{.JoinURL}}</p>
  </div>
</body>
</html>
`))

// LogMailer only logs invitations. Used when no SMTP host is configured.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer() *LogMailer {
	return &LogMailer{log: log.With().Str("module", "mail").Logger()}
}

func (m *LogMailer) SendSessionInvite(_ context.Context, inv app.Invite) error {
	m.log.Info().
		Str("to", inv.Recipient).
		Str("session", inv.SessionTitle).
		Str("start", inv.StartTime).
		Str("join_url", inv.JoinURL).
		Msg("session invite (not delivered, smtp disabled)")
	return nil
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
	send sendFunc
	log  zerolog.Logger
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth: auth,
		from: cfg.From,
		send: smtp.SendMail,
		log:  log.With().Str("module", "mail").Logger(),
	}
}

// New picks SMTP delivery when a host is configured.
func New(cfg config.SMTPConfig) app.Mailer {
	if cfg.Host == "" {
		return NewLogMailer()
	}
	return NewSMTPMailer(cfg)
}

func (m *SMTPMailer) SendSessionInvite(ctx context.Context, inv app.Invite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := buildInvite(m.from, inv)
	if err != nil {
		return err
	}
	if err := m.send(m.addr, m.auth, envelopeAddr(m.from), []string{inv.Recipient}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", inv.Recipient, err)
	}
	m.log.Debug().Str("to", inv.Recipient).Str("session", inv.SessionTitle).Msg("invite sent")
	return nil
}

func buildInvite(from string, inv app.Invite) ([]byte, error) {
	if inv.RecipientName == "" {
		inv.RecipientName = "there"
	}
	var body bytes.Buffer
	if err := inviteTmpl.Execute(&body, inv); err != nil {
		return nil, fmt.Errorf("render invite: %w", err)
	}
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", inv.Recipient)
	fmt.Fprintf(&msg, "Subject: Upcoming Recording: %s\r\n", headerSafe(inv.SessionTitle))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// envelopeAddr extracts the bare address from "Name <addr>".
func envelopeAddr(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return from
}
