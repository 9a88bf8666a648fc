package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/wneessen/go-mail"

	"github.com/noah-isme/research-portal-api/pkg/config"
)

// Message is a rendered email ready to be delivered.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// SMTPMailer delivers messages through an SMTP relay.
type SMTPMailer struct {
	cfg config.NotificationConfig
}

// NewSMTPMailer builds a mailer for the given relay settings.
func NewSMTPMailer(cfg config.NotificationConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send dials the relay and delivers a single message.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	out := mail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		out.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.SMTPUsername),
			mail.WithPassword(m.cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(m.cfg.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

// AccessCodeData feeds the access code templates.
type AccessCodeData struct {
	Name string
	Code string
	Role string
}

var accessCodeHTML = template.Must(template.New("access_code").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Hola {{.Name}},</h2>
  <p>Tu cuenta en el portal de investigación fue creada con el rol <strong>{{.Role}}</strong>.</p>
  <p>Tu código de acceso es:</p>
  <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">{{.Code}}</p>
  <p>Usa este código junto a tu correo institucional para iniciar sesión.</p>
</body>
</html>`))

// RenderAccessCode builds the notification sent after registration.
func RenderAccessCode(to string, data AccessCodeData) (Message, error) {
	var buf bytes.Buffer
	if err := accessCodeHTML.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render access code: %w", err)
	}
	text := fmt.Sprintf("Hola %s,\n\nTu cuenta fue creada con el rol %s.\nTu código de acceso es: %s\n", data.Name, data.Role, data.Code)
	return Message{
		To:      to,
		Subject: "Código de acceso - Portal de investigación",
		HTML:    buf.String(),
		Text:    text,
	}, nil
}
