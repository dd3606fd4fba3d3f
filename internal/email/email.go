// Package email provides email sending functionality
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds email configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	UseTLS   bool
	// Timeout bounds a send when the caller's context has no deadline.
	Timeout  time.Duration
}

const defaultTimeout = 10 * time.Second

// Service handles email sending
type Service struct {
	config    *Config
	templates map[string]*template.Template
	logger    *zap.Logger
}

// NewService creates a new email service
func NewService(config *Config, logger *zap.Logger) *Service {
	s := &Service{
		config:    config,
		templates: make(map[string]*template.Template),
		logger:    logger,
	}
	s.loadTemplates()
	return s
}

// Email represents an email message
type Email struct {
	To       []string
	CC       []string
	BCC      []string
	Subject  string
	Body     string
	HTMLBody string
}

// WelcomeEmailData holds data for the account-approved email
type WelcomeEmailData struct {
	FullName string
	Email    string
	Password string
	LoginURL string
}

// RejectionEmailData holds data for the account-rejected email
type RejectionEmailData struct {
	FullName string
}

func (s *Service) loadTemplates() {
	s.templates["welcome"] = template.Must(template.New("welcome").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #0f766e; color: white; padding: 24px; border-radius: 8px 8px 0 0; }
        .content { background: #f9fafb; padding: 24px; border-radius: 0 0 8px 8px; }
        .credentials { background: white; border-radius: 8px; padding: 16px; margin: 16px 0; font-family: monospace; }
        .btn { display: inline-block; background: #0f766e; color: white; padding: 12px 20px; text-decoration: none; border-radius: 6px; margin-top: 16px; }
        .footer { margin-top: 24px; font-size: 12px; color: #6b7280; text-align: center; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h2>Your account has been approved</h2>
    </div>
    <div class="content">
        <p>Hello {{.FullName}},</p>
        <p>Your request for access to the HDSS administration dashboard has been approved. You can sign in with the credentials below.</p>

        <div class="credentials">
            <p><strong>Email:</strong> {{.Email}}</p>
            <p><strong>Temporary password:</strong> {{.Password}}</p>
        </div>

        <p>Please change your password after your first sign-in.</p>

        <a href="{{.LoginURL}}" class="btn">Sign in</a>
    </div>
    <div class="footer">
        HDSS Admin • Population Health Research
    </div>
</div>
</body>
</html>
`))

	s.templates["rejection"] = template.Must(template.New("rejection").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #6b7280; color: white; padding: 24px; border-radius: 8px 8px 0 0; }
        .content { background: #f9fafb; padding: 24px; border-radius: 0 0 8px 8px; }
        .footer { margin-top: 24px; font-size: 12px; color: #6b7280; text-align: center; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h2>Your account request</h2>
    </div>
    <div class="content">
        <p>Hello {{.FullName}},</p>
        <p>Thank you for your interest. After review, your request for access to the HDSS administration dashboard was not approved.</p>
        <p>If you believe this is a mistake, please contact your site coordinator.</p>
    </div>
    <div class="footer">
        HDSS Admin • Population Health Research
    </div>
</div>
</body>
</html>
`))
}

// Enabled reports whether an SMTP host is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.config != nil && s.config.Host != ""
}

// Send sends an email. The whole SMTP exchange is bounded by ctx, or by
// Config.Timeout when ctx has no deadline.
func (s *Service) Send(ctx context.Context, email *Email) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout())
		defer cancel()
	}

	msg := buildMessage(s.config, email)

	recipients := append([]string{}, email.To...)
	recipients = append(recipients, email.CC...)
	recipients = append(recipients, email.BCC...)

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	dialer := &net.Dialer{Timeout: s.timeout()}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("deadline error: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if s.config.UseTLS {
		conn = tls.Client(conn, &tls.Config{ServerName: s.config.Host})
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("SMTP client error: %w", err)
	}
	defer client.Close()

	if !s.config.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err = client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
				return fmt.Errorf("starttls error: %w", err)
			}
		}
	}

	if s.config.User != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
			if err = client.Auth(auth); err != nil {
				return fmt.Errorf("auth error: %w", err)
			}
		}
	}
	if err = client.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail error: %w", err)
	}
	for _, rcpt := range recipients {
		if err = client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt error: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data error: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("close error: %w", err)
	}

	return client.Quit()
}

func (s *Service) timeout() time.Duration {
	if s.config.Timeout > 0 {
		return s.config.Timeout
	}
	return defaultTimeout
}

func buildMessage(cfg *Config, email *Email) []byte {
	var msg bytes.Buffer

	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", cfg.FromName, cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(email.To, ", ")))
	if len(email.CC) > 0 {
		msg.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(email.CC, ", ")))
	}
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if email.HTMLBody != "" {
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(email.HTMLBody)
	} else {
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(email.Body)
	}

	return msg.Bytes()
}

// Render executes a named template.
func (s *Service) Render(templateName string, data any) (string, error) {
	tmpl, ok := s.templates[templateName]
	if !ok {
		return "", fmt.Errorf("template not found: %s", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return body.String(), nil
}

// SendWithTemplate sends an email using a template
func (s *Service) SendWithTemplate(ctx context.Context, to []string, subject, templateName string, data any) error {
	body, err := s.Render(templateName, data)
	if err != nil {
		return err
	}

	return s.Send(ctx, &Email{
		To:       to,
		Subject:  subject,
		HTMLBody: body,
	})
}
