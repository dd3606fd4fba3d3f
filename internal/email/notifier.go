package email

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("email not configured")

// TemplateSender is the part of Service the Notifier needs.
type TemplateSender interface {
	SendWithTemplate(ctx context.Context, to []string, subject, templateName string, data any) error
}

// Notifier sends account lifecycle emails. Failures are logged and reported
// as false rather than returned.
type Notifier struct {
	sender   TemplateSender
	loginURL string
	logger   *zap.Logger
}

func NewNotifier(sender TemplateSender, loginURL string, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender:   sender,
		loginURL: loginURL,
		logger:   logger,
	}
}

// SendWelcomeEmail delivers the credentials of a newly approved account.
func (n *Notifier) SendWelcomeEmail(ctx context.Context, to, fullName, password string) bool {
	err := n.sender.SendWithTemplate(
		ctx,
		[]string{to},
		"[HDSS] Your account has been approved",
		"welcome",
		WelcomeEmailData{
			FullName: fullName,
			Email:    to,
			Password: password,
			LoginURL: n.loginURL,
		},
	)
	if err != nil {
		n.logger.Warn("welcome email not sent", zap.String("to", to), zap.Error(err))
		return false
	}
	n.logger.Info("welcome email sent", zap.String("to", to))
	return true
}

// SendRejectionEmail tells an applicant their request was declined.
func (n *Notifier) SendRejectionEmail(ctx context.Context, to, fullName string) bool {
	err := n.sender.SendWithTemplate(
		ctx,
		[]string{to},
		"[HDSS] Your account request",
		"rejection",
		RejectionEmailData{FullName: fullName},
	)
	if err != nil {
		n.logger.Warn("rejection email not sent", zap.String("to", to), zap.Error(err))
		return false
	}
	n.logger.Info("rejection email sent", zap.String("to", to))
	return true
}
