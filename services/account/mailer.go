package account

import (
	"context"

	"go.uber.org/zap"
)

// Mailer delivers verification tokens to users.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
}

// LogMailer writes verification tokens to the log instead of sending mail.
// It is the development default.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendVerification implements Mailer.
func (m *LogMailer) SendVerification(_ context.Context, email, token string) error {
	m.logger.Info("verification email",
		zap.String("to", email),
		zap.String("token", token))
	return nil
}
