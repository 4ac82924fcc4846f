package email

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Sender define la interfaz para envío de correos de verificación.
// El mismo correo lleva el código OTP y el link firmado.
type Sender interface {
	SendVerification(ctx context.Context, toEmail, code, link string, expiresAt time.Time) error
}

type logSender struct {
	logger *zap.Logger
}

// NewLogSender crea un sender de desarrollo que loguea en vez de enviar.
// Nunca debe montarse en producción.
func NewLogSender(logger *zap.Logger) Sender {
	return &logSender{logger: logger}
}

func (s *logSender) SendVerification(_ context.Context, toEmail, code, link string, expiresAt time.Time) error {
	if s.logger == nil {
		return errors.New("email sender not configured")
	}
	s.logger.Warn("email transport not configured, logging verification instead",
		zap.String("to", toEmail),
		zap.String("code", code),
		zap.String("link", link),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}
