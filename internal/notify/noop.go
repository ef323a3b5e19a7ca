package notify

import (
	"context"

	"go.uber.org/zap"
)

// NoopSender is used when no SMTP server is configured. It logs the message
// instead of delivering it, so local environments work without mail setup.
type NoopSender struct {
	logger *zap.Logger
}

// NewNoopSender creates a new NoopSender
func NewNoopSender(logger *zap.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

// Send logs the message and drops it
func (s *NoopSender) Send(ctx context.Context, to, subject, htmlBody string, attachments ...Attachment) error {
	s.logger.Info("Mail delivery skipped (no SMTP configured)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("attachments", len(attachments)),
	)
	return nil
}
