package notify

import (
	"context"

	"go.uber.org/zap"
)

// Log is a Notifier that only records the message. It is the default for
// development and the fallback when no webhook is configured.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a logging notifier.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

// Notify implements Notifier.
func (l *Log) Notify(_ context.Context, msg Message) error {
	l.logger.Info("notification",
		zap.String("event", msg.Event),
		zap.String("recipient", msg.Recipient),
		zap.String("document_id", msg.DocumentID),
	)
	return nil
}
