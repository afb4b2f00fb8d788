package mail

import "go.uber.org/zap"

// ConsoleMailer logs messages instead of delivering them. Used in
// development and whenever the transport is disabled.
type ConsoleMailer struct {
	logger *zap.Logger
}

// NewConsoleMailer builds a console mailer.
func NewConsoleMailer(logger *zap.Logger) *ConsoleMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleMailer{logger: logger}
}

// Send logs the message at debug level.
func (m *ConsoleMailer) Send(msg Message) error {
	m.logger.Debug("outbound email",
		zap.String("to", msg.ToAddress),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
