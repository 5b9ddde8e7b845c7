package notify

import (
	"context"

	"go.uber.org/zap"
)

// Message kinds emitted by the lifecycle engine. Delivery transport is owned
// by the estate's messaging gateway; this package only hands messages off.
const (
	KindViolationDetected = "violation.detected"
	KindNoticeIssued      = "notice.issued"
	KindEscalated         = "violation.escalated"
	KindTowEligible       = "violation.tow_eligible"
)

// Message is a lifecycle event worth telling a human about.
type Message struct {
	Kind        string
	ViolationID string
	Site        string
	Plate       string
	Detail      string
}

// Sender delivers lifecycle messages. Implementations must not block the
// caller; dispatch failures are logged, never propagated.
type Sender interface {
	Send(ctx context.Context, msg Message)
}

// LogSender records messages on the structured log. It stands in until the
// messaging gateway integration lands.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a log-backed sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) {
	s.logger.Sugar().Infow("lifecycle notification",
		"kind", msg.Kind,
		"violation_id", msg.ViolationID,
		"site", msg.Site,
		"plate", msg.Plate,
		"detail", msg.Detail,
	)
}
