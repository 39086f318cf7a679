package messaging

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Outbound is one reply headed back to the messaging channel.
type Outbound struct {
	UserID     string
	Text       string
	DeliveryID string
}

// Sender delivers replies to the channel provider. The HTTP layer responds
// synchronously; a Sender covers channels that push outbound messages through
// a separate provider API instead.
type Sender interface {
	Send(ctx context.Context, msg Outbound) error
}

// LogSender records outbound messages without delivering them anywhere.
// Used in development and as the default when no channel provider is wired.
type LogSender struct {
	Log *logrus.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Outbound) error {
	s.Log.WithFields(logrus.Fields{
		"user_id":     msg.UserID,
		"delivery_id": msg.DeliveryID,
		"length":      len(msg.Text),
	}).Info("outbound message")
	return nil
}

// Truncate caps a reply at the channel's message length limit, cutting at a
// rune boundary so multi-byte text is never split mid-character.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	const ellipsis = "…"
	return string(runes[:limit-1]) + ellipsis
}
