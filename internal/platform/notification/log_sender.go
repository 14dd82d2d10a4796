package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogSender writes messages to the log instead of delivering them. It is
// wired for channels without a provider when running in development.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendSMS(_ context.Context, to, body string) (DeliveryResult, error) {
	id := uuid.New().String()
	s.Logger.Info().Str("channel", "sms").Str("to", to).Str("message_id", id).Str("body", body).Msg("sms not delivered (log sender)")
	return DeliveryResult{ProviderStatus: "logged", MessageID: id}, nil
}

func (s LogSender) SendEmail(_ context.Context, to, subject, body string) (DeliveryResult, error) {
	id := uuid.New().String()
	s.Logger.Info().Str("channel", "email").Str("to", to).Str("message_id", id).Str("subject", subject).Msg("email not delivered (log sender)")
	return DeliveryResult{ProviderStatus: "logged", MessageID: id}, nil
}
