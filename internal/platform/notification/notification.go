// Package notification delivers patient messages over SMS and email and
// renders the message templates used for appointment reminders.
package notification

import (
	"context"
	"fmt"
)

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// DeliveryResult describes what the provider reported for one send attempt.
// It is returned alongside a failure too, when the provider answered.
type DeliveryResult struct {
	ProviderStatus string `json:"provider_status,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// SMSSender sends a text message. A nil error means the provider accepted it.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (DeliveryResult, error)
}

// EmailSender sends (or hands off) an email. A nil error means it was accepted.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) (DeliveryResult, error)
}

// DeliveryError is a failure reported by a provider rather than by transport.
type DeliveryError struct {
	Provider string
	Status   string
	Message  string
}

func (e *DeliveryError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s delivery failed: %s", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s delivery failed: %s", e.Provider, e.Message)
}

// Unconfigured fails every send. Used for channels with no provider set up.
type Unconfigured struct {
	Channel Channel
}

func (u Unconfigured) SendSMS(context.Context, string, string) (DeliveryResult, error) {
	return DeliveryResult{ProviderStatus: "unconfigured"}, fmt.Errorf("%s channel is not configured", u.Channel)
}

func (u Unconfigured) SendEmail(context.Context, string, string, string) (DeliveryResult, error) {
	return DeliveryResult{ProviderStatus: "unconfigured"}, fmt.Errorf("%s channel is not configured", u.Channel)
}
