// Package outbound sends SMS, fax, and voice notifications through the
// messaging provider and records every attempt.
package outbound

import "context"

// Channels supported by the provider.
const (
	ChannelSMS   = "sms"
	ChannelFax   = "fax"
	ChannelVoice = "voice"
)

// SendRequest describes one outbound send.
type SendRequest struct {
	Channel   string
	Recipient string
	Body      string
	MediaURL  string // required for fax
}

// Sender performs the provider call for one send. Implementations return
// the provider-assigned message id on success and a typed error
// (ConfigurationError, ValidationError) when preconditions fail.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (providerMessageID string, response string, err error)
	Name() string
}
