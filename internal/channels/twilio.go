package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/deskline/support-desk/internal/domain"
)

// SMSSender delivers a text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, from, body string) error
}

// TwilioSender sends SMS through the Twilio REST API.
type TwilioSender struct {
	client *twilio.RestClient
}

// NewTwilioSender builds a sender from the phone channel credentials.
func NewTwilioSender(cfg domain.PhoneConfig) SMSSender {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return &TwilioSender{}
	}
	return &TwilioSender{client: twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})}
}

func (s *TwilioSender) SendSMS(ctx context.Context, to, from, body string) error {
	if s.client == nil {
		return errors.New("twilio credentials not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)
	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}
	return nil
}

// ValidateTwilioSignature checks the X-Twilio-Signature of a webhook request
// against the channel's auth token. Channels without a token accept any request.
func ValidateTwilioSignature(cfg domain.PhoneConfig, url string, params map[string]string, signature string) bool {
	if cfg.AuthToken == "" {
		return true
	}
	validator := twclient.NewRequestValidator(cfg.AuthToken)
	return validator.Validate(url, params, signature)
}
