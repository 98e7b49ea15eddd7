// Package sms delivers one-time verification codes to phones.
package sms

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	logx "github.com/pricewatch/intake-core/pkg/logger"
)

const defaultCodeTemplate = "Your %s verification code is %s. It expires in 5 minutes."

// Sender hands a code to a delivery channel.
type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

type Config struct {
	AccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	From       string `envconfig:"TWILIO_FROM_NUMBER"`
	Brand      string `envconfig:"SMS_BRAND" default:"PriceWatch"`
}

// Enabled reports whether Twilio credentials are configured.
func (c Config) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != ""
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends codes as plain SMS through the Twilio REST API.
type TwilioSender struct {
	api   messageCreator
	from  string
	brand string
}

func NewTwilioSender(cfg Config) (*TwilioSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("from number must be provided")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{api: client.Api, from: cfg.From, brand: cfg.Brand}, nil
}

func (s *TwilioSender) SendCode(ctx context.Context, phone, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(s.from)
	params.SetBody(fmt.Sprintf(defaultCodeTemplate, s.brand, code))

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		logx.Error().Err(err).Str("phone", logx.MaskPhone(phone)).Msg("twilio create message failed")
		return fmt.Errorf("send code to %s: %w", logx.MaskPhone(phone), err)
	}
	ev := logx.Debug().Str("phone", logx.MaskPhone(phone))
	if msg != nil && msg.Sid != nil {
		ev = ev.Str("sid", *msg.Sid)
	}
	ev.Msg("verification code sent")
	return nil
}

// LogSender only logs deliveries. It backs development setups without
// Twilio credentials.
type LogSender struct{}

func (LogSender) SendCode(_ context.Context, phone, code string) error {
	logx.Info().Str("phone", logx.MaskPhone(phone)).Str("code", code).Msg("verification code (not delivered)")
	return nil
}
