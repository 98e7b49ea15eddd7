package sms

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioSenderSendCode(t *testing.T) {
	api := &fakeCreator{}
	s := &TwilioSender{api: api, from: "+15550001111", brand: "PriceWatch"}

	require.NoError(t, s.SendCode(context.Background(), "+972501234567", "482913"))
	require.Len(t, api.params, 1)
	assert.Equal(t, "+972501234567", *api.params[0].To)
	assert.Equal(t, "+15550001111", *api.params[0].From)
	assert.Contains(t, *api.params[0].Body, "482913")
}

func TestTwilioSenderPropagatesFailure(t *testing.T) {
	s := &TwilioSender{api: &fakeCreator{err: errors.New("boom")}, from: "+15550001111"}
	err := s.SendCode(context.Background(), "+972501234567", "482913")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "501234567")
}

func TestNewTwilioSenderRequiresCredentials(t *testing.T) {
	_, err := NewTwilioSender(Config{AccountSID: "AC1"})
	assert.Error(t, err)

	assert.False(t, Config{AccountSID: "AC1", AuthToken: "x"}.Enabled())
	assert.True(t, Config{AccountSID: "AC1", AuthToken: "x", From: "+1555"}.Enabled())
}
