package services

import (
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/example/shramik/internal/utils"
)

// messageCreator is the part of the Twilio API client used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSService delivers login codes by SMS through Twilio.
type SMSService struct {
	api       messageCreator
	fromPhone string
}

// NewSMSService constructs a Twilio-backed SMSService.
func NewSMSService(accountSID, authToken, fromPhone string) *SMSService {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &SMSService{api: client.Api, fromPhone: fromPhone}
}

// SendLoginCode texts a login code to phone.
func (s *SMSService) SendLoginCode(phone, code string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(s.fromPhone)
	params.SetBody(fmt.Sprintf("Your Shramik login code is %s. It expires in 10 minutes.", code))

	if _, err := s.api.CreateMessage(params); err != nil {
		utils.Logger.WithError(err).WithField("phone", maskPhone(phone)).Error("failed to send login code via twilio")
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:len(phone)-4] + "****"
}
