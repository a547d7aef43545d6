package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/logger"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type twilioMessageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// TwilioSender 通过 Twilio 发送短信
type TwilioSender struct {
	api        twilioMessageCreator
	fromNumber string
}

// NewTwilioSender 创建 Twilio 发送器
func NewTwilioSender(cfg config.TwilioConfig) (*TwilioSender, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" || strings.TrimSpace(cfg.FromNumber) == "" {
		return nil, errors.New("twilio account_sid, auth_token and from_number are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{api: client.Api, fromNumber: cfg.FromNumber}, nil
}

// Send 发送短信
// SDK 不接收 context，超时后直接返回，请求本身由 SDK 的 HTTP 超时兜底
func (s *TwilioSender) Send(ctx context.Context, destination, message string) error {
	params := &api.CreateMessageParams{}
	params.SetTo(destination)
	params.SetFrom(s.fromNumber)
	params.SetBody(message)

	type result struct {
		sid string
		err error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := s.api.CreateMessage(params)
		r := result{err: err}
		if err == nil && resp != nil && resp.Sid != nil {
			r.sid = *resp.Sid
		}
		done <- r
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("twilio create message: %w", r.err)
		}
		logger.Debugw("notify_twilio_sent", "sid", r.sid)
		return nil
	}
}
