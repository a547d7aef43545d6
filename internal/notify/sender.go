package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/constants"
)

var (
	// ErrSenderNotConfigured 渠道未配置发送器
	ErrSenderNotConfigured = errors.New("notify sender not configured")
	// ErrInvalidDestination 收件地址非法
	ErrInvalidDestination = errors.New("invalid notify destination")
)

// Sender 单条消息发送器
type Sender interface {
	Send(ctx context.Context, destination, message string) error
}

// Dispatcher 按渠道选择发送器
type Dispatcher struct {
	senders map[string]Sender
}

// NewDispatcher 创建空的分发器
func NewDispatcher() *Dispatcher {
	return &Dispatcher{senders: make(map[string]Sender)}
}

// Register 注册渠道发送器，重复注册会覆盖
func (d *Dispatcher) Register(channel string, sender Sender) {
	if d == nil || sender == nil {
		return
	}
	d.senders[channel] = sender
}

// Send 通过渠道发送消息
func (d *Dispatcher) Send(ctx context.Context, channel, destination, message string) error {
	if d == nil {
		return ErrSenderNotConfigured
	}
	sender, ok := d.senders[channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSenderNotConfigured, channel)
	}
	if strings.TrimSpace(destination) == "" {
		return ErrInvalidDestination
	}
	return sender.Send(ctx, destination, message)
}

// NewDispatcherFromConfig 按配置装配短信与邮件发送器
func NewDispatcherFromConfig(ctx context.Context, cfg config.NotifyConfig) (*Dispatcher, error) {
	d := NewDispatcher()

	switch strings.ToLower(strings.TrimSpace(cfg.SMSProvider)) {
	case "", constants.NotifyProviderLog:
		d.Register(constants.ChannelPhone, NewLogSender(constants.ChannelPhone))
	case constants.NotifyProviderTwilio:
		sender, err := NewTwilioSender(cfg.Twilio)
		if err != nil {
			return nil, err
		}
		d.Register(constants.ChannelPhone, sender)
	case constants.NotifyProviderSNS:
		sender, err := NewSNSSender(ctx, cfg.SNS)
		if err != nil {
			return nil, err
		}
		d.Register(constants.ChannelPhone, sender)
	default:
		return nil, fmt.Errorf("unsupported sms provider: %s", cfg.SMSProvider)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "", constants.NotifyProviderLog:
		d.Register(constants.ChannelEmail, NewLogSender(constants.ChannelEmail))
	case constants.NotifyProviderSMTP:
		sender, err := NewSMTPSender(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		d.Register(constants.ChannelEmail, sender)
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", cfg.EmailProvider)
	}
	return d, nil
}
