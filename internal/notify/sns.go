package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender 通过 AWS SNS 发送短信
type SNSSender struct {
	client   snsPublisher
	senderID string
	smsType  string
}

// NewSNSSender 使用默认凭证链创建 SNS 发送器
func NewSNSSender(ctx context.Context, cfg config.SNSConfig) (*SNSSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSNSSender(sns.NewFromConfig(awsCfg), cfg), nil
}

func newSNSSender(client snsPublisher, cfg config.SNSConfig) *SNSSender {
	smsType := "Transactional"
	if strings.EqualFold(strings.TrimSpace(cfg.SMSType), "promotional") {
		smsType = "Promotional"
	}
	return &SNSSender{
		client:   client,
		senderID: strings.TrimSpace(cfg.SenderID),
		smsType:  smsType,
	}
}

// Send 发送短信
func (s *SNSSender) Send(ctx context.Context, destination, message string) error {
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String(s.smsType),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}
	resp, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(destination),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	logger.Debugw("notify_sns_sent", "message_id", aws.ToString(resp.MessageId))
	return nil
}
