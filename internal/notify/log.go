package notify

import (
	"context"

	"github.com/mercato-next/internal/logger"
)

// LogSender 仅写日志的发送器，用于本地开发
type LogSender struct {
	channel string
}

// NewLogSender 创建日志发送器
func NewLogSender(channel string) *LogSender {
	return &LogSender{channel: channel}
}

// Send 记录消息内容
func (s *LogSender) Send(ctx context.Context, destination, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Infow("notify_log_sender",
		"channel", s.channel,
		"destination", destination,
		"message", message,
	)
	return nil
}
