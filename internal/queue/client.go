package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 时效敏感任务队列
	CriticalQueue = constants.QueueCritical

	verificationDispatchMaxRetry = 3
	verificationDispatchTimeout  = 30 * time.Second
	voucherReconcileUniqueTTL    = time.Minute
)

// Client 队列客户端封装，未启用时入队操作静默跳过
type Client struct {
	client  *asynq.Client
	enabled bool
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{
		client:  asynq.NewClient(buildRedisOpt(cfg)),
		enabled: true,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueVerificationDispatch 推送验证码投递任务
func (c *Client) EnqueueVerificationDispatch(payload VerificationDispatchPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewVerificationDispatchTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.Enqueue(task,
		asynq.Queue(CriticalQueue),
		asynq.MaxRetry(verificationDispatchMaxRetry),
		asynq.Timeout(verificationDispatchTimeout),
	)
	return err
}

// EnqueueVoucherReconcile 推送优惠券对账任务，同一目标一分钟内只入队一次
func (c *Client) EnqueueVoucherReconcile(payload VoucherReconcilePayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewVoucherReconcileTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.Enqueue(task,
		asynq.Queue(DefaultQueue),
		asynq.Unique(voucherReconcileUniqueTTL),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	concurrency := 10
	queues := map[string]int{CriticalQueue: 6, DefaultQueue: 3}
	if cfg != nil {
		if cfg.Concurrency > 0 {
			concurrency = cfg.Concurrency
		}
		if len(cfg.Queues) > 0 {
			queues = cfg.Queues
		}
	}
	return buildRedisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}
	if cfg == nil {
		return opt
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	opt.Addr = fmt.Sprintf("%s:%d", host, port)
	opt.Password = cfg.Password
	opt.DB = cfg.DB
	return opt
}
