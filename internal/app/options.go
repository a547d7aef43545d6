package app

import (
	"os"
	"strings"
	"time"

	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/logger"

	"go.uber.org/zap"
)

// 启动模式
const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	defaultAdminUsername   = "admin"
)

// Options 应用启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            string
	// DefaultAdmin 启动时确保存在的超级管理员，密码为空时跳过
	DefaultAdmin DefaultAdmin
}

// DefaultAdmin 默认管理员账号
type DefaultAdmin struct {
	Username string
	Password string
}

// normalizeOptions 补齐默认参数
func normalizeOptions(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	opts.DefaultAdmin.Username = strings.TrimSpace(opts.DefaultAdmin.Username)
	if opts.DefaultAdmin.Username == "" {
		opts.DefaultAdmin.Username = defaultAdminUsername
	}
	opts.Mode = strings.ToLower(strings.TrimSpace(opts.Mode))
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}
	return opts
}
