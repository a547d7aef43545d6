package app

import (
	"errors"
	"fmt"
	"net"

	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/logger"
	"github.com/mercato-next/internal/provider"
	"github.com/mercato-next/internal/router"
	"github.com/mercato-next/internal/worker"
)

// BuildRunner 按启动模式组装服务
// all 模式下队列未启用时只启动 HTTP，worker 模式则要求队列可用
func BuildRunner(cfg *config.Config, mode string) (*Runner, *provider.Container, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}
	if !isKnownMode(mode) {
		return nil, nil, fmt.Errorf("unknown mode: %s", mode)
	}
	if mode == ModeWorker && !cfg.Queue.Enabled {
		return nil, nil, errors.New("worker mode requires queue.enabled")
	}

	container := provider.NewContainer(cfg)
	var services []Service

	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(listenAddr(cfg.Server), engine))
	}

	if mode == ModeAll || mode == ModeWorker {
		if cfg.Queue.Enabled {
			workerService, err := worker.NewService(&cfg.Queue, cfg.Voucher, worker.NewConsumer(container))
			if err != nil {
				container.Close()
				return nil, nil, err
			}
			services = append(services, workerService)
		} else {
			logger.Warnw("worker_skipped_queue_disabled", "mode", mode)
		}
	}

	if len(services) == 0 {
		container.Close()
		return nil, nil, errors.New("no services initialized (check mode and config)")
	}
	return NewRunner(services...), container, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, container, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}
	defer container.Close()
	ensureDefaultAdmin(container, opts)

	opts.Logger.Infow("app_start", "addr", listenAddr(opts.Config.Server), "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}

func listenAddr(server config.ServerConfig) string {
	return net.JoinHostPort(server.Host, server.Port)
}

func isKnownMode(mode string) bool {
	switch mode {
	case ModeAll, ModeAPI, ModeWorker:
		return true
	}
	return false
}

// ensureDefaultAdmin 按启动参数补建超级管理员
func ensureDefaultAdmin(container *provider.Container, opts Options) {
	if container == nil || container.AuthService == nil {
		return
	}
	if opts.DefaultAdmin.Password == "" {
		opts.Logger.Infow("default_admin_skipped", "reason", "password_empty")
		return
	}
	admin, created, err := container.AuthService.EnsureAdmin(opts.DefaultAdmin.Username, opts.DefaultAdmin.Password, true)
	if err != nil {
		opts.Logger.Warnw("default_admin_init_failed", "username", opts.DefaultAdmin.Username, "error", err)
		return
	}
	if created {
		opts.Logger.Infow("default_admin_created", "admin_id", admin.ID, "username", admin.Username)
	}
}
