package provider

import (
	"context"

	"github.com/mercato-next/internal/authz"
	"github.com/mercato-next/internal/cache"
	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/logger"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/notify"
	"github.com/mercato-next/internal/queue"
	"github.com/mercato-next/internal/repository"
	"github.com/mercato-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Dispatcher  *notify.Dispatcher

	// Repositories
	AdminRepo            repository.AdminRepository
	UserRepo             repository.UserRepository
	CategoryRepo         repository.CategoryRepository
	ProductRepo          repository.ProductRepository
	VerificationCodeRepo repository.VerificationCodeRepository
	VoucherRepo          repository.VoucherRepository
	VoucherUsageRepo     repository.VoucherUsageRepository

	// Services
	AuthzService        *authz.Service
	AuthService         *service.AuthService
	UserAuthService     *service.UserAuthService
	CaptchaService      *service.CaptchaService
	CategoryService     *service.CategoryService
	ProductService      *service.ProductService
	VerificationService *service.VerificationService
	VoucherService      *service.VoucherService
	VoucherAdminService *service.VoucherAdminService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	dispatcher, err := notify.NewDispatcherFromConfig(context.Background(), cfg.Notify)
	if err != nil {
		logger.Errorw("provider_init_notify_failed", "error", err)
		dispatcher = notify.NewDispatcher()
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Dispatcher:  dispatcher,
	}
	c.initRepositories()
	c.initServices()
	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.UserRepo = repository.NewUserRepository(db)
	c.CategoryRepo = repository.NewCategoryRepository(db)
	c.ProductRepo = repository.NewProductRepository(db)
	c.VerificationCodeRepo = repository.NewVerificationCodeRepository(db)
	c.VoucherRepo = repository.NewVoucherRepository(db)
	c.VoucherUsageRepo = repository.NewVoucherUsageRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.UserAuthService = service.NewUserAuthService(c.Config, c.UserRepo)
	c.CaptchaService = service.NewCaptchaService(c.Config.Captcha)
	c.CategoryService = service.NewCategoryService(c.CategoryRepo)
	c.ProductService = service.NewProductService(c.ProductRepo, c.CategoryRepo)
	c.VerificationService = service.NewVerificationService(c.Config, c.VerificationCodeRepo, c.UserRepo, c.Dispatcher, c.QueueClient)
	c.VoucherService = service.NewVoucherService(c.Config, c.VoucherRepo, c.VoucherUsageRepo, c.ProductRepo)
	c.VoucherAdminService = service.NewVoucherAdminService(c.Config, c.VoucherRepo, c.VoucherUsageRepo, c.CategoryRepo, c.ProductRepo, c.UserRepo, c.QueueClient)
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warnw("provider_close_queue_client_failed", "error", err)
		}
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
