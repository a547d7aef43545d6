package router

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mercato-next/internal/authz"
	"github.com/mercato-next/internal/cache"
	"github.com/mercato-next/internal/config"
	adminhandlers "github.com/mercato-next/internal/http/handlers/admin"
	publichandlers "github.com/mercato-next/internal/http/handlers/public"
	"github.com/mercato-next/internal/http/response"
	"github.com/mercato-next/internal/logger"
	"github.com/mercato-next/internal/metrics"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/provider"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisClient := cache.Client()
	loginRule := RuleFromConfig(cache.BuildKey("rate:login"), cfg.Security.LoginRateLimit)
	adminLoginRule := RuleFromConfig(cache.BuildKey("rate:admin_login"), cfg.Security.LoginRateLimit)
	issueRule := RuleFromConfig(cache.BuildKey("rate:verification_issue"), cfg.Security.IssueRateLimit)
	verifyRule := RuleFromConfig(cache.BuildKey("rate:verification_verify"), cfg.Security.VerifyRateLimit)
	applyRule := RuleFromConfig(cache.BuildKey("rate:voucher_apply"), cfg.Security.ApplyRateLimit)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/categories", publicHandler.GetCategories)
			public.GET("/products", publicHandler.GetProducts)
			public.GET("/captcha/image", publicHandler.GetImageCaptcha)
		}

		// 用户认证接口
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", publicHandler.UserRegister)
			auth.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("account")), publicHandler.UserLogin)
		}

		// 登录用户接口
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserRepo))
		{
			user.GET("/me", publicHandler.GetCurrentUser)

			user.POST("/verification-codes", RateLimitMiddleware(redisClient, issueRule, KeyByUserID), publicHandler.IssueVerificationCode)
			user.POST("/verification-codes/resend", RateLimitMiddleware(redisClient, issueRule, KeyByUserID), publicHandler.ResendVerificationCode)
			user.POST("/verification-codes/verify", RateLimitMiddleware(redisClient, verifyRule, KeyByUserID), publicHandler.VerifyCode)

			user.POST("/vouchers/apply", RateLimitMiddleware(redisClient, applyRule, KeyByUserID), publicHandler.ApplyVoucher)
			user.POST("/vouchers/preview", RateLimitMiddleware(redisClient, applyRule, KeyByUserID), publicHandler.PreviewVoucher)
			user.GET("/vouchers/available", publicHandler.ListAvailableVouchers)
		}

		// 管理后台接口
		admin := apiV1.Group("/admin")
		{
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)

			authorized := admin.Group("")
			authorized.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo))
			authorized.Use(AdminRBACMiddleware(c.AuthzService))
			{
				// 商品目录
				authorized.GET("/categories", adminHandler.GetAdminCategories)
				authorized.POST("/categories", adminHandler.CreateCategory)
				authorized.GET("/products", adminHandler.GetAdminProducts)
				authorized.POST("/products", adminHandler.CreateProduct)

				// 优惠券
				authorized.GET("/vouchers", adminHandler.GetAdminVouchers)
				authorized.POST("/vouchers", adminHandler.CreateVoucher)
				authorized.POST("/vouchers/bulk", adminHandler.BulkGenerateVouchers)
				authorized.POST("/vouchers/reconcile", adminHandler.ReconcileAllVouchers)
				authorized.GET("/vouchers/:id", adminHandler.GetAdminVoucher)
				authorized.PUT("/vouchers/:id", adminHandler.UpdateVoucher)
				authorized.PUT("/vouchers/:id/eligible-users", adminHandler.ReplaceVoucherEligibleUsers)
				authorized.GET("/vouchers/:id/usages", adminHandler.GetVoucherUsages)
				authorized.GET("/vouchers/:id/stats", adminHandler.GetVoucherStats)
				authorized.POST("/vouchers/:id/reconcile", adminHandler.ReconcileVoucher)

				// 权限管理
				authorized.GET("/authz/roles", adminHandler.ListAuthzRoles)
				authorized.GET("/authz/permissions", func(ctx *gin.Context) {
					response.Success(ctx, buildAdminPermissionCatalog(r))
				})
				authorized.GET("/authz/admins/:id/roles", adminHandler.GetAuthzAdminRoles)
				authorized.PUT("/authz/admins/:id/roles", adminHandler.SetAuthzAdminRoles)
			}
		}
	}

	// 健康检查
	r.GET("/healthz", healthHandler)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	return r
}

// healthHandler 检查数据库与 Redis 连通性
func healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	checks := gin.H{"database": "ok", "redis": "ok"}
	healthy := true
	if models.DB == nil {
		checks["database"] = "unavailable"
		healthy = false
	} else if sqlDB, err := models.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unavailable"
		healthy = false
	}
	if !cache.Enabled() {
		checks["redis"] = "disabled"
	} else if err := cache.Ping(ctx); err != nil {
		checks["redis"] = "unavailable"
		healthy = false
	}

	status := http.StatusOK
	checks["status"] = "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		checks["status"] = "degraded"
	}
	c.JSON(status, checks)
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

// buildAdminPermissionCatalog 从已注册路由生成可授权的权限清单
func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") || item.Path == "/api/v1/admin/login" {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveAdminPermissionModule(object string) string {
	segments := strings.Split(strings.TrimPrefix(strings.TrimSpace(object), "/"), "/")
	if len(segments) < 2 || segments[0] != "admin" {
		return segments[0]
	}
	return segments[1]
}
