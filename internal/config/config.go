package config

import (
	"fmt"
	"strings"

	"github.com/mercato-next/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	UserJWT      JWTConfig          `mapstructure:"user_jwt"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Security     SecurityConfig     `mapstructure:"security"`
	Verification VerificationConfig `mapstructure:"verification"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Captcha      CaptchaConfig      `mapstructure:"captcha"`
	Voucher      VoucherConfig      `mapstructure:"voucher"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Stdout     bool   `mapstructure:"stdout"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Level,
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		Stdout:     c.Stdout,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string             `mapstructure:"driver"` // sqlite / postgres
	DSN      string             `mapstructure:"dsn"`
	LogLevel string             `mapstructure:"log_level"` // silent / error / warn / info
	Pool     DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	LoginRateLimit  RateLimitConfig      `mapstructure:"login_rate_limit"`
	IssueRateLimit  RateLimitConfig      `mapstructure:"issue_rate_limit"`
	VerifyRateLimit RateLimitConfig      `mapstructure:"verify_rate_limit"`
	ApplyRateLimit  RateLimitConfig      `mapstructure:"apply_rate_limit"`
	PasswordPolicy  PasswordPolicyConfig `mapstructure:"password_policy"`
}

// RateLimitConfig 接口限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// PasswordPolicyConfig 密码策略配置
type PasswordPolicyConfig struct {
	MinLength     int  `mapstructure:"min_length"`
	RequireLetter bool `mapstructure:"require_letter"`
	RequireNumber bool `mapstructure:"require_number"`
}

// VerificationConfig 验证码签发配置
type VerificationConfig struct {
	Length                 int  `mapstructure:"length"`
	ExpireMinutes          int  `mapstructure:"expire_minutes"`
	SendIntervalSeconds    int  `mapstructure:"send_interval_seconds"`
	MaxAttempts            int  `mapstructure:"max_attempts"`
	DispatchTimeoutSeconds int  `mapstructure:"dispatch_timeout_seconds"`
	AsyncDispatch          bool `mapstructure:"async_dispatch"`
}

// NotifyConfig 通知渠道配置
type NotifyConfig struct {
	SMSProvider   string       `mapstructure:"sms_provider"`   // log / twilio / sns
	EmailProvider string       `mapstructure:"email_provider"` // log / smtp
	MessageFormat string       `mapstructure:"message_format"`
	SMTP          SMTPConfig   `mapstructure:"smtp"`
	Twilio        TwilioConfig `mapstructure:"twilio"`
	SNS           SNSConfig    `mapstructure:"sns"`
}

// SMTPConfig 邮件服务配置
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	Subject  string `mapstructure:"subject"`
	UseTLS   bool   `mapstructure:"use_tls"`
	UseSSL   bool   `mapstructure:"use_ssl"`
}

// TwilioConfig Twilio 短信配置
type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
}

// SNSConfig AWS SNS 短信配置
type SNSConfig struct {
	Region   string `mapstructure:"region"`
	SenderID string `mapstructure:"sender_id"`
	SMSType  string `mapstructure:"sms_type"` // Transactional / Promotional
}

// CaptchaConfig 图片验证码配置
type CaptchaConfig struct {
	Enabled       bool               `mapstructure:"enabled"`
	Scenes        CaptchaSceneConfig `mapstructure:"scenes"`
	Length        int                `mapstructure:"length"`
	Width         int                `mapstructure:"width"`
	Height        int                `mapstructure:"height"`
	NoiseCount    int                `mapstructure:"noise_count"`
	ShowLine      int                `mapstructure:"show_line"`
	ExpireSeconds int                `mapstructure:"expire_seconds"`
	MaxStore      int                `mapstructure:"max_store"`
}

// CaptchaSceneConfig 验证码场景开关
type CaptchaSceneConfig struct {
	Login     bool `mapstructure:"login"`
	IssueCode bool `mapstructure:"issue_code"`
}

// VoucherConfig 优惠券配置
type VoucherConfig struct {
	CodeLength              int `mapstructure:"code_length"`
	MaxBulkQuantity         int `mapstructure:"max_bulk_quantity"`
	CodeRetryLimit          int `mapstructure:"code_retry_limit"`
	ApplyRetryLimit         int `mapstructure:"apply_retry_limit"`
	ReconcileIntervalMinute int `mapstructure:"reconcile_interval_minutes"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../")
	v.AddConfigPath("./etc")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // server.port -> SERVER_PORT

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	cfg.normalize()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.stdout", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/mercato.db")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("user_jwt.secret", "user-change-me-in-production")
	v.SetDefault("user_jwt.expire_hours", 168)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "mc")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Accept-Language",
		"Authorization",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.login_rate_limit.window_seconds", 300)
	v.SetDefault("security.login_rate_limit.max_requests", 5)
	v.SetDefault("security.issue_rate_limit.window_seconds", 3600)
	v.SetDefault("security.issue_rate_limit.max_requests", 10)
	v.SetDefault("security.verify_rate_limit.window_seconds", 300)
	v.SetDefault("security.verify_rate_limit.max_requests", 20)
	v.SetDefault("security.apply_rate_limit.window_seconds", 60)
	v.SetDefault("security.apply_rate_limit.max_requests", 30)
	v.SetDefault("security.password_policy.min_length", 8)
	v.SetDefault("security.password_policy.require_letter", true)
	v.SetDefault("security.password_policy.require_number", true)
	v.SetDefault("verification.length", 6)
	v.SetDefault("verification.expire_minutes", 15)
	v.SetDefault("verification.send_interval_seconds", 60)
	v.SetDefault("verification.max_attempts", 5)
	v.SetDefault("verification.dispatch_timeout_seconds", 5)
	v.SetDefault("verification.async_dispatch", false)
	v.SetDefault("notify.sms_provider", "log")
	v.SetDefault("notify.email_provider", "log")
	v.SetDefault("notify.message_format", "Your verification code is %s. It expires in %d minutes.")
	v.SetDefault("notify.smtp.host", "")
	v.SetDefault("notify.smtp.port", 587)
	v.SetDefault("notify.smtp.username", "")
	v.SetDefault("notify.smtp.password", "")
	v.SetDefault("notify.smtp.from", "")
	v.SetDefault("notify.smtp.from_name", "")
	v.SetDefault("notify.smtp.subject", "Verification code")
	v.SetDefault("notify.smtp.use_tls", true)
	v.SetDefault("notify.smtp.use_ssl", false)
	v.SetDefault("notify.twilio.account_sid", "")
	v.SetDefault("notify.twilio.auth_token", "")
	v.SetDefault("notify.twilio.from_number", "")
	v.SetDefault("notify.sns.region", "us-east-1")
	v.SetDefault("notify.sns.sender_id", "")
	v.SetDefault("notify.sns.sms_type", "Transactional")
	v.SetDefault("captcha.enabled", false)
	v.SetDefault("captcha.scenes.login", false)
	v.SetDefault("captcha.scenes.issue_code", false)
	v.SetDefault("captcha.length", 5)
	v.SetDefault("captcha.width", 240)
	v.SetDefault("captcha.height", 80)
	v.SetDefault("captcha.noise_count", 2)
	v.SetDefault("captcha.show_line", 2)
	v.SetDefault("captcha.expire_seconds", 300)
	v.SetDefault("captcha.max_store", 10240)
	v.SetDefault("voucher.code_length", 10)
	v.SetDefault("voucher.max_bulk_quantity", 10000)
	v.SetDefault("voucher.code_retry_limit", 8)
	v.SetDefault("voucher.apply_retry_limit", 3)
	v.SetDefault("voucher.reconcile_interval_minutes", 30)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// normalize 修正非法配置值
func (c *Config) normalize() {
	if c.Verification.Length < 4 || c.Verification.Length > 10 {
		c.Verification.Length = 6
	}
	if c.Verification.ExpireMinutes <= 0 {
		c.Verification.ExpireMinutes = 15
	}
	if c.Verification.MaxAttempts <= 0 {
		c.Verification.MaxAttempts = 5
	}
	if c.Verification.DispatchTimeoutSeconds <= 0 {
		c.Verification.DispatchTimeoutSeconds = 5
	}
	if c.Voucher.CodeLength < 6 {
		c.Voucher.CodeLength = 10
	}
	if c.Voucher.MaxBulkQuantity <= 0 {
		c.Voucher.MaxBulkQuantity = 10000
	}
	if c.Voucher.CodeRetryLimit <= 0 {
		c.Voucher.CodeRetryLimit = 8
	}
	if c.Voucher.ApplyRetryLimit <= 0 {
		c.Voucher.ApplyRetryLimit = 3
	}
	if strings.TrimSpace(c.Metrics.Path) == "" {
		c.Metrics.Path = "/metrics"
	}
}
