package service

import (
	"context"
	"strings"
	"time"

	"github.com/mercato-next/internal/cache"
	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/logger"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/repository"

	"github.com/golang-jwt/jwt/v5"
)

// UserAuthService 用户认证服务
type UserAuthService struct {
	cfg      *config.Config
	userRepo repository.UserRepository
}

// NewUserAuthService 创建用户认证服务
func NewUserAuthService(cfg *config.Config, userRepo repository.UserRepository) *UserAuthService {
	return &UserAuthService{
		cfg:      cfg,
		userRepo: userRepo,
	}
}

// UserJWTClaims 用户 JWT 声明
type UserJWTClaims struct {
	UserID       uint   `json:"user_id"`
	TokenVersion uint64 `json:"token_version"`
	jwt.RegisteredClaims
}

// RegisterInput 注册输入，邮箱与手机号至少提供一个
type RegisterInput struct {
	Email       string
	Phone       string
	Password    string
	DisplayName string
}

// GenerateUserJWT 生成用户 JWT Token
func (s *UserAuthService) GenerateUserJWT(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(resolveExpireHours(s.cfg.UserJWT.ExpireHours)) * time.Hour)
	claims := UserJWTClaims{
		UserID:       user.ID,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.UserJWT.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseUserJWT 解析用户 JWT Token
func (s *UserAuthService) ParseUserJWT(tokenString string) (*UserJWTClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, &UserJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.UserJWT.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*UserJWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// Register 用户注册
// 注册时写入的联系方式为未验证状态，需通过验证码确认
func (s *UserAuthService) Register(input RegisterInput) (*models.User, string, time.Time, error) {
	email := strings.TrimSpace(input.Email)
	phone := strings.TrimSpace(input.Phone)
	if email == "" && phone == "" {
		return nil, "", time.Time{}, ErrContactRequired
	}
	if err := validatePassword(s.cfg.Security.PasswordPolicy, input.Password); err != nil {
		return nil, "", time.Time{}, err
	}

	user := &models.User{
		DisplayName: strings.TrimSpace(input.DisplayName),
		Status:      constants.UserStatusActive,
	}
	if email != "" {
		normalized, err := normalizeEmail(email)
		if err != nil {
			return nil, "", time.Time{}, err
		}
		exist, err := s.userRepo.GetByContact(constants.ChannelEmail, normalized)
		if err != nil {
			return nil, "", time.Time{}, err
		}
		if exist != nil {
			return nil, "", time.Time{}, ErrEmailExists
		}
		user.Email = &normalized
	}
	if phone != "" {
		normalized, err := normalizePhone(phone)
		if err != nil {
			return nil, "", time.Time{}, err
		}
		exist, err := s.userRepo.GetByContact(constants.ChannelPhone, normalized)
		if err != nil {
			return nil, "", time.Time{}, err
		}
		if exist != nil {
			return nil, "", time.Time{}, ErrPhoneExists
		}
		user.Phone = &normalized
	}
	if user.DisplayName == "" {
		user.DisplayName = resolveDisplayName(user)
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	user.PasswordHash = hash
	if err := s.userRepo.Create(user); err != nil {
		if repository.IsUniqueViolation(err) {
			if user.Email != nil {
				return nil, "", time.Time{}, ErrEmailExists
			}
			return nil, "", time.Time{}, ErrPhoneExists
		}
		return nil, "", time.Time{}, err
	}
	logger.Infow("user_registered", "user_id", user.ID)
	return s.issueSession(user)
}

// Login 用户登录，account 可为邮箱或手机号
func (s *UserAuthService) Login(account, password string) (*models.User, string, time.Time, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	channel := constants.ChannelPhone
	if strings.Contains(account, "@") {
		channel = constants.ChannelEmail
	}
	normalized, err := normalizeContact(channel, account)
	if err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByContact(channel, normalized)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if user == nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if strings.ToLower(user.Status) != constants.UserStatusActive {
		return nil, "", time.Time{}, ErrUserDisabled
	}
	return s.issueSession(user)
}

// GetUserByID 获取用户信息
func (s *UserAuthService) GetUserByID(id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *UserAuthService) issueSession(user *models.User) (*models.User, string, time.Time, error) {
	token, expiresAt, err := s.GenerateUserJWT(user)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	now := time.Now()
	if err := s.userRepo.TouchLastLogin(user.ID, now); err != nil {
		return nil, "", time.Time{}, err
	}
	user.LastLoginAt = &now
	if err := cache.SetUserAuthState(context.Background(), cache.BuildUserAuthState(user)); err != nil {
		logger.Warnw("user_auth_state_cache_set_failed", "user_id", user.ID, "error", err)
	}
	return user, token, expiresAt, nil
}

func resolveDisplayName(user *models.User) string {
	if user.Email != nil {
		if at := strings.Index(*user.Email, "@"); at > 0 {
			return (*user.Email)[:at]
		}
	}
	if user.Phone != nil {
		phone := *user.Phone
		if len(phone) > 4 {
			return "user" + phone[len(phone)-4:]
		}
		return "user" + phone
	}
	return "user"
}
