package public

import (
	"errors"
	"time"

	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/http/response"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/service"

	"github.com/gin-gonic/gin"
)

// UserRegisterRequest 注册请求
type UserRegisterRequest struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

// UserLoginRequest 登录请求，account 为邮箱或手机号
type UserLoginRequest struct {
	Account        string                `json:"account" binding:"required"`
	Password       string                `json:"password" binding:"required"`
	CaptchaPayload CaptchaPayloadRequest `json:"captcha_payload"`
}

// userSessionResponse 登录态返回
type userSessionResponse struct {
	User      userProfileResponse `json:"user"`
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
}

type userProfileResponse struct {
	ID              uint       `json:"id"`
	Email           *string    `json:"email"`
	Phone           *string    `json:"phone"`
	DisplayName     string     `json:"display_name"`
	Status          string     `json:"status"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	PhoneVerifiedAt *time.Time `json:"phone_verified_at"`
}

func toUserProfile(user *models.User) userProfileResponse {
	return userProfileResponse{
		ID:              user.ID,
		Email:           user.Email,
		Phone:           user.Phone,
		DisplayName:     user.DisplayName,
		Status:          user.Status,
		EmailVerifiedAt: user.EmailVerifiedAt,
		PhoneVerifiedAt: user.PhoneVerifiedAt,
	}
}

// UserRegister 用户注册
func (h *Handler) UserRegister(c *gin.Context) {
	var req UserRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	user, token, expiresAt, err := h.UserAuthService.Register(service.RegisterInput{
		Email:       req.Email,
		Phone:       req.Phone,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		respondWithMappedError(c, err, userRegisterErrorRules, response.CodeInternal, "error.register_failed")
		return
	}

	response.Success(c, userSessionResponse{User: toUserProfile(user), Token: token, ExpiresAt: expiresAt})
}

// UserLogin 用户登录
func (h *Handler) UserLogin(c *gin.Context) {
	var req UserLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	if !h.verifyCaptcha(c, constants.CaptchaSceneLogin, req.CaptchaPayload) {
		return
	}

	user, token, expiresAt, err := h.UserAuthService.Login(req.Account, req.Password)
	if err != nil {
		respondWithMappedError(c, err, userLoginErrorRules, response.CodeInternal, "error.login_failed")
		return
	}

	response.Success(c, userSessionResponse{User: toUserProfile(user), Token: token, ExpiresAt: expiresAt})
}

// GetCurrentUser 获取当前登录用户
func (h *Handler) GetCurrentUser(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	user, err := h.UserAuthService.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "error.user_not_found", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.user_fetch_failed", err)
		return
	}
	response.Success(c, toUserProfile(user))
}
