package public

import (
	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/http/response"
	"github.com/mercato-next/internal/service"

	"github.com/gin-gonic/gin"
)

// IssueVerificationCodeRequest 签发验证码请求
// address 为空时使用账号上已登记的联系方式
type IssueVerificationCodeRequest struct {
	Channel        string                `json:"channel" binding:"required"`
	Address        string                `json:"address"`
	CaptchaPayload CaptchaPayloadRequest `json:"captcha_payload"`
}

// ResendVerificationCodeRequest 重发请求
type ResendVerificationCodeRequest struct {
	Channel string `json:"channel" binding:"required"`
}

// VerifyCodeRequest 校验请求
type VerifyCodeRequest struct {
	Channel string `json:"channel" binding:"required"`
	Code    string `json:"code" binding:"required"`
}

// IssueVerificationCode 签发验证码
func (h *Handler) IssueVerificationCode(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req IssueVerificationCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	if !h.verifyCaptcha(c, constants.CaptchaSceneIssueCode, req.CaptchaPayload) {
		return
	}

	result, err := h.VerificationService.Issue(c.Request.Context(), service.IssueVerificationInput{
		UserID:  userID,
		Channel: req.Channel,
		Address: req.Address,
	})
	if err != nil {
		respondWithMappedError(c, err, verificationIssueErrorRules, response.CodeInternal, "error.verification_issue_failed")
		return
	}
	response.Success(c, result)
}

// ResendVerificationCode 重发当前有效的验证码
func (h *Handler) ResendVerificationCode(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req ResendVerificationCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	result, err := h.VerificationService.Resend(c.Request.Context(), userID, req.Channel)
	if err != nil {
		respondWithMappedError(c, err, verificationIssueErrorRules, response.CodeInternal, "error.verification_issue_failed")
		return
	}
	response.Success(c, result)
}

// VerifyCode 校验验证码
// 不区分失败原因，统一返回 verification_failed
func (h *Handler) VerifyCode(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	verified, err := h.VerificationService.Verify(c.Request.Context(), userID, req.Channel, req.Code)
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	if !verified {
		requestLog(c).Infow("verification_code_rejected", "user_id", userID, "channel", req.Channel)
		respondError(c, response.CodeBadRequest, "error.verification_failed", nil)
		return
	}
	response.Success(c, gin.H{"verified": true})
}
