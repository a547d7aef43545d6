package admin

import (
	handlershared "github.com/mercato-next/internal/http/handlers/shared"
	"github.com/mercato-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// CaptchaPayloadRequest 图片验证码载荷
type CaptchaPayloadRequest = handlershared.CaptchaPayloadRequest

func getAdminID(c *gin.Context) (uint, bool) {
	return handlershared.GetAdminID(c)
}

// parseIDParam 解析路径 ID，失败时已写出响应
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id := handlershared.ParseUintParam(c, name)
	if id == 0 {
		respondError(c, response.CodeBadRequest, "error.invalid_id", nil)
		return 0, false
	}
	return id, true
}
