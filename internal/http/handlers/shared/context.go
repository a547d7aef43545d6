package shared

import (
	"github.com/mercato-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// 中间件写入上下文的键
const (
	ContextKeyUserID    = "user_id"
	ContextKeyAdminID   = "admin_id"
	ContextKeyUsername  = "username"
	ContextKeyRequestID = "request_id"
)

// GetContextUintWithKeys 从上下文读取 uint 值并统一处理错误响应。
func GetContextUintWithKeys(c *gin.Context, key, invalidKey, typeInvalidKey string) (uint, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		if v == 0 {
			RespondError(c, response.CodeUnauthorized, invalidKey, nil)
			return 0, false
		}
		return v, true
	case int:
		if v <= 0 {
			RespondError(c, response.CodeBadRequest, invalidKey, nil)
			return 0, false
		}
		return uint(v), true
	case float64:
		if v <= 0 {
			RespondError(c, response.CodeBadRequest, invalidKey, nil)
			return 0, false
		}
		return uint(v), true
	default:
		RespondError(c, response.CodeInternal, typeInvalidKey, nil)
		return 0, false
	}
}

// GetUserID 读取当前登录用户 ID。
func GetUserID(c *gin.Context) (uint, bool) {
	return GetContextUintWithKeys(c, ContextKeyUserID, "error.user_id_invalid", "error.user_id_type")
}

// GetAdminID 读取当前登录管理员 ID。
func GetAdminID(c *gin.Context) (uint, bool) {
	return GetContextUintWithKeys(c, ContextKeyAdminID, "error.admin_id_invalid", "error.admin_id_type")
}
