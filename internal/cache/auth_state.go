package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/mercato-next/internal/models"
)

const authStateCacheTTL = 10 * time.Minute

const (
	subjectUser  = "user"
	subjectAdmin = "admin"
)

// AuthState 登录主体的鉴权快照
// 中间件据此校验 token_version 与账号状态，命中时不查库
type AuthState struct {
	ID           uint   `json:"id"`
	Status       string `json:"status,omitempty"`
	TokenVersion uint64 `json:"token_version"`
	IsSuper      bool   `json:"is_super,omitempty"`
	UpdatedAt    int64  `json:"updated_at"`
}

func authStateKey(subject string, id uint) string {
	return fmt.Sprintf("auth:%s:%d", subject, id)
}

// BuildUserAuthState 从用户模型构建快照
func BuildUserAuthState(user *models.User) *AuthState {
	if user == nil {
		return nil
	}
	return &AuthState{
		ID:           user.ID,
		Status:       user.Status,
		TokenVersion: user.TokenVersion,
		UpdatedAt:    time.Now().Unix(),
	}
}

// BuildAdminAuthState 从管理员模型构建快照
func BuildAdminAuthState(admin *models.Admin) *AuthState {
	if admin == nil {
		return nil
	}
	return &AuthState{
		ID:           admin.ID,
		TokenVersion: admin.TokenVersion,
		IsSuper:      admin.IsSuper,
		UpdatedAt:    time.Now().Unix(),
	}
}

// GetUserAuthState 获取用户快照
func GetUserAuthState(ctx context.Context, userID uint) (*AuthState, bool, error) {
	return getAuthState(ctx, subjectUser, userID)
}

// SetUserAuthState 写入用户快照
func SetUserAuthState(ctx context.Context, state *AuthState) error {
	return setAuthState(ctx, subjectUser, state)
}

// GetAdminAuthState 获取管理员快照
func GetAdminAuthState(ctx context.Context, adminID uint) (*AuthState, bool, error) {
	return getAuthState(ctx, subjectAdmin, adminID)
}

// SetAdminAuthState 写入管理员快照
func SetAdminAuthState(ctx context.Context, state *AuthState) error {
	return setAuthState(ctx, subjectAdmin, state)
}

// DelAdminAuthState 删除管理员快照（角色变更后调用）
func DelAdminAuthState(ctx context.Context, adminID uint) error {
	if adminID == 0 {
		return nil
	}
	return Del(ctx, authStateKey(subjectAdmin, adminID))
}

func getAuthState(ctx context.Context, subject string, id uint) (*AuthState, bool, error) {
	if id == 0 {
		return nil, false, nil
	}
	var state AuthState
	hit, err := GetJSON(ctx, authStateKey(subject, id), &state)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &state, true, nil
}

func setAuthState(ctx context.Context, subject string, state *AuthState) error {
	if state == nil || state.ID == 0 {
		return nil
	}
	return SetJSON(ctx, authStateKey(subject, state.ID), state, authStateCacheTTL)
}
