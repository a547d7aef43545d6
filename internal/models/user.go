package models

import (
	"strings"
	"time"

	"github.com/mercato-next/internal/constants"
)

// User 用户表
// Email 与 Phone 可为空，非空时全局唯一
type User struct {
	ID              uint       `gorm:"primarykey" json:"id"`
	Email           *string    `gorm:"uniqueIndex;size:191" json:"email"`
	Phone           *string    `gorm:"uniqueIndex;size:32" json:"phone"`
	PasswordHash    string     `gorm:"not null" json:"-"`
	DisplayName     string     `gorm:"default:''" json:"display_name"`
	Status          string     `gorm:"default:'active';index" json:"status"`
	TokenVersion    uint64     `gorm:"not null;default:0" json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	PhoneVerifiedAt *time.Time `json:"phone_verified_at"`
	LastLoginAt     *time.Time `json:"last_login_at"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// ContactFor 返回指定渠道的联系方式
func (u *User) ContactFor(channel string) string {
	if u == nil {
		return ""
	}
	var value *string
	switch channel {
	case constants.ChannelEmail:
		value = u.Email
	case constants.ChannelPhone:
		value = u.Phone
	}
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

// VerifiedAtFor 返回指定渠道的验证时间
func (u *User) VerifiedAtFor(channel string) *time.Time {
	if u == nil {
		return nil
	}
	switch channel {
	case constants.ChannelEmail:
		return u.EmailVerifiedAt
	case constants.ChannelPhone:
		return u.PhoneVerifiedAt
	}
	return nil
}
