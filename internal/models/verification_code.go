package models

import "time"

// VerificationCode 一次性验证码记录
// 同一 (user_id, channel) 至多存在一条 used_at 为空的记录，由部分唯一索引保证
// 记录不做物理删除，作为审计留痕
type VerificationCode struct {
	ID             uint       `gorm:"primarykey" json:"id"`
	UserID         uint       `gorm:"not null;uniqueIndex:idx_verification_codes_active,priority:1,where:used_at IS NULL" json:"user_id"`
	Channel        string     `gorm:"type:varchar(16);not null;uniqueIndex:idx_verification_codes_active,priority:2,where:used_at IS NULL" json:"channel"`
	Destination    string     `gorm:"type:varchar(191);not null;index" json:"destination"`
	Code           string     `gorm:"type:varchar(16);not null" json:"-"`
	ExpiresAt      time.Time  `gorm:"not null;index" json:"expires_at"`
	UsedAt         *time.Time `gorm:"index" json:"used_at"`
	ConsumeReason  string     `gorm:"type:varchar(16);not null;default:''" json:"consume_reason"`
	AttemptCount   int        `gorm:"not null;default:0" json:"attempt_count"`
	DeliveryStatus string     `gorm:"type:varchar(16);not null;default:'pending'" json:"delivery_status"`
	DeliveryError  string     `gorm:"type:varchar(500);not null;default:''" json:"delivery_error"`
	SentAt         *time.Time `json:"sent_at"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (VerificationCode) TableName() string {
	return "verification_codes"
}

// IsUsable 判断验证码在给定时间是否仍可校验
func (v *VerificationCode) IsUsable(now time.Time, maxAttempts int) bool {
	if v == nil || v.UsedAt != nil {
		return false
	}
	if !now.Before(v.ExpiresAt) {
		return false
	}
	if maxAttempts > 0 && v.AttemptCount >= maxAttempts {
		return false
	}
	return true
}
