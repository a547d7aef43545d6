package models

import (
	"time"

	"github.com/mercato-next/internal/constants"
)

// Voucher 优惠券定义
// 兑换流程只修改 UsageCount，其余字段归后台管理
type Voucher struct {
	ID                uint       `gorm:"primarykey" json:"id"`
	Code              string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Name              string     `gorm:"type:varchar(191);not null;default:''" json:"name"`
	DiscountType      string     `gorm:"type:varchar(16);not null" json:"discount_type"` // percentage / fixed
	Value             Money      `gorm:"type:decimal(20,2);not null" json:"value"`
	MinSpend          Money      `gorm:"type:decimal(20,2);not null;default:0" json:"min_spend"`
	ExpiresAt         *time.Time `gorm:"index" json:"expires_at"`
	IsActive          bool       `gorm:"not null;index" json:"is_active"`
	MaxUsagePerUser   int        `gorm:"not null;default:0" json:"max_usage_per_user"` // 0 表示不限制
	MaxTotalUsage     int        `gorm:"not null;default:0" json:"max_total_usage"`    // 0 表示不限制
	UsageCount        int        `gorm:"not null;default:0" json:"usage_count"`
	QualificationType string     `gorm:"type:varchar(16);not null;default:'manual';index" json:"qualification_type"`
	BatchNo           string     `gorm:"type:varchar(64);not null;default:'';index" json:"batch_no"`
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	CategoryIDs []uint `gorm:"-" json:"category_ids,omitempty"`
	ProductIDs  []uint `gorm:"-" json:"product_ids,omitempty"`
}

// TableName 指定表名
func (Voucher) TableName() string {
	return "vouchers"
}

// IsExpiredAt 判断在给定时间是否已过期
func (v *Voucher) IsExpiredAt(now time.Time) bool {
	return v.ExpiresAt != nil && !v.ExpiresAt.After(now)
}

// IsGloballyExhausted 判断总量是否用尽
func (v *Voucher) IsGloballyExhausted() bool {
	return v.MaxTotalUsage > 0 && v.UsageCount >= v.MaxTotalUsage
}

// IsTargeted 是否仅限指定用户
func (v *Voucher) IsTargeted() bool {
	return v.QualificationType == constants.QualificationTargeted
}

// VoucherCategory 优惠券适用分类
type VoucherCategory struct {
	ID         uint `gorm:"primarykey" json:"id"`
	VoucherID  uint `gorm:"not null;uniqueIndex:idx_voucher_category,priority:1" json:"voucher_id"`
	CategoryID uint `gorm:"not null;uniqueIndex:idx_voucher_category,priority:2;index" json:"category_id"`
}

// TableName 指定表名
func (VoucherCategory) TableName() string {
	return "voucher_categories"
}

// VoucherProduct 优惠券适用商品
type VoucherProduct struct {
	ID        uint `gorm:"primarykey" json:"id"`
	VoucherID uint `gorm:"not null;uniqueIndex:idx_voucher_product,priority:1" json:"voucher_id"`
	ProductID uint `gorm:"not null;uniqueIndex:idx_voucher_product,priority:2;index" json:"product_id"`
}

// TableName 指定表名
func (VoucherProduct) TableName() string {
	return "voucher_products"
}

// UserVoucher 定向优惠券的可用用户
type UserVoucher struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	VoucherID uint      `gorm:"not null;uniqueIndex:idx_user_voucher,priority:1" json:"voucher_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_voucher,priority:2;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (UserVoucher) TableName() string {
	return "user_vouchers"
}
