package models

import "time"

// VoucherUsage 优惠券核销记录（只追加）
// (voucher_id, user_id, user_seq) 唯一，防止同一用户并发重复核销
type VoucherUsage struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	VoucherID      uint      `gorm:"not null;uniqueIndex:idx_voucher_usage_user_seq,priority:1;index" json:"voucher_id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_voucher_usage_user_seq,priority:2;index" json:"user_id"`
	UserSeq        int       `gorm:"not null;uniqueIndex:idx_voucher_usage_user_seq,priority:3" json:"user_seq"`
	OrderID        *uint     `gorm:"index" json:"order_id"`
	ReceiptNo      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"receipt_no"`
	Subtotal       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"subtotal"`
	DiscountAmount Money     `gorm:"type:decimal(20,2);not null;default:0" json:"discount_amount"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (VoucherUsage) TableName() string {
	return "voucher_usages"
}
