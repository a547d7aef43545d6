package models

import "time"

// Product 商品表
// 仅保留计算优惠券适用金额所需的字段
type Product struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CategoryID  uint      `gorm:"not null;index" json:"category_id"`
	Slug        string    `gorm:"uniqueIndex;not null" json:"slug"`
	Title       string    `gorm:"not null" json:"title"`
	PriceAmount Money     `gorm:"type:decimal(20,2);not null;default:0" json:"price_amount"`
	IsActive    bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
