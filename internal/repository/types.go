package repository

import "github.com/mercato-next/internal/models"

// VoucherListFilter 优惠券列表筛选
type VoucherListFilter struct {
	Page              int
	PageSize          int
	Code              string
	BatchNo           string
	QualificationType string
	IsActive          *bool
}

// VoucherUsageListFilter 核销记录筛选
type VoucherUsageListFilter struct {
	Page      int
	PageSize  int
	VoucherID uint
	UserID    uint
}

// ProductListFilter 商品列表筛选
type ProductListFilter struct {
	Page       int
	PageSize   int
	CategoryID uint
	Search     string
	OnlyActive bool
}

// VoucherUsageStats 单张优惠券的核销汇总
type VoucherUsageStats struct {
	Redemptions   int64        `json:"redemptions"`
	DistinctUsers int64        `json:"distinct_users"`
	TotalDiscount models.Money `json:"total_discount"`
}
