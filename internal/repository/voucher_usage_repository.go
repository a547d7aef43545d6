package repository

import (
	"github.com/mercato-next/internal/models"

	"gorm.io/gorm"
)

// VoucherUsageRepository 优惠券核销记录数据访问接口
type VoucherUsageRepository interface {
	Create(usage *models.VoucherUsage) error
	CountByVoucherAndUser(voucherID, userID uint) (int64, error)
	CountByVoucher(voucherID uint) (int64, error)
	List(filter VoucherUsageListFilter) ([]models.VoucherUsage, int64, error)
	StatsByVoucher(voucherID uint) (*VoucherUsageStats, error)
	WithTx(tx *gorm.DB) VoucherUsageRepository
}

// GormVoucherUsageRepository GORM 实现
type GormVoucherUsageRepository struct {
	db *gorm.DB
}

// NewVoucherUsageRepository 创建核销记录仓库
func NewVoucherUsageRepository(db *gorm.DB) *GormVoucherUsageRepository {
	return &GormVoucherUsageRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVoucherUsageRepository) WithTx(tx *gorm.DB) VoucherUsageRepository {
	if tx == nil {
		return r
	}
	return &GormVoucherUsageRepository{db: tx}
}

// Create 写入核销记录
func (r *GormVoucherUsageRepository) Create(usage *models.VoucherUsage) error {
	return r.db.Create(usage).Error
}

// CountByVoucherAndUser 统计用户对某优惠券的核销次数
func (r *GormVoucherUsageRepository) CountByVoucherAndUser(voucherID, userID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.VoucherUsage{}).
		Where("voucher_id = ? AND user_id = ?", voucherID, userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountByVoucher 统计优惠券总核销次数
func (r *GormVoucherUsageRepository) CountByVoucher(voucherID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.VoucherUsage{}).
		Where("voucher_id = ?", voucherID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// List 核销记录列表
func (r *GormVoucherUsageRepository) List(filter VoucherUsageListFilter) ([]models.VoucherUsage, int64, error) {
	query := r.db.Model(&models.VoucherUsage{})
	if filter.VoucherID > 0 {
		query = query.Where("voucher_id = ?", filter.VoucherID)
	}
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var usages []models.VoucherUsage
	if err := query.Order("id DESC").Find(&usages).Error; err != nil {
		return nil, 0, err
	}
	return usages, total, nil
}

// StatsByVoucher 汇总优惠券核销数据
func (r *GormVoucherUsageRepository) StatsByVoucher(voucherID uint) (*VoucherUsageStats, error) {
	var row struct {
		Redemptions   int64
		DistinctUsers int64
		TotalDiscount models.Money
	}
	err := r.db.Model(&models.VoucherUsage{}).
		Select("COUNT(*) AS redemptions, COUNT(DISTINCT user_id) AS distinct_users, COALESCE(SUM(discount_amount), 0) AS total_discount").
		Where("voucher_id = ?", voucherID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &VoucherUsageStats{
		Redemptions:   row.Redemptions,
		DistinctUsers: row.DistinctUsers,
		TotalDiscount: row.TotalDiscount,
	}, nil
}
