package repository

import (
	"errors"
	"time"

	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoucherRepository 优惠券数据访问接口
type VoucherRepository interface {
	GetByID(id uint) (*models.Voucher, error)
	GetByCode(code string) (*models.Voucher, error)
	GetByCodeForUpdate(code string) (*models.Voucher, error)
	GetByIDForUpdate(id uint) (*models.Voucher, error)
	Create(voucher *models.Voucher) error
	CreateBatch(vouchers []models.Voucher, chunkSize int) error
	Update(voucher *models.Voucher) error
	List(filter VoucherListFilter) ([]models.Voucher, int64, error)
	ListIDs() ([]uint, error)
	ExistingCodes(codes []string) ([]string, error)
	IncrementUsageIfAvailable(id uint) (bool, error)
	SetUsageCount(id uint, count int) error
	ListCategoryIDs(voucherID uint) ([]uint, error)
	ListProductIDs(voucherID uint) ([]uint, error)
	ReplaceScope(voucherID uint, categoryIDs, productIDs []uint) error
	ReplaceEligibleUsers(voucherID uint, userIDs []uint) error
	AttachScope(voucherIDs, categoryIDs, productIDs []uint) error
	AttachEligibleUsers(voucherIDs, userIDs []uint) error
	IsUserEligible(voucherID, userID uint) (bool, error)
	ListAvailableForUser(userID uint, now time.Time) ([]models.Voucher, error)
	WithTx(tx *gorm.DB) *GormVoucherRepository
}

// GormVoucherRepository GORM 实现
type GormVoucherRepository struct {
	db *gorm.DB
}

// NewVoucherRepository 创建优惠券仓库
func NewVoucherRepository(db *gorm.DB) *GormVoucherRepository {
	return &GormVoucherRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVoucherRepository) WithTx(tx *gorm.DB) *GormVoucherRepository {
	if tx == nil {
		return r
	}
	return &GormVoucherRepository{db: tx}
}

// GetByID 根据ID获取优惠券
func (r *GormVoucherRepository) GetByID(id uint) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := r.db.First(&voucher, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// GetByCode 根据优惠码获取优惠券
func (r *GormVoucherRepository) GetByCode(code string) (*models.Voucher, error) {
	return r.findByCode(r.db, code)
}

// GetByCodeForUpdate 加行锁获取优惠券（sqlite 下锁子句会被忽略）
func (r *GormVoucherRepository) GetByCodeForUpdate(code string) (*models.Voucher, error) {
	return r.findByCode(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), code)
}

// GetByIDForUpdate 加行锁按 ID 获取优惠券
func (r *GormVoucherRepository) GetByIDForUpdate(id uint) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&voucher, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

func (r *GormVoucherRepository) findByCode(db *gorm.DB, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := db.Where("code = ?", code).First(&voucher).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// Create 创建优惠券
func (r *GormVoucherRepository) Create(voucher *models.Voucher) error {
	return r.db.Create(voucher).Error
}

// CreateBatch 分批创建优惠券
func (r *GormVoucherRepository) CreateBatch(vouchers []models.Voucher, chunkSize int) error {
	if len(vouchers) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 200
	}
	return r.db.CreateInBatches(&vouchers, chunkSize).Error
}

// Update 更新优惠券定义字段（不覆盖 usage_count）
func (r *GormVoucherRepository) Update(voucher *models.Voucher) error {
	return r.db.Model(voucher).
		Select("name", "value", "min_spend", "expires_at", "is_active", "max_usage_per_user", "max_total_usage", "qualification_type", "updated_at").
		Updates(voucher).Error
}

// List 获取优惠券列表
func (r *GormVoucherRepository) List(filter VoucherListFilter) ([]models.Voucher, int64, error) {
	query := r.db.Model(&models.Voucher{})
	if filter.Code != "" {
		query = query.Where("code "+likeOperator(r.db)+" ?", "%"+filter.Code+"%")
	}
	if filter.BatchNo != "" {
		query = query.Where("batch_no = ?", filter.BatchNo)
	}
	if filter.QualificationType != "" {
		query = query.Where("qualification_type = ?", filter.QualificationType)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var vouchers []models.Voucher
	if err := query.Order("id DESC").Find(&vouchers).Error; err != nil {
		return nil, 0, err
	}
	return vouchers, total, nil
}

// ListIDs 获取全部优惠券 ID
func (r *GormVoucherRepository) ListIDs() ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&models.Voucher{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ExistingCodes 返回已存在的优惠码
func (r *GormVoucherRepository) ExistingCodes(codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var existing []string
	if err := r.db.Model(&models.Voucher{}).Where("code IN ?", codes).Pluck("code", &existing).Error; err != nil {
		return nil, err
	}
	return existing, nil
}

// IncrementUsageIfAvailable 原子地占用一次总量额度
// 返回 false 表示总量已用尽
func (r *GormVoucherRepository) IncrementUsageIfAvailable(id uint) (bool, error) {
	result := r.db.Model(&models.Voucher{}).
		Where("id = ? AND (max_total_usage = 0 OR usage_count < max_total_usage)", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetUsageCount 覆盖使用计数（用于对账修正）
func (r *GormVoucherRepository) SetUsageCount(id uint, count int) error {
	return r.db.Model(&models.Voucher{}).Where("id = ?", id).UpdateColumn("usage_count", count).Error
}

// ListCategoryIDs 获取优惠券适用分类
func (r *GormVoucherRepository) ListCategoryIDs(voucherID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.VoucherCategory{}).Where("voucher_id = ?", voucherID).Order("category_id ASC").Pluck("category_id", &ids).Error
	return ids, err
}

// ListProductIDs 获取优惠券适用商品
func (r *GormVoucherRepository) ListProductIDs(voucherID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.VoucherProduct{}).Where("voucher_id = ?", voucherID).Order("product_id ASC").Pluck("product_id", &ids).Error
	return ids, err
}

// ReplaceScope 覆盖优惠券适用范围
func (r *GormVoucherRepository) ReplaceScope(voucherID uint, categoryIDs, productIDs []uint) error {
	if err := r.db.Where("voucher_id = ?", voucherID).Delete(&models.VoucherCategory{}).Error; err != nil {
		return err
	}
	if err := r.db.Where("voucher_id = ?", voucherID).Delete(&models.VoucherProduct{}).Error; err != nil {
		return err
	}
	if len(categoryIDs) > 0 {
		rows := make([]models.VoucherCategory, 0, len(categoryIDs))
		for _, id := range categoryIDs {
			rows = append(rows, models.VoucherCategory{VoucherID: voucherID, CategoryID: id})
		}
		if err := r.db.Create(&rows).Error; err != nil {
			return err
		}
	}
	if len(productIDs) > 0 {
		rows := make([]models.VoucherProduct, 0, len(productIDs))
		for _, id := range productIDs {
			rows = append(rows, models.VoucherProduct{VoucherID: voucherID, ProductID: id})
		}
		if err := r.db.Create(&rows).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReplaceEligibleUsers 覆盖定向用户列表
func (r *GormVoucherRepository) ReplaceEligibleUsers(voucherID uint, userIDs []uint) error {
	if err := r.db.Where("voucher_id = ?", voucherID).Delete(&models.UserVoucher{}).Error; err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]models.UserVoucher, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.UserVoucher{VoucherID: voucherID, UserID: id})
	}
	return r.db.CreateInBatches(&rows, 500).Error
}

// AttachScope 为一批优惠券写入相同的适用范围
func (r *GormVoucherRepository) AttachScope(voucherIDs, categoryIDs, productIDs []uint) error {
	if len(voucherIDs) == 0 {
		return nil
	}
	if len(categoryIDs) > 0 {
		rows := make([]models.VoucherCategory, 0, len(voucherIDs)*len(categoryIDs))
		for _, voucherID := range voucherIDs {
			for _, categoryID := range categoryIDs {
				rows = append(rows, models.VoucherCategory{VoucherID: voucherID, CategoryID: categoryID})
			}
		}
		if err := r.db.CreateInBatches(&rows, 500).Error; err != nil {
			return err
		}
	}
	if len(productIDs) > 0 {
		rows := make([]models.VoucherProduct, 0, len(voucherIDs)*len(productIDs))
		for _, voucherID := range voucherIDs {
			for _, productID := range productIDs {
				rows = append(rows, models.VoucherProduct{VoucherID: voucherID, ProductID: productID})
			}
		}
		if err := r.db.CreateInBatches(&rows, 500).Error; err != nil {
			return err
		}
	}
	return nil
}

// AttachEligibleUsers 为一批优惠券写入相同的定向用户
func (r *GormVoucherRepository) AttachEligibleUsers(voucherIDs, userIDs []uint) error {
	if len(voucherIDs) == 0 || len(userIDs) == 0 {
		return nil
	}
	rows := make([]models.UserVoucher, 0, len(voucherIDs)*len(userIDs))
	for _, voucherID := range voucherIDs {
		for _, userID := range userIDs {
			rows = append(rows, models.UserVoucher{VoucherID: voucherID, UserID: userID})
		}
	}
	return r.db.CreateInBatches(&rows, 500).Error
}

// IsUserEligible 判断用户是否在定向名单中
func (r *GormVoucherRepository) IsUserEligible(voucherID, userID uint) (bool, error) {
	var count int64
	if err := r.db.Model(&models.UserVoucher{}).
		Where("voucher_id = ? AND user_id = ?", voucherID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListAvailableForUser 用户可见的优惠券：自动发放的 + 定向给该用户的
// 个人核销次数按分组子查询一次性关联，已达个人上限的直接过滤
func (r *GormVoucherRepository) ListAvailableForUser(userID uint, now time.Time) ([]models.Voucher, error) {
	targeted := r.db.Model(&models.UserVoucher{}).Select("voucher_id").Where("user_id = ?", userID)
	usedByUser := r.db.Model(&models.VoucherUsage{}).
		Select("voucher_id, COUNT(*) AS used").
		Where("user_id = ?", userID).
		Group("voucher_id")
	var vouchers []models.Voucher
	err := r.db.Model(&models.Voucher{}).
		Select("vouchers.*").
		Joins("LEFT JOIN (?) AS user_usage ON user_usage.voucher_id = vouchers.id", usedByUser).
		Where("vouchers.max_usage_per_user = 0 OR COALESCE(user_usage.used, 0) < vouchers.max_usage_per_user").
		Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Where("max_total_usage = 0 OR usage_count < max_total_usage").
		Where(
			r.db.Where("qualification_type = ?", constants.QualificationAutomatic).
				Or("qualification_type = ? AND vouchers.id IN (?)", constants.QualificationTargeted, targeted),
		).
		Order("vouchers.id DESC").
		Find(&vouchers).Error
	if err != nil {
		return nil, err
	}
	return vouchers, nil
}
