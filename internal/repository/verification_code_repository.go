package repository

import (
	"errors"
	"time"

	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/models"

	"gorm.io/gorm"
)

// VerificationCodeRepository 验证码数据访问接口
type VerificationCodeRepository interface {
	Create(code *models.VerificationCode) error
	GetByID(id uint) (*models.VerificationCode, error)
	GetActive(userID uint, channel string) (*models.VerificationCode, error)
	SupersedeActive(userID uint, channel string, at time.Time) (int64, error)
	Consume(id uint, at time.Time) (int64, error)
	IncrementAttempt(id uint) error
	UpdateDelivery(id uint, status, deliveryErr string, sentAt *time.Time) error
	CountActive(userID uint, channel string) (int64, error)
	WithTx(tx *gorm.DB) *GormVerificationCodeRepository
}

// GormVerificationCodeRepository GORM 实现
type GormVerificationCodeRepository struct {
	db *gorm.DB
}

// NewVerificationCodeRepository 创建验证码仓库
func NewVerificationCodeRepository(db *gorm.DB) *GormVerificationCodeRepository {
	return &GormVerificationCodeRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVerificationCodeRepository) WithTx(tx *gorm.DB) *GormVerificationCodeRepository {
	if tx == nil {
		return r
	}
	return &GormVerificationCodeRepository{db: tx}
}

// Create 创建验证码记录
func (r *GormVerificationCodeRepository) Create(code *models.VerificationCode) error {
	return r.db.Create(code).Error
}

// GetByID 根据 ID 获取验证码
func (r *GormVerificationCodeRepository) GetByID(id uint) (*models.VerificationCode, error) {
	var record models.VerificationCode
	if err := r.db.First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetActive 获取未使用的验证码（可能已过期）
func (r *GormVerificationCodeRepository) GetActive(userID uint, channel string) (*models.VerificationCode, error) {
	return r.findActive(r.db, userID, channel)
}

func (r *GormVerificationCodeRepository) findActive(db *gorm.DB, userID uint, channel string) (*models.VerificationCode, error) {
	var record models.VerificationCode
	err := db.Where("user_id = ? AND channel = ? AND used_at IS NULL", userID, channel).
		Order("id desc").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// SupersedeActive 作废该用户该渠道下全部未使用的验证码
func (r *GormVerificationCodeRepository) SupersedeActive(userID uint, channel string, at time.Time) (int64, error) {
	result := r.db.Model(&models.VerificationCode{}).
		Where("user_id = ? AND channel = ? AND used_at IS NULL", userID, channel).
		Updates(map[string]interface{}{
			"used_at":        at,
			"consume_reason": constants.ConsumeReasonSuperseded,
			"updated_at":     at,
		})
	return result.RowsAffected, result.Error
}

// Consume 条件更新为已验证，返回受影响行数（0 表示已被其他请求消费）
func (r *GormVerificationCodeRepository) Consume(id uint, at time.Time) (int64, error) {
	result := r.db.Model(&models.VerificationCode{}).
		Where("id = ? AND used_at IS NULL", id).
		Updates(map[string]interface{}{
			"used_at":        at,
			"consume_reason": constants.ConsumeReasonVerified,
			"updated_at":     at,
		})
	return result.RowsAffected, result.Error
}

// IncrementAttempt 增加失败次数
func (r *GormVerificationCodeRepository) IncrementAttempt(id uint) error {
	return r.db.Model(&models.VerificationCode{}).
		Where("id = ?", id).
		UpdateColumn("attempt_count", gorm.Expr("attempt_count + 1")).Error
}

// UpdateDelivery 更新投递状态
func (r *GormVerificationCodeRepository) UpdateDelivery(id uint, status, deliveryErr string, sentAt *time.Time) error {
	if len(deliveryErr) > 500 {
		deliveryErr = deliveryErr[:500]
	}
	updates := map[string]interface{}{
		"delivery_status": status,
		"delivery_error":  deliveryErr,
	}
	if sentAt != nil {
		updates["sent_at"] = *sentAt
	}
	return r.db.Model(&models.VerificationCode{}).Where("id = ?", id).Updates(updates).Error
}

// CountActive 统计未使用的验证码数量
func (r *GormVerificationCodeRepository) CountActive(userID uint, channel string) (int64, error) {
	var count int64
	err := r.db.Model(&models.VerificationCode{}).
		Where("user_id = ? AND channel = ? AND used_at IS NULL", userID, channel).
		Count(&count).Error
	return count, err
}
