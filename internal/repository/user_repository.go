package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/models"

	"gorm.io/gorm"
)

// UserRepository 用户数据访问接口
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetByContact(channel, value string) (*models.User, error)
	CountByIDs(ids []uint) (int64, error)
	Create(user *models.User) error
	TouchLastLogin(id uint, at time.Time) error
	MarkContactVerified(id uint, channel, value string, at time.Time) error
	WithTx(tx *gorm.DB) *GormUserRepository
}

// GormUserRepository GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// WithTx 绑定事务
func (r *GormUserRepository) WithTx(tx *gorm.DB) *GormUserRepository {
	if tx == nil {
		return r
	}
	return &GormUserRepository{db: tx}
}

// GetByID 根据 ID 获取用户
func (r *GormUserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByContact 根据邮箱或手机号获取用户
func (r *GormUserRepository) GetByContact(channel, value string) (*models.User, error) {
	column, err := contactColumn(channel)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := r.db.Where(column+" = ?", value).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// CountByIDs 统计存在的用户数量
func (r *GormUserRepository) CountByIDs(ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	if err := r.db.Model(&models.User{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Create 创建用户
func (r *GormUserRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// TouchLastLogin 更新最后登录时间
func (r *GormUserRepository) TouchLastLogin(id uint, at time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("last_login_at", at).Error
}

// MarkContactVerified 写入联系方式并标记该渠道已验证
func (r *GormUserRepository) MarkContactVerified(id uint, channel, value string, at time.Time) error {
	column, err := contactColumn(channel)
	if err != nil {
		return err
	}
	return r.db.Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		column:                  value,
		column + "_verified_at": at,
		"updated_at":            at,
	}).Error
}

func contactColumn(channel string) (string, error) {
	switch channel {
	case constants.ChannelEmail:
		return "email", nil
	case constants.ChannelPhone:
		return "phone", nil
	default:
		return "", fmt.Errorf("unsupported contact channel: %s", channel)
	}
}
