package repository

import (
	"context"
	"errors"

	"reward_engine/internal/domain/user/model"
	"reward_engine/pkg/errs"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 接口定义
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByPhone(ctx context.Context, phone string) (*model.User, error)
	GetByReferralCode(ctx context.Context, code string) (*model.User, error)
	GetList(ctx context.Context, storeIDs []string, all bool, offset, limit int) ([]model.User, int64, error)
	Update(ctx context.Context, user *model.User) error
	SetReferredBy(ctx context.Context, userID, referrerID string) (bool, error)
	ListStoreIDs(ctx context.Context, userID string) ([]string, error)
	AssignStore(ctx context.Context, userID, storeID string) error
	Delete(ctx context.Context, id string) error
}

// userRepository 实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建新的仓库实例
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.ErrNotFound
	}
	return err
}

// Create 创建用户
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID 根据ID获取用户
func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) GetByReferralCode(ctx context.Context, code string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetList 获取用户列表（分页），all=false 时按门店过滤
func (r *userRepository) GetList(ctx context.Context, storeIDs []string, all bool, offset, limit int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	q := r.db.WithContext(ctx).Model(&model.User{})
	if !all {
		if len(storeIDs) == 0 {
			return []model.User{}, 0, nil
		}
		q = q.Where("store_id IN ?", storeIDs)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Update 更新资料字段，余额字段不在此处写入
func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Model(user).
		Select("name", "store_id", "phone_verified").
		Updates(user).Error
}

// SetReferredBy 只在尚未设置推荐人时写入
func (r *userRepository) SetReferredBy(ctx context.Context, userID, referrerID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND referred_by_id IS NULL", userID).
		Update("referred_by_id", referrerID)
	return result.RowsAffected > 0, result.Error
}

func (r *userRepository) ListStoreIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.StoreAssignment{}).
		Where("user_id = ?", userID).
		Order("store_id").
		Pluck("store_id", &ids).Error
	return ids, err
}

// AssignStore 自然键冲突时不做任何事，与批量初始化脚本兼容
func (r *userRepository) AssignStore(ctx context.Context, userID, storeID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.StoreAssignment{UserID: userID, StoreID: storeID}).Error
}

// Delete 软删除
func (r *userRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{}).Error
}
