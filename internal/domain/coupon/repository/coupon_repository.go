package repository

import (
	"context"
	"errors"
	"time"

	"reward_engine/internal/domain/coupon/model"
	"reward_engine/pkg/errs"

	"gorm.io/gorm"
)

var ErrOutOfStock = errors.New("insufficient stock")

type CouponRepository interface {
	Create(ctx context.Context, coupon *model.Coupon) error
	GetByID(ctx context.Context, id string) (*model.Coupon, error)
	CountUserCoupons(ctx context.Context, userID, couponID string) (int64, error)
	// FindBySource 同一来源发过的券，用于重试时去重
	FindBySource(ctx context.Context, userID, couponID, source string) (*model.UserCoupon, error)
	// Issue 同一事务内扣减库存并写入用户券
	Issue(ctx context.Context, userCoupon *model.UserCoupon, limited bool) error
	GetUserCoupon(ctx context.Context, id string) (*model.UserCoupon, error)
	MarkUsed(ctx context.Context, id, userID string, at time.Time) (bool, error)
	ExpireDue(ctx context.Context, at time.Time) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]model.UserCoupon, error)
}

type couponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepository{db: db}
}

func (r *couponRepository) Create(ctx context.Context, coupon *model.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *couponRepository) GetByID(ctx context.Context, id string) (*model.Coupon, error) {
	var coupon model.Coupon
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// CountUserCoupons 统计用户持有的该模板券（含已使用、已过期）
func (r *couponRepository) CountUserCoupons(ctx context.Context, userID, couponID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.UserCoupon{}).
		Where("user_id = ? AND coupon_id = ?", userID, couponID).
		Count(&count).Error
	return count, err
}

func (r *couponRepository) FindBySource(ctx context.Context, userID, couponID, source string) (*model.UserCoupon, error) {
	var uc model.UserCoupon
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND coupon_id = ? AND source = ?", userID, couponID, source).
		First(&uc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &uc, nil
}

func (r *couponRepository) Issue(ctx context.Context, userCoupon *model.UserCoupon, limited bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if limited {
			// 乐观锁扣减库存
			result := tx.Model(&model.Coupon{}).
				Where("id = ? AND stock > 0", userCoupon.CouponID).
				UpdateColumn("stock", gorm.Expr("stock - 1"))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrOutOfStock
			}
		}
		return tx.Create(userCoupon).Error
	})
}

func (r *couponRepository) GetUserCoupon(ctx context.Context, id string) (*model.UserCoupon, error) {
	var uc model.UserCoupon
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&uc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &uc, nil
}

// MarkUsed unused→used，过期的券不能使用
func (r *couponRepository) MarkUsed(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.UserCoupon{}).
		Where("id = ? AND user_id = ? AND status = ? AND (expires_at IS NULL OR expires_at > ?)",
			id, userID, model.StatusUnused, at).
		Updates(map[string]interface{}{
			"status":  model.StatusUsed,
			"used_at": at,
		})
	return result.RowsAffected > 0, result.Error
}

// ExpireDue 批量 unused→expired，可重复执行
func (r *couponRepository) ExpireDue(ctx context.Context, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.UserCoupon{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", model.StatusUnused, at).
		Update("status", model.StatusExpired)
	return result.RowsAffected, result.Error
}

func (r *couponRepository) ListByUser(ctx context.Context, userID string) ([]model.UserCoupon, error) {
	var list []model.UserCoupon
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("obtained_at DESC").
		Find(&list).Error
	return list, err
}
