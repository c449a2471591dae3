package repository

import (
	"context"
	"errors"
	"time"

	"reward_engine/internal/domain/referral/model"
	settleModel "reward_engine/internal/domain/settlement/model"
	userModel "reward_engine/internal/domain/user/model"
	"reward_engine/pkg/errs"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferralRepository interface {
	// CreateIfAbsent referee_id 唯一，重复注册返回 false
	CreateIfAbsent(ctx context.Context, r *model.Referral) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Referral, error)
	GetByReferee(ctx context.Context, refereeID string) (*model.Referral, error)
	// MarkVerified 仅在未验证时更新
	MarkVerified(ctx context.Context, id string, at time.Time) (bool, error)
	// VerifyByRefereePhones 手机号命中的被推荐人数达到阈值时，整批标记为已验证
	VerifyByRefereePhones(ctx context.Context, referrerID string, phones []string, threshold int, at time.Time) (int, error)
	// PayReward 事务内 reward_paid=false→true 并写入推荐返现
	PayReward(ctx context.Context, id string, payback *settleModel.Payback, at time.Time) (*model.Referral, error)
	ListByReferrer(ctx context.Context, referrerID string) ([]model.Referral, error)
}

type referralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) ReferralRepository {
	return &referralRepository{db: db}
}

func get(db *gorm.DB, query string, arg interface{}) (*model.Referral, error) {
	var r model.Referral
	if err := db.Where(query, arg).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (r *referralRepository) CreateIfAbsent(ctx context.Context, ref *model.Referral) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "referee_id"}}, DoNothing: true}).
		Create(ref)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *referralRepository) GetByID(ctx context.Context, id string) (*model.Referral, error) {
	return get(r.db.WithContext(ctx), "id = ?", id)
}

func (r *referralRepository) GetByReferee(ctx context.Context, refereeID string) (*model.Referral, error) {
	return get(r.db.WithContext(ctx), "referee_id = ?", refereeID)
}

func (r *referralRepository) MarkVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Referral{}).
		Where("id = ? AND is_verified = ?", id, false).
		Updates(map[string]interface{}{"is_verified": true, "verified_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *referralRepository) VerifyByRefereePhones(ctx context.Context, referrerID string, phones []string, threshold int, at time.Time) (int, error) {
	if len(phones) == 0 {
		return 0, nil
	}

	verified := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		err := tx.Model(&model.Referral{}).
			Joins("JOIN users ON users.id = referrals.referee_id").
			Where("referrals.referrer_id = ? AND users.phone IN ?", referrerID, phones).
			Distinct().
			Pluck("referrals.id", &ids).Error
		if err != nil {
			return err
		}
		// 未达阈值不做任何变更
		if len(ids) < threshold {
			return nil
		}

		result := tx.Model(&model.Referral{}).
			Where("id IN ? AND is_verified = ?", ids, false).
			Updates(map[string]interface{}{"is_verified": true, "verified_at": at})
		if result.Error != nil {
			return result.Error
		}
		verified = int(result.RowsAffected)
		return nil
	})
	return verified, err
}

func (r *referralRepository) PayReward(ctx context.Context, id string, payback *settleModel.Payback, at time.Time) (*model.Referral, error) {
	var paid *model.Referral
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Referral{}).
			Where("id = ? AND is_verified = ? AND reward_paid = ?", id, true, false).
			Updates(map[string]interface{}{"reward_paid": true, "paid_at": at})
		if result.Error != nil {
			return result.Error
		}

		ref, err := get(tx, "id = ?", id)
		if err != nil {
			return err
		}
		if result.RowsAffected == 0 {
			if !ref.IsVerified {
				return errs.ErrNotVerified
			}
			return errs.ErrAlreadyPaid
		}

		// 推荐返现归属推荐人所在门店
		var referrer userModel.User
		if err := tx.Select("id", "store_id").Where("id = ?", ref.ReferrerID).First(&referrer).Error; err != nil {
			return err
		}
		payback.UserID = ref.ReferrerID
		payback.StoreID = referrer.StoreID
		payback.ReferralID = &ref.ID
		payback.Source = settleModel.SourceReferral
		payback.Status = settleModel.PaybackPending
		if err := tx.Create(payback).Error; err != nil {
			return err
		}
		paid = ref
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

func (r *referralRepository) ListByReferrer(ctx context.Context, referrerID string) ([]model.Referral, error) {
	var list []model.Referral
	err := r.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}
