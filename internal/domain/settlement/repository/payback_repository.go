package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reward_engine/internal/domain/settlement/model"
	userModel "reward_engine/internal/domain/user/model"
	"reward_engine/pkg/errs"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaybackRepository interface {
	// FindByParticipation 每个参与最多一条返现，不论状态
	FindByParticipation(ctx context.Context, participationID string) (*model.Payback, error)
	// CreateIfAbsent 依赖 participation_id / referral_id 唯一索引，冲突时不插入；
	// 只有真正插入时才在同一事务里给用户加经验值
	CreateIfAbsent(ctx context.Context, p *model.Payback, xp int64) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Payback, error)
	// MarkPaid 事务内 pending→paid 并累加用户已到账金额
	MarkPaid(ctx context.Context, id, reviewerID string, at time.Time) (*model.Payback, error)
	MarkRejected(ctx context.Context, id, reviewerID, reason string) (*model.Payback, error)
	List(ctx context.Context, filter model.ListFilter, offset, limit int) ([]model.Payback, int64, error)
	ListByUser(ctx context.Context, userID string) ([]model.Payback, error)
}

type paybackRepository struct {
	db *gorm.DB
}

func NewPaybackRepository(db *gorm.DB) PaybackRepository {
	return &paybackRepository{db: db}
}

func getByID(db *gorm.DB, id string) (*model.Payback, error) {
	var p model.Payback
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// explainMiss 条件更新未命中时，根据当前状态给出原因
func explainMiss(p *model.Payback) error {
	switch p.Status {
	case model.PaybackPaid:
		return errs.ErrAlreadyPaid
	default:
		return fmt.Errorf("%w: payback is %s", errs.ErrInvalidTransition, p.Status)
	}
}

func (r *paybackRepository) FindByParticipation(ctx context.Context, participationID string) (*model.Payback, error) {
	var p model.Payback
	err := r.db.WithContext(ctx).
		Where("participation_id = ?", participationID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *paybackRepository) CreateIfAbsent(ctx context.Context, p *model.Payback, xp int64) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(p)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		created = true
		// 经验值不是金钱，返现创建即入账
		return addXP(tx, p.UserID, xp)
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *paybackRepository) GetByID(ctx context.Context, id string) (*model.Payback, error) {
	return getByID(r.db.WithContext(ctx), id)
}

func (r *paybackRepository) MarkPaid(ctx context.Context, id, reviewerID string, at time.Time) (*model.Payback, error) {
	var paid *model.Payback
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Payback{}).
			Where("id = ? AND status = ?", id, model.PaybackPending).
			Updates(map[string]interface{}{
				"status":      model.PaybackPaid,
				"paid_at":     at,
				"reviewed_by": reviewerID,
			})
		if result.Error != nil {
			return result.Error
		}

		p, err := getByID(tx, id)
		if err != nil {
			return err
		}
		if result.RowsAffected == 0 {
			return explainMiss(p)
		}

		// 金额只在这里进入用户余额
		if err := tx.Model(&userModel.User{}).
			Where("id = ?", p.UserID).
			UpdateColumn("settled_earnings", gorm.Expr("settled_earnings + ?", p.Amount)).Error; err != nil {
			return err
		}
		paid = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

func (r *paybackRepository) MarkRejected(ctx context.Context, id, reviewerID, reason string) (*model.Payback, error) {
	db := r.db.WithContext(ctx)
	result := db.Model(&model.Payback{}).
		Where("id = ? AND status = ?", id, model.PaybackPending).
		Updates(map[string]interface{}{
			"status":        model.PaybackRejected,
			"reject_reason": reason,
			"reviewed_by":   reviewerID,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	p, err := getByID(db, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, explainMiss(p)
	}
	return p, nil
}

func addXP(tx *gorm.DB, userID string, xp int64) error {
	if xp == 0 {
		return nil
	}
	return tx.Model(&userModel.User{}).
		Where("id = ?", userID).
		UpdateColumn("xp", gorm.Expr("xp + ?", xp)).Error
}

func (r *paybackRepository) List(ctx context.Context, filter model.ListFilter, offset, limit int) ([]model.Payback, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Payback{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if !filter.AllStores {
		if len(filter.StoreIDs) == 0 {
			return []model.Payback{}, 0, nil
		}
		q = q.Where("store_id IN ?", filter.StoreIDs)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Payback
	if err := q.Order("created_at ASC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *paybackRepository) ListByUser(ctx context.Context, userID string) ([]model.Payback, error) {
	var list []model.Payback
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}
