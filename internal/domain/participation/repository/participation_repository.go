package repository

import (
	"context"
	"errors"
	"time"

	"reward_engine/internal/domain/participation/model"
	"reward_engine/pkg/errs"
	baseModel "reward_engine/pkg/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ParticipationRepository 所有状态变更都是带当前状态条件的更新，返回是否命中
type ParticipationRepository interface {
	// CreateIfAbsent 依赖 (user_id, mission_definition_id) 非终态部分唯一索引，冲突时不插入
	CreateIfAbsent(ctx context.Context, p *model.Participation) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Participation, error)
	FindOpen(ctx context.Context, userID, missionDefID string) (*model.Participation, error)
	FindLatest(ctx context.Context, userID, missionDefID string) (*model.Participation, error)
	MarkStarted(ctx context.Context, id string, at time.Time) (bool, error)
	SaveProof(ctx context.Context, userID, missionDefID string, proof baseModel.JSON, at time.Time) (bool, error)
	Transition(ctx context.Context, id string, from, to model.Status, review model.Review) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]model.Participation, error)
	ListForReview(ctx context.Context, filter model.ReviewFilter, offset, limit int) ([]model.Participation, int64, error)
	// ListVerifiedUnsettled 已通过审核但结算未完成的参与，供对账补发
	ListVerifiedUnsettled(ctx context.Context, limit int) ([]model.Participation, error)
	// MarkSettled 只对已通过且未结算的参与生效
	MarkSettled(ctx context.Context, id string, at time.Time) (bool, error)
}

type participationRepository struct {
	db *gorm.DB
}

func NewParticipationRepository(db *gorm.DB) ParticipationRepository {
	return &participationRepository{db: db}
}

func first(q *gorm.DB, dest *model.Participation) (*model.Participation, error) {
	if err := q.First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return dest, nil
}

func (r *participationRepository) CreateIfAbsent(ctx context.Context, p *model.Participation) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *participationRepository) GetByID(ctx context.Context, id string) (*model.Participation, error) {
	return first(r.db.WithContext(ctx).Where("id = ?", id), &model.Participation{})
}

func (r *participationRepository) FindOpen(ctx context.Context, userID, missionDefID string) (*model.Participation, error) {
	return first(r.db.WithContext(ctx).
		Where("user_id = ? AND mission_definition_id = ? AND status IN ?", userID, missionDefID, model.OpenStatuses),
		&model.Participation{})
}

func (r *participationRepository) FindLatest(ctx context.Context, userID, missionDefID string) (*model.Participation, error) {
	return first(r.db.WithContext(ctx).
		Where("user_id = ? AND mission_definition_id = ?", userID, missionDefID).
		Order("created_at DESC"),
		&model.Participation{})
}

// MarkStarted pending→in_progress
func (r *participationRepository) MarkStarted(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Participation{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]interface{}{
			"status":     model.StatusInProgress,
			"started_at": at,
		})
	return result.RowsAffected > 0, result.Error
}

// SaveProof 覆盖凭证并重置为 completed，等待重新审核
func (r *participationRepository) SaveProof(ctx context.Context, userID, missionDefID string, proof baseModel.JSON, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Participation{}).
		Where("user_id = ? AND mission_definition_id = ? AND status IN ?", userID, missionDefID, model.SubmittableStatuses).
		Updates(map[string]interface{}{
			"status":       model.StatusCompleted,
			"proof":        proof,
			"completed_at": at,
		})
	return result.RowsAffected > 0, result.Error
}

// Transition from→to，条件更新保证并发下只有一个调用方成功
func (r *participationRepository) Transition(ctx context.Context, id string, from, to model.Status, review model.Review) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if review.ReviewerID != "" {
		updates["reviewed_by"] = review.ReviewerID
	}
	switch to {
	case model.StatusVerified:
		updates["verified_at"] = review.At
	case model.StatusRejected:
		updates["rejected_at"] = review.At
		updates["reject_reason"] = review.Reason
	}
	result := r.db.WithContext(ctx).Model(&model.Participation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return result.RowsAffected > 0, result.Error
}

func (r *participationRepository) ListByUser(ctx context.Context, userID string) ([]model.Participation, error) {
	var list []model.Participation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

func (r *participationRepository) ListForReview(ctx context.Context, filter model.ReviewFilter, offset, limit int) ([]model.Participation, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Participation{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if !filter.AllStores {
		if len(filter.StoreIDs) == 0 {
			return []model.Participation{}, 0, nil
		}
		q = q.Where("store_id IN ?", filter.StoreIDs)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Participation
	if err := q.Order("completed_at ASC NULLS LAST").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *participationRepository) ListVerifiedUnsettled(ctx context.Context, limit int) ([]model.Participation, error) {
	var list []model.Participation
	err := r.db.WithContext(ctx).
		Where("status = ? AND settled_at IS NULL", model.StatusVerified).
		Order("verified_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *participationRepository) MarkSettled(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Participation{}).
		Where("id = ? AND status = ? AND settled_at IS NULL", id, model.StatusVerified).
		Update("settled_at", at)
	return result.RowsAffected > 0, result.Error
}
