package repository

import (
	"context"
	"errors"

	"reward_engine/internal/domain/mission/model"
	"reward_engine/pkg/errs"

	"gorm.io/gorm"
)

type MissionRepository interface {
	Create(ctx context.Context, def *model.MissionDefinition) error
	GetByID(ctx context.Context, id string) (*model.MissionDefinition, error)
	ListActive(ctx context.Context) ([]model.MissionDefinition, error)
}

type missionRepository struct {
	db *gorm.DB
}

func NewMissionRepository(db *gorm.DB) MissionRepository {
	return &missionRepository{db: db}
}

func (r *missionRepository) Create(ctx context.Context, def *model.MissionDefinition) error {
	return r.db.WithContext(ctx).Create(def).Error
}

func (r *missionRepository) GetByID(ctx context.Context, id string) (*model.MissionDefinition, error) {
	var def model.MissionDefinition
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &def, nil
}

func (r *missionRepository) ListActive(ctx context.Context) ([]model.MissionDefinition, error) {
	var defs []model.MissionDefinition
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&defs).Error
	return defs, err
}
