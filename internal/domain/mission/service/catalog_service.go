package service

import (
	"context"
	"fmt"
	"time"

	"reward_engine/internal/domain/mission/model"
	"reward_engine/internal/domain/mission/repository"
	"reward_engine/internal/pkg/caching"
	"reward_engine/pkg/errs"
	"reward_engine/pkg/logger"
	"reward_engine/pkg/security"

	"go.uber.org/zap"
)

const (
	cacheTTL       = 5 * time.Minute
	activeListKey  = "mission:active"
	definitionKeyF = "mission:def:%s"
)

// CatalogService 任务目录，只读
type CatalogService interface {
	// GetActiveMissionDefinition 未上架的任务按不存在处理
	GetActiveMissionDefinition(ctx context.Context, id string) (*model.MissionDefinition, error)
	// GetMissionDefinition 不区分上下架，结算历史参与时使用
	GetMissionDefinition(ctx context.Context, id string) (*model.MissionDefinition, error)
	ListActive(ctx context.Context) ([]model.MissionDefinition, error)
	CreateMission(ctx context.Context, actor security.Permissions, def *model.MissionDefinition) error
}

type catalogService struct {
	repo  repository.MissionRepository
	cache caching.Cache
}

func NewCatalogService(repo repository.MissionRepository, cache caching.Cache) CatalogService {
	if cache == nil {
		cache = caching.Noop{}
	}
	return &catalogService{repo: repo, cache: cache}
}

func (s *catalogService) GetMissionDefinition(ctx context.Context, id string) (*model.MissionDefinition, error) {
	def, err := caching.UseCache(ctx, s.cache, fmt.Sprintf(definitionKeyF, id), cacheTTL, func() (model.MissionDefinition, error) {
		def, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return model.MissionDefinition{}, err
		}
		return *def, nil
	})
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *catalogService) GetActiveMissionDefinition(ctx context.Context, id string) (*model.MissionDefinition, error) {
	def, err := s.GetMissionDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	if !def.Active {
		return nil, fmt.Errorf("%w: mission %s is inactive", errs.ErrNotFound, id)
	}
	return def, nil
}

func (s *catalogService) ListActive(ctx context.Context) ([]model.MissionDefinition, error) {
	return caching.UseCache(ctx, s.cache, activeListKey, cacheTTL, func() ([]model.MissionDefinition, error) {
		return s.repo.ListActive(ctx)
	})
}

// CreateMission 管理端维护目录，创建后清理列表缓存
func (s *catalogService) CreateMission(ctx context.Context, actor security.Permissions, def *model.MissionDefinition) error {
	if !actor.HasPermission(security.PermissionMissionEdit) {
		return errs.ErrForbidden
	}
	if !def.Type.Valid() {
		return fmt.Errorf("%w: unknown mission type %q", errs.ErrInvalidArgument, def.Type)
	}
	if err := s.repo.Create(ctx, def); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, activeListKey); err != nil {
		logger.Log.Warn("failed to invalidate mission list cache", zap.Error(err))
	}
	return nil
}
