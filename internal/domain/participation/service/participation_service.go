package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	missionModel "reward_engine/internal/domain/mission/model"
	"reward_engine/internal/domain/participation/model"
	"reward_engine/internal/domain/participation/repository"
	settleModel "reward_engine/internal/domain/settlement/model"
	userModel "reward_engine/internal/domain/user/model"
	"reward_engine/internal/pkg/events"
	"reward_engine/pkg/errs"
	"reward_engine/pkg/logger"
	"reward_engine/pkg/metrics"
	baseModel "reward_engine/pkg/model"
	"reward_engine/pkg/security"
	"reward_engine/pkg/utils"

	"go.uber.org/zap"
)

// Catalog 任务目录
type Catalog interface {
	GetActiveMissionDefinition(ctx context.Context, id string) (*missionModel.MissionDefinition, error)
}

// UserLookup 参与记录归属用户所在门店
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*userModel.User, error)
}

// Settler 审核通过后结算，只由状态变更的赢家调用一次
type Settler interface {
	Settle(ctx context.Context, actor security.Permissions, p *model.Participation) (*settleModel.Payback, error)
}

type ParticipationService interface {
	StartMission(ctx context.Context, userID, missionDefID string) (*model.Participation, error)
	SubmitProof(ctx context.Context, userID, missionDefID string, raw []byte) (*model.Participation, error)
	AdminApprove(ctx context.Context, actor security.Permissions, reviewerID, id string) (*model.Participation, error)
	AdminReject(ctx context.Context, actor security.Permissions, reviewerID, id, reason string) (*model.Participation, error)
	GetMine(ctx context.Context, userID string) ([]model.Participation, error)
	ListForReview(ctx context.Context, actor security.Permissions, status model.Status, page utils.Pagination) ([]model.Participation, int64, error)
}

type participationService struct {
	repo      repository.ParticipationRepository
	catalog   Catalog
	users     UserLookup
	settler   Settler
	events    events.Publisher
	validator *ProofValidator
	metrics   *metrics.Collector
	now       func() time.Time
}

func NewParticipationService(
	repo repository.ParticipationRepository,
	catalog Catalog,
	users UserLookup,
	settler Settler,
	publisher events.Publisher,
) ParticipationService {
	if publisher == nil {
		publisher = events.Nop
	}
	return &participationService{
		repo:      repo,
		catalog:   catalog,
		users:     users,
		settler:   settler,
		events:    publisher,
		validator: NewProofValidator(),
		metrics:   metrics.GetGlobalCollector(),
		now:       time.Now,
	}
}

// StartMission 幂等：已有未结束的参与直接返回，批量预置的 pending 记录推进到 in_progress
func (s *participationService) StartMission(ctx context.Context, userID, missionDefID string) (*model.Participation, error) {
	def, err := s.catalog.GetActiveMissionDefinition(ctx, missionDefID)
	if err != nil {
		return nil, err
	}

	open, err := s.resumeOpen(ctx, userID, missionDefID)
	if err == nil {
		return open, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	if !def.Repeatable {
		latest, err := s.repo.FindLatest(ctx, userID, missionDefID)
		if err == nil && latest.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: participation %s is %s", errs.ErrAlreadyVerified, latest.ID, latest.Status)
		}
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &model.Participation{
		UserID:              userID,
		MissionDefinitionID: missionDefID,
		MissionType:         def.Type,
		StoreID:             user.StoreID,
		Status:              model.StatusInProgress,
		StartedAt:           &now,
	}
	created, err := s.repo.CreateIfAbsent(ctx, p)
	if err != nil {
		return nil, err
	}
	if !created {
		// 并发创建输给了另一方（或批量预置），返回已存在的记录
		return s.resumeOpen(ctx, userID, missionDefID)
	}
	s.metrics.RecordTransition(string(model.StatusInProgress), "ok")
	return p, nil
}

func (s *participationService) resumeOpen(ctx context.Context, userID, missionDefID string) (*model.Participation, error) {
	open, err := s.repo.FindOpen(ctx, userID, missionDefID)
	if err != nil {
		return nil, err
	}
	if open.Status != model.StatusPending {
		return open, nil
	}
	if _, err := s.repo.MarkStarted(ctx, open.ID, s.now()); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, open.ID)
}

// SubmitProof 校验凭证后覆盖保存并置为 completed，状态以库中实际值为准
func (s *participationService) SubmitProof(ctx context.Context, userID, missionDefID string, raw []byte) (*model.Participation, error) {
	def, err := s.catalog.GetActiveMissionDefinition(ctx, missionDefID)
	if err != nil {
		return nil, err
	}
	if _, err := s.validator.Validate(def.Schema(), raw); err != nil {
		return nil, err
	}

	ok, err := s.repo.SaveProof(ctx, userID, missionDefID, baseModel.JSON(raw), s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		latest, err := s.repo.FindLatest(ctx, userID, missionDefID)
		if err != nil {
			return nil, err
		}
		if latest.Status.IsTerminal() {
			// 审核已结束的重复提交
			return nil, fmt.Errorf("%w: %w: participation %s is %s", errs.ErrAlreadySubmitted, errs.ErrAlreadyVerified, latest.ID, latest.Status)
		}
		return nil, fmt.Errorf("%w: participation %s is %s", errs.ErrInvalidTransition, latest.ID, latest.Status)
	}

	p, err := s.repo.FindOpen(ctx, userID, missionDefID)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(string(model.StatusCompleted), "ok")
	s.publish(ctx, events.TopicParticipationSubmitted, p)
	return p, nil
}

// authorize 写操作入口的权限与门店范围校验
func (s *participationService) authorize(ctx context.Context, actor security.Permissions, perm security.Permission, id string) (*model.Participation, error) {
	if !actor.HasPermission(perm) {
		return nil, errs.ErrForbidden
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessStore(p.StoreID) {
		return nil, errs.ErrForbidden
	}
	return p, nil
}

// review completed→to；未命中时如果已是目标状态视为重复请求
func (s *participationService) review(ctx context.Context, id string, to model.Status, rv model.Review) (*model.Participation, bool, error) {
	ok, err := s.repo.Transition(ctx, id, model.StatusCompleted, to, rv)
	if err != nil {
		return nil, false, err
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if ok {
		s.metrics.RecordTransition(string(to), "ok")
		return current, true, nil
	}
	if current.Status == to {
		s.metrics.RecordTransition(string(to), "noop")
		return current, false, nil
	}
	s.metrics.RecordTransition(string(to), "conflict")
	return nil, false, fmt.Errorf("%w: participation %s is %s", errs.ErrInvalidTransition, id, current.Status)
}

func (s *participationService) AdminApprove(ctx context.Context, actor security.Permissions, reviewerID, id string) (*model.Participation, error) {
	if _, err := s.authorize(ctx, actor, security.PermissionSubmissionApprove, id); err != nil {
		return nil, err
	}
	p, won, err := s.review(ctx, id, model.StatusVerified, model.Review{ReviewerID: reviewerID, At: s.now()})
	if err != nil || !won {
		return p, err
	}
	s.publish(ctx, events.TopicParticipationVerified, p)

	// 审核结果已提交，结算失败只记录并返回，由对账任务补发
	if _, err := s.settler.Settle(ctx, actor, p); err != nil {
		logger.Log.Error("settlement failed after approval",
			zap.String("participation_id", p.ID),
			zap.Error(err))
		return p, fmt.Errorf("settle participation %s: %w", p.ID, err)
	}
	return p, nil
}

func (s *participationService) AdminReject(ctx context.Context, actor security.Permissions, reviewerID, id, reason string) (*model.Participation, error) {
	if _, err := s.authorize(ctx, actor, security.PermissionSubmissionReject, id); err != nil {
		return nil, err
	}
	p, won, err := s.review(ctx, id, model.StatusRejected, model.Review{ReviewerID: reviewerID, Reason: reason, At: s.now()})
	if err != nil || !won {
		return p, err
	}
	s.publish(ctx, events.TopicParticipationRejected, p)
	return p, nil
}

func (s *participationService) publish(ctx context.Context, topic events.Topic, p *model.Participation) {
	if err := s.events.Publish(ctx, topic, events.Payload{
		UserID:          p.UserID,
		StoreID:         p.StoreID,
		ParticipationID: p.ID,
		Status:          string(p.Status),
		OccurredAt:      s.now(),
	}); err != nil {
		logger.Log.Warn("participation event publish failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}

func (s *participationService) GetMine(ctx context.Context, userID string) ([]model.Participation, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *participationService) ListForReview(ctx context.Context, actor security.Permissions, status model.Status, page utils.Pagination) ([]model.Participation, int64, error) {
	if !actor.HasPermission(security.PermissionSubmissionRead) {
		return nil, 0, errs.ErrForbidden
	}
	stores, all := actor.AccessibleStores()
	offset, limit := page.GetPageOffset()
	return s.repo.ListForReview(ctx, model.ReviewFilter{Status: status, StoreIDs: stores, AllStores: all}, offset, limit)
}
