package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	couponModel "reward_engine/internal/domain/coupon/model"
	missionModel "reward_engine/internal/domain/mission/model"
	partModel "reward_engine/internal/domain/participation/model"
	"reward_engine/internal/domain/settlement/model"
	"reward_engine/internal/domain/settlement/repository"
	"reward_engine/internal/pkg/events"
	"reward_engine/pkg/errs"
	"reward_engine/pkg/logger"
	"reward_engine/pkg/metrics"
	"reward_engine/pkg/security"
	"reward_engine/pkg/utils"

	"go.uber.org/zap"
)

// MissionLookup 结算历史参与时任务可能已下架，因此不区分上下架
type MissionLookup interface {
	GetMissionDefinition(ctx context.Context, id string) (*missionModel.MissionDefinition, error)
}

// CouponIssuer 评价任务附带发券，按来源去重，对账重试不会多发
type CouponIssuer interface {
	IssueCouponOnce(ctx context.Context, userID, couponID, source string) (*couponModel.IssueResult, error)
}

// ReferralVerifier 推荐任务达标后批量验证推荐关系
type ReferralVerifier interface {
	VerifyReferees(ctx context.Context, referrerID string, phones []string, threshold int) (int, error)
}

// SettlementTracker 记录参与的结算进度，对账只扫描未完成的
type SettlementTracker interface {
	ListVerifiedUnsettled(ctx context.Context, limit int) ([]partModel.Participation, error)
	MarkSettled(ctx context.Context, id string, at time.Time) (bool, error)
}

// Options 奖励规则
type Options struct {
	ReferralThreshold int
	ReviewCouponID    string
}

// ReconcileResult 对账结果
type ReconcileResult struct {
	Scanned int `json:"scanned"`
	Settled int `json:"settled"`
	Failed  int `json:"failed"`
}

type SettlementService interface {
	// Settle 可重复调用：返现和经验值只入账一次，其余步骤幂等，全部成功后标记已结算
	Settle(ctx context.Context, actor security.Permissions, p *partModel.Participation) (*model.Payback, error)
	ApprovePayback(ctx context.Context, actor security.Permissions, reviewerID, paybackID string) (*model.Payback, error)
	RejectPayback(ctx context.Context, actor security.Permissions, reviewerID, paybackID, reason string) (*model.Payback, error)
	Reconcile(ctx context.Context, limit int) (*ReconcileResult, error)
	ListPaybacks(ctx context.Context, actor security.Permissions, status model.PaybackStatus, page utils.Pagination) ([]model.Payback, int64, error)
	ListMine(ctx context.Context, userID string) ([]model.Payback, error)
}

type settlementService struct {
	repo      repository.PaybackRepository
	missions  MissionLookup
	coupons   CouponIssuer
	referrals ReferralVerifier
	tracker   SettlementTracker
	events    events.Publisher
	opts      Options
	metrics   *metrics.Collector
	now       func() time.Time
}

func NewSettlementService(
	repo repository.PaybackRepository,
	missions MissionLookup,
	coupons CouponIssuer,
	referrals ReferralVerifier,
	tracker SettlementTracker,
	publisher events.Publisher,
	opts Options,
) SettlementService {
	if publisher == nil {
		publisher = events.Nop
	}
	return &settlementService{
		repo:      repo,
		missions:  missions,
		coupons:   coupons,
		referrals: referrals,
		tracker:   tracker,
		events:    publisher,
		opts:      opts,
		metrics:   metrics.GetGlobalCollector(),
		now:       time.Now,
	}
}

func (s *settlementService) Settle(ctx context.Context, actor security.Permissions, p *partModel.Participation) (*model.Payback, error) {
	// 写操作入口重新校验权限，不依赖调用方
	if !actor.HasPermission(security.PermissionSubmissionApprove) || !actor.CanAccessStore(p.StoreID) {
		return nil, errs.ErrForbidden
	}
	if p.Status != partModel.StatusVerified {
		return nil, fmt.Errorf("%w: participation is %s", errs.ErrInvalidTransition, p.Status)
	}

	if p.SettledAt != nil {
		return s.repo.FindByParticipation(ctx, p.ID)
	}

	def, err := s.missions.GetMissionDefinition(ctx, p.MissionDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("load mission %s: %w", p.MissionDefinitionID, err)
	}

	// 1. 返现待人工审核后才到账，经验值随返现一起入账
	participationID := p.ID
	payback := &model.Payback{
		UserID:          p.UserID,
		StoreID:         p.StoreID,
		ParticipationID: &participationID,
		Source:          model.SourceMission,
		Amount:          def.RewardAmount,
		Status:          model.PaybackPending,
	}
	created, err := s.repo.CreateIfAbsent(ctx, payback, def.RewardXP)
	if err != nil {
		s.metrics.RecordSettlement(string(def.Type), err)
		return nil, fmt.Errorf("issue payback: %w", err)
	}
	if created {
		s.metrics.RecordPayback(string(model.SourceMission), string(model.PaybackPending))
	} else {
		if payback, err = s.repo.FindByParticipation(ctx, p.ID); err != nil {
			return nil, err
		}
		logger.Log.Info("payback already issued, resume settlement",
			zap.String("participation_id", p.ID),
			zap.String("payback_id", payback.ID),
			zap.String("status", string(payback.Status)))
	}

	var stepErrs []error

	switch def.Type {
	case missionModel.TypeReview:
		// 2. 评价任务发券，超过上限是静默跳过
		if s.opts.ReviewCouponID != "" && s.coupons != nil {
			res, err := s.coupons.IssueCouponOnce(ctx, p.UserID, s.opts.ReviewCouponID, "mission:"+p.ID)
			if err != nil {
				stepErrs = append(stepErrs, fmt.Errorf("issue review coupon: %w", err))
			} else if !res.Issued {
				logger.Log.Info("review coupon skipped",
					zap.String("participation_id", p.ID),
					zap.String("reason", res.Reason))
			}
		}
	case missionModel.TypeReferral:
		// 3. 推荐任务达标只标记验证，不发放推荐奖励
		if err := s.verifyReferees(ctx, p); err != nil {
			stepErrs = append(stepErrs, err)
		}
	}

	// 4. 通知只在返现首次创建时发，失败不回滚
	if created {
		if err := s.events.Publish(ctx, events.TopicSettlementIssued, events.Payload{
			UserID:          p.UserID,
			StoreID:         p.StoreID,
			ParticipationID: p.ID,
			PaybackID:       payback.ID,
			Amount:          payback.Amount,
			OccurredAt:      s.now(),
		}); err != nil {
			logger.Log.Warn("settlement.issued publish failed", zap.String("participation_id", p.ID), zap.Error(err))
		}
	}

	// 5. 有步骤失败则保持未结算，留给对账重试
	stepErr := errors.Join(stepErrs...)
	if stepErr == nil && s.tracker != nil {
		at := s.now()
		ok, err := s.tracker.MarkSettled(ctx, p.ID, at)
		if err != nil {
			stepErr = fmt.Errorf("mark settled: %w", err)
		} else if ok {
			p.SettledAt = &at
		}
	}
	s.metrics.RecordSettlement(string(def.Type), stepErr)
	return payback, stepErr
}

func (s *settlementService) verifyReferees(ctx context.Context, p *partModel.Participation) error {
	if s.referrals == nil {
		return nil
	}
	var proof missionModel.ReferralProof
	if err := p.Proof.Decode(&proof); err != nil {
		return fmt.Errorf("decode referral proof: %w", err)
	}
	phones := proof.Phones()
	if len(phones) < s.opts.ReferralThreshold {
		logger.Log.Info("referral threshold not reached",
			zap.String("participation_id", p.ID),
			zap.Int("referees", len(phones)),
			zap.Int("threshold", s.opts.ReferralThreshold))
		return nil
	}
	n, err := s.referrals.VerifyReferees(ctx, p.UserID, phones, s.opts.ReferralThreshold)
	if err != nil {
		return fmt.Errorf("verify referees: %w", err)
	}
	logger.Log.Info("referees verified", zap.String("referrer_id", p.UserID), zap.Int("verified", n))
	return nil
}

func (s *settlementService) loadForReview(ctx context.Context, actor security.Permissions, paybackID string) error {
	if !actor.HasPermission(security.PermissionPaybackApprove) {
		return errs.ErrForbidden
	}
	pb, err := s.repo.GetByID(ctx, paybackID)
	if err != nil {
		return err
	}
	if !actor.CanAccessStore(pb.StoreID) {
		return errs.ErrForbidden
	}
	return nil
}

// ApprovePayback pending→paid，同时累加用户已到账金额
func (s *settlementService) ApprovePayback(ctx context.Context, actor security.Permissions, reviewerID, paybackID string) (*model.Payback, error) {
	if err := s.loadForReview(ctx, actor, paybackID); err != nil {
		return nil, err
	}
	pb, err := s.repo.MarkPaid(ctx, paybackID, reviewerID, s.now())
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPayback(string(pb.Source), string(model.PaybackPaid))
	s.publish(ctx, events.TopicPaybackPaid, pb)
	return pb, nil
}

func (s *settlementService) RejectPayback(ctx context.Context, actor security.Permissions, reviewerID, paybackID, reason string) (*model.Payback, error) {
	if err := s.loadForReview(ctx, actor, paybackID); err != nil {
		return nil, err
	}
	pb, err := s.repo.MarkRejected(ctx, paybackID, reviewerID, reason)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPayback(string(pb.Source), string(model.PaybackRejected))
	s.publish(ctx, events.TopicPaybackRejected, pb)
	return pb, nil
}

func (s *settlementService) publish(ctx context.Context, topic events.Topic, pb *model.Payback) {
	payload := events.Payload{
		UserID:     pb.UserID,
		StoreID:    pb.StoreID,
		PaybackID:  pb.ID,
		Amount:     pb.Amount,
		Status:     string(pb.Status),
		OccurredAt: s.now(),
	}
	if err := s.events.Publish(ctx, topic, payload); err != nil {
		logger.Log.Warn("payback event publish failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}

// Reconcile 重跑审核通过但结算未完成的参与，可与线上流量并行
func (s *settlementService) Reconcile(ctx context.Context, limit int) (*ReconcileResult, error) {
	if s.tracker == nil {
		return &ReconcileResult{}, nil
	}
	list, err := s.tracker.ListVerifiedUnsettled(ctx, limit)
	if err != nil {
		return nil, err
	}
	result := &ReconcileResult{Scanned: len(list)}
	system := security.SystemActor()
	for i := range list {
		p := &list[i]
		if _, err := s.Settle(ctx, system, p); err != nil {
			result.Failed++
			logger.Log.Error("reconcile settle failed", zap.String("participation_id", p.ID), zap.Error(err))
			continue
		}
		result.Settled++
	}
	return result, nil
}

func (s *settlementService) ListPaybacks(ctx context.Context, actor security.Permissions, status model.PaybackStatus, page utils.Pagination) ([]model.Payback, int64, error) {
	if !actor.HasPermission(security.PermissionPaybackRead) {
		return nil, 0, errs.ErrForbidden
	}
	stores, all := actor.AccessibleStores()
	offset, limit := page.GetPageOffset()
	return s.repo.List(ctx, model.ListFilter{Status: status, StoreIDs: stores, AllStores: all}, offset, limit)
}

func (s *settlementService) ListMine(ctx context.Context, userID string) ([]model.Payback, error) {
	return s.repo.ListByUser(ctx, userID)
}
