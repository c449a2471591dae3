package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reward_engine/internal/domain/referral/model"
	"reward_engine/internal/domain/referral/repository"
	settleModel "reward_engine/internal/domain/settlement/model"
	userRepository "reward_engine/internal/domain/user/repository"
	"reward_engine/internal/pkg/events"
	"reward_engine/pkg/errs"
	"reward_engine/pkg/logger"
	"reward_engine/pkg/metrics"
	"reward_engine/pkg/security"

	"go.uber.org/zap"
)

type ReferralService interface {
	// RegisterReferral 新用户通过推荐码绑定推荐人
	RegisterReferral(ctx context.Context, newUserID, code string) (*model.Referral, error)
	// VerifyReferral 管理员验证，已验证时直接返回当前记录
	VerifyReferral(ctx context.Context, actor security.Permissions, id string) (*model.Referral, error)
	// VerifyReferees 推荐任务结算时按手机号达标验证
	VerifyReferees(ctx context.Context, referrerID string, phones []string, threshold int) (int, error)
	// PayReferralReward 发放推荐奖励，生成独立的返现记录
	PayReferralReward(ctx context.Context, actor security.Permissions, id string) (*model.Referral, *settleModel.Payback, error)
	ListMine(ctx context.Context, referrerID string) ([]model.Referral, error)
}

type referralService struct {
	repo    repository.ReferralRepository
	users   userRepository.UserRepository
	events  events.Publisher
	bonus   int64
	metrics *metrics.Collector
	now     func() time.Time
}

func NewReferralService(repo repository.ReferralRepository, users userRepository.UserRepository, publisher events.Publisher, bonus int64) ReferralService {
	if publisher == nil {
		publisher = events.Nop
	}
	return &referralService{
		repo:    repo,
		users:   users,
		events:  publisher,
		bonus:   bonus,
		metrics: metrics.GetGlobalCollector(),
		now:     time.Now,
	}
}

func (s *referralService) RegisterReferral(ctx context.Context, newUserID, code string) (*model.Referral, error) {
	referrer, err := s.users.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidCode
		}
		return nil, err
	}
	if referrer.ID == newUserID {
		return nil, errs.ErrSelfReferral
	}

	ref := &model.Referral{ReferrerID: referrer.ID, RefereeID: newUserID}
	created, err := s.repo.CreateIfAbsent(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("%w: user %s already has a referrer", errs.ErrAlreadyExists, newUserID)
	}

	if _, err := s.users.SetReferredBy(ctx, newUserID, referrer.ID); err != nil {
		logger.Log.Warn("failed to stamp referred_by", zap.String("user_id", newUserID), zap.Error(err))
	}
	s.publish(ctx, events.TopicReferralRegistered, ref, referrer.StoreID)
	return ref, nil
}

func (s *referralService) referrerStore(ctx context.Context, ref *model.Referral) (string, error) {
	referrer, err := s.users.GetByID(ctx, ref.ReferrerID)
	if err != nil {
		return "", fmt.Errorf("load referrer: %w", err)
	}
	return referrer.StoreID, nil
}

// authorize 权限 + 推荐人门店范围
func (s *referralService) authorize(ctx context.Context, actor security.Permissions, perm security.Permission, id string) (*model.Referral, string, error) {
	if !actor.HasPermission(perm) {
		return nil, "", errs.ErrForbidden
	}
	ref, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	storeID, err := s.referrerStore(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	if !actor.CanAccessStore(storeID) {
		return nil, "", errs.ErrForbidden
	}
	return ref, storeID, nil
}

func (s *referralService) VerifyReferral(ctx context.Context, actor security.Permissions, id string) (*model.Referral, error) {
	ref, storeID, err := s.authorize(ctx, actor, security.PermissionReferralVerify, id)
	if err != nil {
		return nil, err
	}
	if ref.IsVerified {
		return ref, nil
	}

	ok, err := s.repo.MarkVerified(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// 并发验证时只有一方发事件
	if ok {
		s.publish(ctx, events.TopicReferralVerified, updated, storeID)
	}
	return updated, nil
}

func (s *referralService) VerifyReferees(ctx context.Context, referrerID string, phones []string, threshold int) (int, error) {
	n, err := s.repo.VerifyByRefereePhones(ctx, referrerID, phones, threshold, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		storeID := ""
		if referrer, err := s.users.GetByID(ctx, referrerID); err == nil {
			storeID = referrer.StoreID
		}
		s.publish(ctx, events.TopicReferralVerified, &model.Referral{ReferrerID: referrerID}, storeID)
	}
	return n, nil
}

func (s *referralService) PayReferralReward(ctx context.Context, actor security.Permissions, id string) (*model.Referral, *settleModel.Payback, error) {
	if _, _, err := s.authorize(ctx, actor, security.PermissionReferralPay, id); err != nil {
		return nil, nil, err
	}

	payback := &settleModel.Payback{Amount: s.bonus}
	ref, err := s.repo.PayReward(ctx, id, payback, s.now())
	if err != nil {
		return nil, nil, err
	}
	s.metrics.RecordPayback(string(settleModel.SourceReferral), string(settleModel.PaybackPending))

	if err := s.events.Publish(ctx, events.TopicReferralPaid, events.Payload{
		UserID:     ref.ReferrerID,
		StoreID:    payback.StoreID,
		ReferralID: ref.ID,
		PaybackID:  payback.ID,
		Amount:     payback.Amount,
		OccurredAt: s.now(),
	}); err != nil {
		logger.Log.Warn("referral.paid publish failed", zap.String("referral_id", ref.ID), zap.Error(err))
	}
	return ref, payback, nil
}

func (s *referralService) publish(ctx context.Context, topic events.Topic, ref *model.Referral, storeID string) {
	if err := s.events.Publish(ctx, topic, events.Payload{
		UserID:     ref.ReferrerID,
		StoreID:    storeID,
		ReferralID: ref.ID,
		OccurredAt: s.now(),
	}); err != nil {
		logger.Log.Warn("referral event publish failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}

func (s *referralService) ListMine(ctx context.Context, referrerID string) ([]model.Referral, error) {
	return s.repo.ListByReferrer(ctx, referrerID)
}
