package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reward_engine/internal/domain/coupon/model"
	"reward_engine/internal/domain/coupon/repository"
	userModel "reward_engine/internal/domain/user/model"
	"reward_engine/internal/pkg/events"
	"reward_engine/internal/pkg/lock"
	"reward_engine/pkg/errs"
	"reward_engine/pkg/logger"
	"reward_engine/pkg/metrics"
	"reward_engine/pkg/security"

	"go.uber.org/zap"
)

// UserLookup 发券前确认用户所属门店
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*userModel.User, error)
}

type CreateCouponInput struct {
	Name       string
	Total      int // 0 表示不限库存
	Amount     int64
	PerUserCap int
	ValidDays  int
	StartTime  time.Time
	EndTime    time.Time
}

type CouponService interface {
	CreateCoupon(ctx context.Context, actor security.Permissions, in CreateCouponInput) (*model.Coupon, error)
	// IssueCoupon 系统发券，超过每人上限或无库存时静默跳过
	IssueCoupon(ctx context.Context, userID, couponID, source string) (*model.IssueResult, error)
	// IssueCouponOnce 同一 source 只发一张，重复调用返回 already_issued
	IssueCouponOnce(ctx context.Context, userID, couponID, source string) (*model.IssueResult, error)
	SendCoupon(ctx context.Context, actor security.Permissions, actorID, userID, couponID string) (*model.IssueResult, error)
	UseCoupon(ctx context.Context, userID, userCouponID string) (*model.UserCoupon, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	ListMine(ctx context.Context, userID string) ([]model.UserCoupon, error)
}

type couponService struct {
	repo    repository.CouponRepository
	users   UserLookup
	locker  lock.Locker
	events  events.Publisher
	metrics *metrics.Collector
	now     func() time.Time
}

func NewCouponService(repo repository.CouponRepository, users UserLookup, locker lock.Locker, publisher events.Publisher) CouponService {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if publisher == nil {
		publisher = events.Nop
	}
	return &couponService{
		repo:    repo,
		users:   users,
		locker:  locker,
		events:  publisher,
		metrics: metrics.GetGlobalCollector(),
		now:     time.Now,
	}
}

func (s *couponService) CreateCoupon(ctx context.Context, actor security.Permissions, in CreateCouponInput) (*model.Coupon, error) {
	if !actor.HasPermission(security.PermissionMissionEdit) {
		return nil, errs.ErrForbidden
	}
	if !in.EndTime.After(in.StartTime) {
		return nil, fmt.Errorf("%w: end time must be after start time", errs.ErrInvalidArgument)
	}
	stock := in.Total
	if in.Total <= 0 {
		stock = model.UnlimitedStock
	}
	coupon := &model.Coupon{
		Name:       in.Name,
		Total:      in.Total,
		Stock:      stock,
		Amount:     in.Amount,
		PerUserCap: in.PerUserCap,
		ValidDays:  in.ValidDays,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

func lockKey(userID, couponID string) string {
	return fmt.Sprintf("lock:coupon:%s:%s", userID, couponID)
}

func (s *couponService) IssueCoupon(ctx context.Context, userID, couponID, source string) (*model.IssueResult, error) {
	return s.issue(ctx, userID, couponID, source, false)
}

func (s *couponService) IssueCouponOnce(ctx context.Context, userID, couponID, source string) (*model.IssueResult, error) {
	return s.issue(ctx, userID, couponID, source, true)
}

func (s *couponService) issue(ctx context.Context, userID, couponID, source string, once bool) (*model.IssueResult, error) {
	coupon, err := s.repo.GetByID(ctx, couponID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if now.Before(coupon.StartTime) || !now.Before(coupon.EndTime) {
		return s.skip(userID, couponID, model.ReasonNotInWindow), nil
	}

	// 计数与写入在同一把 (用户, 模板) 锁内，避免并发突破上限
	unlock, err := s.locker.Lock(ctx, lockKey(userID, couponID))
	if err != nil {
		return nil, fmt.Errorf("acquire coupon lock: %w", err)
	}
	defer func() {
		if err := unlock(ctx); err != nil {
			logger.Log.Warn("failed to release coupon lock", zap.String("user_id", userID), zap.Error(err))
		}
	}()

	if once {
		existing, err := s.repo.FindBySource(ctx, userID, couponID, source)
		switch {
		case err == nil:
			res := s.skip(userID, couponID, model.ReasonAlreadyIssued)
			res.UserCoupon = existing
			return res, nil
		case !errors.Is(err, errs.ErrNotFound):
			return nil, err
		}
	}

	if coupon.PerUserCap > 0 {
		count, err := s.repo.CountUserCoupons(ctx, userID, couponID)
		if err != nil {
			return nil, err
		}
		if count >= int64(coupon.PerUserCap) {
			return s.skip(userID, couponID, model.ReasonCapReached), nil
		}
	}

	uc := &model.UserCoupon{
		UserID:     userID,
		CouponID:   couponID,
		Status:     model.StatusUnused,
		Source:     source,
		ObtainedAt: now,
	}
	if coupon.ValidDays > 0 {
		expiresAt := now.AddDate(0, 0, coupon.ValidDays)
		uc.ExpiresAt = &expiresAt
	}

	if err := s.repo.Issue(ctx, uc, coupon.Limited()); err != nil {
		if errors.Is(err, repository.ErrOutOfStock) {
			return s.skip(userID, couponID, model.ReasonOutOfStock), nil
		}
		return nil, err
	}

	s.metrics.RecordCouponIssue("issued")
	if err := s.events.Publish(ctx, events.TopicCouponIssued, events.Payload{
		UserID:   userID,
		CouponID: uc.ID,
		Amount:   coupon.Amount,
	}); err != nil {
		logger.Log.Warn("coupon.issued publish failed", zap.String("user_coupon_id", uc.ID), zap.Error(err))
	}
	return &model.IssueResult{Issued: true, UserCoupon: uc}, nil
}

func (s *couponService) skip(userID, couponID, reason string) *model.IssueResult {
	logger.Log.Info("coupon issuance skipped",
		zap.String("user_id", userID),
		zap.String("coupon_id", couponID),
		zap.String("reason", reason))
	s.metrics.RecordCouponIssue(reason)
	return &model.IssueResult{Issued: false, Reason: reason}
}

// SendCoupon 管理员发券，需要 coupons:issue 且能访问该用户门店
func (s *couponService) SendCoupon(ctx context.Context, actor security.Permissions, actorID, userID, couponID string) (*model.IssueResult, error) {
	if !actor.HasPermission(security.PermissionCouponIssue) {
		return nil, errs.ErrForbidden
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessStore(user.StoreID) {
		return nil, errs.ErrForbidden
	}
	return s.IssueCoupon(ctx, userID, couponID, "admin:"+actorID)
}

// UseCoupon unused→used，状态只前进不回退
func (s *couponService) UseCoupon(ctx context.Context, userID, userCouponID string) (*model.UserCoupon, error) {
	now := s.now()
	ok, err := s.repo.MarkUsed(ctx, userCouponID, userID, now)
	if err != nil {
		return nil, err
	}
	uc, err := s.repo.GetUserCoupon(ctx, userCouponID)
	if err != nil {
		return nil, err
	}
	if uc.UserID != userID {
		return nil, errs.ErrNotFound
	}
	if !ok {
		return nil, fmt.Errorf("%w: coupon is %s", errs.ErrInvalidTransition, s.effectiveStatus(uc, now))
	}
	return uc, nil
}

func (s *couponService) effectiveStatus(uc *model.UserCoupon, now time.Time) model.UserCouponStatus {
	if uc.Status == model.StatusUnused && uc.ExpiresAt != nil && !uc.ExpiresAt.After(now) {
		return model.StatusExpired
	}
	return uc.Status
}

func (s *couponService) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.ExpireDue(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Log.Info("expired user coupons", zap.Int64("count", n))
	}
	return n, nil
}

func (s *couponService) ListMine(ctx context.Context, userID string) ([]model.UserCoupon, error) {
	return s.repo.ListByUser(ctx, userID)
}
