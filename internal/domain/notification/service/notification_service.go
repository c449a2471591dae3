package service

import (
	"context"
	"time"

	"reward_engine/internal/domain/notification/model"
	"reward_engine/internal/domain/notification/repository"
	"reward_engine/pkg/errs"
	"reward_engine/pkg/security"
	"reward_engine/pkg/utils"
)

type NotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool, page utils.Pagination) ([]model.Notification, int64, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Counts(ctx context.Context, actor security.Permissions, userID string) (*model.Counts, error)
}

type notificationService struct {
	repo      repository.NotificationRepository
	dashboard repository.DashboardRepository
	now       func() time.Time
}

func NewNotificationService(repo repository.NotificationRepository, dashboard repository.DashboardRepository) NotificationService {
	return &notificationService{repo: repo, dashboard: dashboard, now: time.Now}
}

func (s *notificationService) List(ctx context.Context, userID string, unreadOnly bool, page utils.Pagination) ([]model.Notification, int64, error) {
	offset, limit := page.GetPageOffset()
	return s.repo.List(ctx, userID, unreadOnly, offset, limit)
}

// MarkRead 重复标记不报错，不属于本人的通知按不存在处理
func (s *notificationService) MarkRead(ctx context.Context, userID, id string) error {
	ok, err := s.repo.MarkRead(ctx, id, userID, s.now())
	if err != nil || ok {
		return err
	}
	_, err = s.repo.Get(ctx, id, userID)
	return err
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID, s.now())
}

// Counts 没有看板权限时只返回未读通知数
func (s *notificationService) Counts(ctx context.Context, actor security.Permissions, userID string) (*model.Counts, error) {
	if userID == "" {
		return nil, errs.ErrInvalidArgument
	}
	stores, all := []string{}, false
	if actor.HasPermission(security.PermissionDashboardRead) {
		stores, all = actor.AccessibleStores()
	}
	return s.dashboard.Counts(ctx, stores, all, userID)
}
