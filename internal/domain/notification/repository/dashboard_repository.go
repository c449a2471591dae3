package repository

import (
	"context"

	"reward_engine/internal/domain/notification/model"

	"github.com/jmoiron/sqlx"
)

// DashboardRepository 看板统计走 sqlx 只读查询
type DashboardRepository interface {
	// Counts all=false 且 storeIDs 为空时门店相关计数为 0
	Counts(ctx context.Context, storeIDs []string, all bool, userID string) (*model.Counts, error)
}

type dashboardRepository struct {
	db *sqlx.DB
}

func NewDashboardRepository(db *sqlx.DB) DashboardRepository {
	return &dashboardRepository{db: db}
}

const (
	pendingReviewsSQL      = "SELECT COUNT(*) FROM mission_participations WHERE deleted_at IS NULL AND status = ?"
	pendingPaybacksSQL     = "SELECT COUNT(*) FROM paybacks WHERE deleted_at IS NULL AND status = ?"
	unverifiedReferralsSQL = "SELECT COUNT(*) FROM referrals r JOIN users u ON u.id = r.referrer_id WHERE r.deleted_at IS NULL AND r.is_verified = ?"
	unreadNotificationsSQL = "SELECT COUNT(*) FROM notifications WHERE deleted_at IS NULL AND recipient_id = ? AND is_read = ?"
)

func (r *dashboardRepository) Counts(ctx context.Context, storeIDs []string, all bool, userID string) (*model.Counts, error) {
	counts := &model.Counts{}

	if all || len(storeIDs) > 0 {
		scoped := []struct {
			dest   *int64
			query  string
			column string
			arg    interface{}
		}{
			{&counts.PendingReviews, pendingReviewsSQL, "store_id", "completed"},
			{&counts.PendingPaybacks, pendingPaybacksSQL, "store_id", "pending"},
			{&counts.UnverifiedReferrals, unverifiedReferralsSQL, "u.store_id", false},
		}
		for _, s := range scoped {
			if err := r.count(ctx, s.dest, s.query, s.column, s.arg, storeIDs, all); err != nil {
				return nil, err
			}
		}
	}

	if userID != "" {
		if err := r.db.GetContext(ctx, &counts.UnreadNotifications, r.db.Rebind(unreadNotificationsSQL), userID, false); err != nil {
			return nil, err
		}
	}
	return counts, nil
}

// count 按门店范围追加 IN 条件，由 sqlx.In 展开
func (r *dashboardRepository) count(ctx context.Context, dest *int64, query, column string, arg interface{}, storeIDs []string, all bool) error {
	args := []interface{}{arg}
	if !all {
		query += " AND " + column + " IN (?)"
		args = append(args, storeIDs)
	}
	q, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return r.db.GetContext(ctx, dest, r.db.Rebind(q), expanded...)
}
