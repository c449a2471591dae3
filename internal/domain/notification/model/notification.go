package model

import (
	"time"

	baseModel "reward_engine/pkg/model"
)

// Notification 站内通知，只追加，除已读标记外不修改
type Notification struct {
	baseModel.BaseModel
	RecipientID string         `gorm:"type:uuid;not null;index:idx_notification_recipient" json:"recipientId"`
	Type        string         `gorm:"type:varchar(40);not null" json:"type"`
	Title       string         `gorm:"type:varchar(100);not null" json:"title"`
	Payload     baseModel.JSON `gorm:"type:jsonb" json:"payload"`
	IsRead      bool           `gorm:"not null;default:false;index:idx_notification_recipient" json:"isRead"`
	ReadAt      *time.Time     `json:"readAt,omitempty"`
}

// Counts 看板待办数量，每次收到事件后重新查询
type Counts struct {
	PendingReviews      int64 `db:"pending_reviews" json:"pendingReviews"`
	PendingPaybacks     int64 `db:"pending_paybacks" json:"pendingPaybacks"`
	UnverifiedReferrals int64 `db:"unverified_referrals" json:"unverifiedReferrals"`
	UnreadNotifications int64 `db:"unread_notifications" json:"unreadNotifications"`
}
