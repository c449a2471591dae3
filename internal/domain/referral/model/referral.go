package model

import (
	"time"

	baseModel "reward_engine/pkg/model"
)

// Referral 推荐关系。reward_paid 为真时 is_verified 必为真，推荐人不能是自己
type Referral struct {
	baseModel.BaseModel
	ReferrerID string     `gorm:"type:uuid;not null;index" json:"referrerId"`
	RefereeID  string     `gorm:"type:uuid;not null;uniqueIndex" json:"refereeId"`
	IsVerified bool       `gorm:"not null;default:false" json:"isVerified"`
	RewardPaid bool       `gorm:"not null;default:false" json:"rewardPaid"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	PaidAt     *time.Time `json:"paidAt,omitempty"`
}
