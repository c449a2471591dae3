package model

import (
	"time"

	baseModel "reward_engine/pkg/model"
)

// UnlimitedStock 不限库存
const UnlimitedStock = -1

// Coupon 优惠券模板
type Coupon struct {
	baseModel.BaseModel
	Name       string    `gorm:"type:varchar(100);not null" json:"name"`
	Total      int       `gorm:"not null" json:"total"`
	Stock      int       `gorm:"not null" json:"stock"` // 剩余库存，-1 表示不限
	Amount     int64     `gorm:"not null" json:"amount"`
	PerUserCap int       `gorm:"not null;default:1" json:"perUserCap"` // 每人最多持有张数，0 表示不限
	ValidDays  int       `gorm:"not null;default:30" json:"validDays"`
	StartTime  time.Time `gorm:"not null" json:"startTime"`
	EndTime    time.Time `gorm:"not null" json:"endTime"`
}

func (c *Coupon) Limited() bool {
	return c.Stock != UnlimitedStock
}

// UserCouponStatus 状态只能 unused→used 或 unused→expired
type UserCouponStatus string

const (
	StatusUnused  UserCouponStatus = "unused"
	StatusUsed    UserCouponStatus = "used"
	StatusExpired UserCouponStatus = "expired"
)

// UserCoupon 用户持有的优惠券
type UserCoupon struct {
	baseModel.BaseModel
	UserID     string           `gorm:"type:uuid;index;not null" json:"userId"`
	CouponID   string           `gorm:"type:uuid;index;not null" json:"couponId"`
	Status     UserCouponStatus `gorm:"type:varchar(10);not null;default:unused" json:"status"`
	Source     string           `gorm:"type:varchar(64)" json:"source"` // 例如 mission:<participationId> / admin:<actorId>
	ObtainedAt time.Time        `gorm:"not null" json:"obtainedAt"`
	ExpiresAt  *time.Time       `json:"expiresAt"`
	UsedAt     *time.Time       `json:"usedAt"`
}

// IssueResult 发券结果；超过上限或无库存不是错误，Issued=false 并给出原因
type IssueResult struct {
	Issued     bool        `json:"issued"`
	Reason     string      `json:"reason,omitempty"`
	UserCoupon *UserCoupon `json:"userCoupon,omitempty"`
}

const (
	ReasonCapReached    = "cap_reached"
	ReasonOutOfStock    = "out_of_stock"
	ReasonNotInWindow   = "not_in_window"
	ReasonAlreadyIssued = "already_issued"
)
