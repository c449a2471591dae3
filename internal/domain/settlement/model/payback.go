package model

import (
	"time"

	baseModel "reward_engine/pkg/model"
)

// PaybackStatus 返现状态，pending→paid 是唯一增加用户已到账金额的路径
type PaybackStatus string

const (
	PaybackPending  PaybackStatus = "pending"
	PaybackPaid     PaybackStatus = "paid"
	PaybackRejected PaybackStatus = "rejected"
)

// PaybackSource 返现来源
type PaybackSource string

const (
	SourceMission  PaybackSource = "mission"
	SourceReferral PaybackSource = "referral"
)

// Payback 返现记录
type Payback struct {
	baseModel.BaseModel
	UserID          string        `gorm:"type:uuid;not null;index" json:"userId"`
	StoreID         string        `gorm:"type:varchar(64);index" json:"storeId"`
	ParticipationID *string       `gorm:"type:uuid" json:"participationId,omitempty"`
	ReferralID      *string       `gorm:"type:uuid" json:"referralId,omitempty"`
	Source          PaybackSource `gorm:"type:varchar(20);not null" json:"source"`
	Amount          int64         `gorm:"not null" json:"amount"`
	Status          PaybackStatus `gorm:"type:varchar(20);not null;default:pending;index" json:"status"`
	RejectReason    string        `gorm:"type:varchar(255)" json:"rejectReason,omitempty"`
	ReviewedBy      *string       `gorm:"type:uuid" json:"reviewedBy,omitempty"`
	PaidAt          *time.Time    `json:"paidAt,omitempty"`
}

// ListFilter 管理端列表条件
type ListFilter struct {
	Status    PaybackStatus
	StoreIDs  []string
	AllStores bool
}
