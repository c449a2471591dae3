package model

import (
	"time"

	missionModel "reward_engine/internal/domain/mission/model"
	baseModel "reward_engine/pkg/model"
)

// Status 参与状态，verified/rejected 为终态
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusVerified   Status = "verified"
	StatusRejected   Status = "rejected"
)

func (s Status) IsTerminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// OpenStatuses 非终态，(user, mission) 在这些状态下最多一条
var OpenStatuses = []Status{StatusPending, StatusInProgress, StatusCompleted}

// SubmittableStatuses 可以提交凭证的状态
var SubmittableStatuses = []Status{StatusInProgress, StatusCompleted}

// Participation 用户参与某个任务的记录
type Participation struct {
	baseModel.BaseModel
	UserID              string                   `gorm:"type:uuid;not null;index" json:"userId"`
	MissionDefinitionID string                   `gorm:"type:uuid;not null;index" json:"missionDefinitionId"`
	MissionType         missionModel.MissionType `gorm:"type:varchar(20);not null" json:"missionType"`
	StoreID             string                   `gorm:"type:varchar(64);index" json:"storeId"`
	Status              Status                   `gorm:"type:varchar(20);not null;index" json:"status"`
	Proof               baseModel.JSON           `gorm:"type:jsonb" json:"proof,omitempty"` // 原样保存，便于审计
	RejectReason        string                   `gorm:"type:varchar(255)" json:"rejectReason,omitempty"`
	ReviewedBy          *string                  `gorm:"type:uuid" json:"reviewedBy,omitempty"`
	StartedAt           *time.Time               `json:"startedAt,omitempty"`
	CompletedAt         *time.Time               `json:"completedAt,omitempty"`
	VerifiedAt          *time.Time               `json:"verifiedAt,omitempty"`
	RejectedAt          *time.Time               `json:"rejectedAt,omitempty"`
	SettledAt           *time.Time               `gorm:"index" json:"settledAt,omitempty"` // 结算各步骤全部成功后才写入
}

func (Participation) TableName() string {
	return "mission_participations"
}

// Review 审核信息
type Review struct {
	ReviewerID string
	Reason     string
	At         time.Time
}

// ReviewFilter 审核列表过滤条件
type ReviewFilter struct {
	Status    Status
	StoreIDs  []string
	AllStores bool
}
