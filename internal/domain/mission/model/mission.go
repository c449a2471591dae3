package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	baseModel "reward_engine/pkg/model"
)

// MissionType 任务类型
type MissionType string

const (
	TypeChallenge  MissionType = "challenge"
	TypeSNS        MissionType = "sns"
	TypeReview     MissionType = "review"
	TypeReferral   MissionType = "referral"
	TypeAttendance MissionType = "attendance"
)

func (t MissionType) Valid() bool {
	switch t {
	case TypeChallenge, TypeSNS, TypeReview, TypeReferral, TypeAttendance:
		return true
	}
	return false
}

// SchemaDescriptor 凭证规则参数，零值表示使用默认值
type SchemaDescriptor struct {
	MaxStudyHours   float64  `json:"maxStudyHours,omitempty"`
	MinPlatformURLs int      `json:"minPlatformUrls,omitempty"`
	MaxPlatformURLs int      `json:"maxPlatformUrls,omitempty"`
	MaxReferees     int      `json:"maxReferees,omitempty"`
	Platforms       []string `json:"platforms,omitempty"`
}

func (d SchemaDescriptor) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *SchemaDescriptor) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*d = SchemaDescriptor{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported proof schema source type %T", src)
	}
	return json.Unmarshal(b, d)
}

// MissionDefinition 任务定义，只读参考数据
type MissionDefinition struct {
	baseModel.BaseModel
	Type         MissionType      `gorm:"type:varchar(20);not null" json:"type"`
	Title        string           `gorm:"type:varchar(100);not null" json:"title"`
	Description  string           `gorm:"type:text" json:"description"`
	RewardAmount int64            `gorm:"not null;default:0" json:"rewardAmount"` // 返现金额 (KRW)
	RewardXP     int64            `gorm:"column:reward_xp;not null;default:0" json:"rewardXp"`
	ProofSchema  SchemaDescriptor `gorm:"type:jsonb" json:"proofSchema"`
	Repeatable   bool             `gorm:"not null;default:false" json:"repeatable"`
	Active       bool             `gorm:"not null;default:true" json:"active"`
}
