package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewID 按时间有序的 UUIDv7 主键
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// BaseModel 所有表共用的主键、时间戳和软删除标记。
// ID 在 BeforeCreate 中生成，表上的 gen_random_uuid() 默认值只用于手写 SQL
type BaseModel struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deletedAt,omitempty"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = NewID()
	}
	return nil
}
