package model

import (
	baseModel "reward_engine/pkg/model"
)

const (
	RoleCustomer      = "customer"
	RoleStoreManager  = "store_manager"
	RoleBranchManager = "branch_manager"
	RoleSuperAdmin    = "super_admin"
)

// User 用户模型。余额字段只由结算流程修改
type User struct {
	baseModel.BaseModel
	Phone           string  `gorm:"type:varchar(20);uniqueIndex;not null" json:"phone"`
	PhoneVerified   bool    `gorm:"not null;default:false" json:"phoneVerified"`
	Name            string  `gorm:"type:varchar(50)" json:"name"`
	Role            string  `gorm:"type:varchar(20);not null;default:customer" json:"role"`
	StoreID         string  `gorm:"type:varchar(64);index" json:"storeId"`
	SettledEarnings int64   `gorm:"not null;default:0" json:"settledEarnings"` // 已到账返现 (KRW)
	XP              int64   `gorm:"column:xp;not null;default:0" json:"xp"`
	ReferralCode    string  `gorm:"type:varchar(16);uniqueIndex;not null" json:"referralCode"`
	ReferredByID    *string `gorm:"type:uuid" json:"referredById,omitempty"`
}

// StoreAssignment 管理员可管理的门店，(user_id, store_id) 唯一
type StoreAssignment struct {
	baseModel.BaseModel
	UserID  string `gorm:"type:uuid;not null;uniqueIndex:uk_store_assignment" json:"userId"`
	StoreID string `gorm:"type:varchar(64);not null;uniqueIndex:uk_store_assignment" json:"storeId"`
}
