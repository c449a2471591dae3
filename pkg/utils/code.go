package utils

import (
	"strings"

	"github.com/google/uuid"
)

const referralCodeLen = 8

// NewReferralCode 生成推荐码：取随机 UUID 的前 8 位十六进制，大写
// 唯一性由 users.referral_code 唯一索引兜底，冲突时调用方重试
func NewReferralCode() string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(s[:referralCodeLen])
}

// MaskPhone 日志中隐藏手机号中间位
func MaskPhone(phone string) string {
	if len(phone) < 7 {
		return "****"
	}
	return phone[:3] + "****" + phone[len(phone)-4:]
}
