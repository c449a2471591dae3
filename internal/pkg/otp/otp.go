package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"reward_engine/pkg/logger"
	"reward_engine/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrTooFrequent = errors.New("please wait before sending again")

type OTPService interface {
	Send(ctx context.Context, phone string) (string, error)
	Verify(ctx context.Context, phone, code string) bool
}

type otpService struct {
	rdb       *redis.Client
	fixedCode string // 测试环境固定验证码
	ttl       time.Duration
}

func NewOTPService(rdb *redis.Client, fixedCode string) OTPService {
	return &otpService{rdb: rdb, fixedCode: fixedCode, ttl: 5 * time.Minute}
}

func otpKey(phone string) string {
	return fmt.Sprintf("otp:%s", phone)
}

// Send 生成验证码并存入 Redis
// 短信通道由运营侧对接，这里只记录日志
func (s *otpService) Send(ctx context.Context, phone string) (string, error) {
	key := otpKey(phone)
	// 1分钟内只能发一次
	ttl, err := s.rdb.TTL(ctx, key).Result()
	if err == nil && ttl > s.ttl-time.Minute {
		return "", ErrTooFrequent
	}

	code := s.fixedCode
	if code == "" {
		n, err := rand.Int(rand.Reader, big.NewInt(1000000))
		if err != nil {
			return "", err
		}
		code = fmt.Sprintf("%06d", n.Int64())
	}

	if err := s.rdb.Set(ctx, key, code, s.ttl).Err(); err != nil {
		return "", err
	}

	logger.Log.Info("otp issued", zap.String("phone", utils.MaskPhone(phone)))
	return code, nil
}

// Verify 验证验证码，GETDEL 保证同一验证码只能使用一次
func (s *otpService) Verify(ctx context.Context, phone, code string) bool {
	val, err := s.rdb.GetDel(ctx, otpKey(phone)).Result()
	if err != nil {
		return false
	}
	return val == code
}
