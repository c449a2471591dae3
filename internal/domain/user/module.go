package user

import (
	refRepository "reward_engine/internal/domain/referral/repository"
	refService "reward_engine/internal/domain/referral/service"
	"reward_engine/internal/domain/user/handler"
	"reward_engine/internal/domain/user/repository"
	"reward_engine/internal/domain/user/service"
	"reward_engine/internal/pkg/config"
	"reward_engine/internal/pkg/otp"
	"reward_engine/internal/pkg/registry"
)

// UserModule 用户模块
type UserModule struct{}

func init() {
	// 自动注册模块
	registry.Register(&UserModule{})
}

func (m *UserModule) Name() string {
	return "user"
}

func (m *UserModule) Priority() int {
	// 用户模块优先级最高，因为其他模块可能依赖它
	return 1
}

func (m *UserModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	userRepo := repository.NewUserRepository(ctx.DB)
	otpService := otp.NewOTPService(ctx.Redis, config.GlobalConfig.App.TestOTPCode)
	referrals := refService.NewReferralService(
		refRepository.NewReferralRepository(ctx.DB),
		userRepo,
		ctx.Events(),
		config.GlobalConfig.Reward.ReferralBonus,
	)
	userService := service.NewCachedUserService(service.NewUserService(userRepo, otpService, referrals), ctx.Cache)
	userHandler := handler.NewUserHandler(userService)

	// 2. 路由注册
	setupRoutes(ctx.Router, userHandler)

	return nil
}

// BuildLookup 其他模块按用户 ID 查门店归属时共用缓存
func BuildLookup(ctx *registry.ModuleContext) *service.CachedUserLookup {
	return service.NewCachedUserLookup(repository.NewUserRepository(ctx.DB), ctx.Cache)
}
