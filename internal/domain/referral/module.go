package referral

import (
	"reward_engine/internal/domain/referral/handler"
	"reward_engine/internal/domain/referral/repository"
	"reward_engine/internal/domain/referral/service"
	userRepository "reward_engine/internal/domain/user/repository"
	"reward_engine/internal/pkg/config"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/internal/pkg/registry"
	"reward_engine/pkg/security"

	"github.com/gin-gonic/gin"
)

// ReferralModule 推荐模块
type ReferralModule struct{}

func init() {
	registry.Register(&ReferralModule{})
}

func (m *ReferralModule) Name() string {
	return "referral"
}

func (m *ReferralModule) Priority() int {
	return 8
}

func (m *ReferralModule) Init(ctx *registry.ModuleContext) error {
	svc := service.NewReferralService(
		repository.NewReferralRepository(ctx.DB),
		userRepository.NewUserRepository(ctx.DB),
		ctx.Events(),
		config.GlobalConfig.Reward.ReferralBonus,
	)
	setupRoutes(ctx.Router, handler.NewReferralHandler(svc))
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.ReferralHandler) {
	g := r.Group("/referrals")
	g.Use(middleware.AuthMiddleware())
	{
		g.POST("", h.Register)
		g.GET("/me", h.ListMine)
	}

	admin := r.Group("/admin/referrals")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		admin.POST("/:id/verify", middleware.RequirePermission(security.PermissionReferralVerify), h.Verify)
		admin.POST("/:id/pay", middleware.RequirePermission(security.PermissionReferralPay), h.Pay)
	}
}
