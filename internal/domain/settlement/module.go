package settlement

import (
	couponDomain "reward_engine/internal/domain/coupon"
	"reward_engine/internal/domain/mission"
	partRepository "reward_engine/internal/domain/participation/repository"
	refRepository "reward_engine/internal/domain/referral/repository"
	refService "reward_engine/internal/domain/referral/service"
	"reward_engine/internal/domain/settlement/handler"
	"reward_engine/internal/domain/settlement/repository"
	"reward_engine/internal/domain/settlement/service"
	userRepository "reward_engine/internal/domain/user/repository"
	"reward_engine/internal/pkg/config"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/internal/pkg/registry"
	"reward_engine/pkg/security"

	"github.com/gin-gonic/gin"
)

// SettlementModule 返现结算模块
type SettlementModule struct{}

func init() {
	registry.Register(&SettlementModule{})
}

func (m *SettlementModule) Name() string {
	return "settlement"
}

func (m *SettlementModule) Priority() int {
	return 10
}

func (m *SettlementModule) Init(ctx *registry.ModuleContext) error {
	h := handler.NewSettlementHandler(BuildService(ctx))
	setupRoutes(ctx.Router, h)
	return nil
}

// BuildService 参与模块和定时任务共用同一套结算依赖
func BuildService(ctx *registry.ModuleContext) service.SettlementService {
	cfg := config.GlobalConfig.Reward
	referrals := refService.NewReferralService(
		refRepository.NewReferralRepository(ctx.DB),
		userRepository.NewUserRepository(ctx.DB),
		ctx.Events(),
		cfg.ReferralBonus,
	)
	return service.NewSettlementService(
		repository.NewPaybackRepository(ctx.DB),
		mission.BuildCatalog(ctx),
		couponDomain.BuildService(ctx),
		referrals,
		partRepository.NewParticipationRepository(ctx.DB),
		ctx.Events(),
		service.Options{
			ReferralThreshold: cfg.ReferralThreshold,
			ReviewCouponID:    cfg.ReviewCouponID,
		},
	)
}

func setupRoutes(r *gin.Engine, h *handler.SettlementHandler) {
	me := r.Group("/paybacks")
	me.Use(middleware.AuthMiddleware())
	{
		me.GET("/me", h.ListMine)
	}

	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		admin.GET("/paybacks", middleware.RequirePermission(security.PermissionPaybackRead), h.ListPaybacks)
		admin.POST("/paybacks/:id/approve", middleware.RequirePermission(security.PermissionPaybackApprove), h.ApprovePayback)
		admin.POST("/paybacks/:id/reject", middleware.RequirePermission(security.PermissionPaybackApprove), h.RejectPayback)
		admin.POST("/settlements/reconcile", middleware.RequirePermission(security.PermissionRoleEdit), h.Reconcile)
	}
}
