package coupon

import (
	"reward_engine/internal/domain/coupon/handler"
	"reward_engine/internal/domain/coupon/repository"
	"reward_engine/internal/domain/coupon/service"
	"reward_engine/internal/domain/user"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/internal/pkg/registry"
	"reward_engine/pkg/security"

	"github.com/gin-gonic/gin"
)

// CouponModule 优惠券模块
type CouponModule struct{}

func init() {
	registry.Register(&CouponModule{})
}

func (m *CouponModule) Name() string {
	return "coupon"
}

func (m *CouponModule) Priority() int {
	return 5
}

func (m *CouponModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	cHandler := handler.NewCouponHandler(BuildService(ctx))

	// 2. 路由注册
	setupRoutes(ctx.Router, cHandler)

	return nil
}

// BuildService 结算模块发放评价券时复用
func BuildService(ctx *registry.ModuleContext) service.CouponService {
	return service.NewCouponService(
		repository.NewCouponRepository(ctx.DB),
		user.BuildLookup(ctx),
		ctx.Locker,
		ctx.Events(),
	)
}

func setupRoutes(r *gin.Engine, h *handler.CouponHandler) {
	g := r.Group("/coupons")
	g.Use(middleware.AuthMiddleware())
	{
		g.GET("/me", h.ListMine)
		g.POST("/:id/claim", h.ClaimCoupon)
		g.POST("/:id/use", h.UseCoupon)
	}

	admin := r.Group("/admin/coupons")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		admin.POST("", middleware.RequirePermission(security.PermissionMissionEdit), h.CreateCoupon)
		admin.POST("/send", middleware.RequirePermission(security.PermissionCouponIssue), h.SendCoupon)
	}
}
