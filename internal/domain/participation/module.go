package participation

import (
	"reward_engine/internal/domain/mission"
	"reward_engine/internal/domain/participation/handler"
	"reward_engine/internal/domain/participation/repository"
	"reward_engine/internal/domain/participation/service"
	"reward_engine/internal/domain/settlement"
	"reward_engine/internal/domain/user"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/internal/pkg/registry"
	"reward_engine/pkg/security"

	"github.com/gin-gonic/gin"
)

// ParticipationModule 任务参与与审核
type ParticipationModule struct{}

func init() {
	registry.Register(&ParticipationModule{})
}

func (m *ParticipationModule) Name() string {
	return "participation"
}

func (m *ParticipationModule) Priority() int {
	return 15
}

func (m *ParticipationModule) Init(ctx *registry.ModuleContext) error {
	svc := service.NewParticipationService(
		repository.NewParticipationRepository(ctx.DB),
		mission.BuildCatalog(ctx),
		user.BuildLookup(ctx),
		settlement.BuildService(ctx),
		ctx.Events(),
	)
	setupRoutes(ctx.Router, handler.NewParticipationHandler(svc))
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.ParticipationHandler) {
	missions := r.Group("/missions")
	missions.Use(middleware.AuthMiddleware())
	{
		missions.POST("/:id/start", h.Start)
		missions.POST("/:id/proof", middleware.RateLimitMiddleware(middleware.ProofLimiter), h.SubmitProof)
	}

	me := r.Group("/participations")
	me.Use(middleware.AuthMiddleware())
	{
		me.GET("/me", h.GetMine)
	}

	admin := r.Group("/admin/participations")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		admin.GET("", middleware.RequirePermission(security.PermissionSubmissionRead), h.ListForReview)
		admin.POST("/:id/approve", middleware.RequirePermission(security.PermissionSubmissionApprove), h.Approve)
		admin.POST("/:id/reject", middleware.RequirePermission(security.PermissionSubmissionReject), h.Reject)
	}
}
