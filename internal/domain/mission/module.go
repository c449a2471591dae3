package mission

import (
	"reward_engine/internal/domain/mission/handler"
	"reward_engine/internal/domain/mission/repository"
	"reward_engine/internal/domain/mission/service"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/internal/pkg/registry"
	"reward_engine/pkg/security"

	"github.com/gin-gonic/gin"
)

// MissionModule 任务目录模块
type MissionModule struct{}

func init() {
	registry.Register(&MissionModule{})
}

func (m *MissionModule) Name() string {
	return "mission"
}

func (m *MissionModule) Priority() int {
	return 2
}

func (m *MissionModule) Init(ctx *registry.ModuleContext) error {
	h := handler.NewMissionHandler(BuildCatalog(ctx))
	setupRoutes(ctx.Router, h)
	return nil
}

// BuildCatalog 其他模块复用同一套目录依赖
func BuildCatalog(ctx *registry.ModuleContext) service.CatalogService {
	return service.NewCatalogService(repository.NewMissionRepository(ctx.DB), ctx.Cache)
}

func setupRoutes(r *gin.Engine, h *handler.MissionHandler) {
	g := r.Group("/missions")
	g.Use(middleware.AuthMiddleware())
	{
		g.GET("", h.ListActive)
		g.GET("/:id", h.GetMission)
	}

	admin := r.Group("/admin/missions")
	admin.Use(middleware.AuthMiddleware(), middleware.RequirePermission(security.PermissionMissionEdit))
	{
		admin.POST("", h.CreateMission)
	}
}
