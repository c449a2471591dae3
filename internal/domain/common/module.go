package common

import (
	commonHandler "reward_engine/internal/pkg/common"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/internal/pkg/registry"
	"reward_engine/internal/pkg/uploader"

	"github.com/gin-gonic/gin"
)

// CommonModule 通用功能模块
type CommonModule struct{}

func init() {
	registry.Register(&CommonModule{})
}

func (m *CommonModule) Name() string {
	return "common"
}

func (m *CommonModule) Priority() int {
	return 100 // 最后初始化
}

func (m *CommonModule) Init(ctx *registry.ModuleContext) error {
	setupRoutes(ctx.Router, commonHandler.NewUploadHandler(uploader.GlobalUploader))
	return nil
}

func setupRoutes(r *gin.Engine, h *commonHandler.UploadHandler) {
	// 凭证图片上传，返回的引用写入任务凭证
	r.POST("/upload", middleware.AuthMiddleware(), middleware.RateLimitMiddleware(middleware.UploadLimiter), h.UploadFile)
}
