package notification

import (
	"reward_engine/internal/domain/notification/handler"
	"reward_engine/internal/domain/notification/repository"
	"reward_engine/internal/domain/notification/service"
	"reward_engine/internal/pkg/config"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/internal/pkg/push"
	"reward_engine/internal/pkg/realtime"
	"reward_engine/internal/pkg/registry"
	"reward_engine/internal/pkg/worker"
	"reward_engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NotificationModule 站内通知、推送与看板实时计数
type NotificationModule struct{}

func init() {
	registry.Register(&NotificationModule{})
}

func (m *NotificationModule) Name() string {
	return "notification"
}

func (m *NotificationModule) Priority() int {
	return 20
}

func (m *NotificationModule) Init(ctx *registry.ModuleContext) error {
	repo := repository.NewNotificationRepository(ctx.DB)
	svc := service.NewNotificationService(repo, repository.NewDashboardRepository(ctx.SQLX))

	stream := handler.StreamConfig{
		Hub:        ctx.Hub,
		BackoffMin: config.GlobalConfig.Realtime.BackoffMin,
		BackoffMax: config.GlobalConfig.Realtime.BackoffMax,
	}
	if ctx.Hub != nil {
		ctx.Hub.AddSink(service.NewLedgerSink(repo))
		registerPush(ctx.Hub)
		if ctx.Redis != nil {
			stream.Dial = realtime.RedisDialer(ctx.Redis)
		}
	}

	setupRoutes(ctx.Router, handler.NewNotificationHandler(svc, stream))
	return nil
}

// registerPush 未配置推送时跳过，只保留站内通知
func registerPush(hub *realtime.Hub) {
	cfg := config.GlobalConfig.Push
	sender, err := push.NewAliyunPushService(cfg)
	if err != nil {
		logger.Log.Info("push disabled", zap.Error(err))
		return
	}
	pool := worker.NewWorkerPool(sender, cfg.Workers, cfg.QueueSize)
	pool.Start()
	hub.AddSink(service.NewPushSink(pool))
}

func setupRoutes(r *gin.Engine, h *handler.NotificationHandler) {
	n := r.Group("/notifications")
	n.Use(middleware.AuthMiddleware())
	{
		n.GET("", h.List)
		n.POST("/read-all", h.MarkAllRead)
		n.POST("/:id/read", h.MarkRead)
	}

	auth := r.Group("")
	auth.Use(middleware.AuthMiddleware())
	{
		auth.GET("/dashboard/counts", h.Counts)
		auth.GET("/realtime/stream", h.Stream)
	}
}
