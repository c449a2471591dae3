package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"reward_engine/internal/domain/notification/service"
	"reward_engine/internal/pkg/events"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/internal/pkg/realtime"
	"reward_engine/pkg/logger"
	"reward_engine/pkg/response"
	"reward_engine/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StreamConfig SSE 订阅参数
type StreamConfig struct {
	Hub        *realtime.Hub
	Dial       realtime.DialFunc
	BackoffMin time.Duration
	BackoffMax time.Duration
	Keepalive  time.Duration
}

type NotificationHandler struct {
	service service.NotificationService
	stream  StreamConfig
}

func NewNotificationHandler(service service.NotificationService, stream StreamConfig) *NotificationHandler {
	if stream.Keepalive <= 0 {
		stream.Keepalive = 25 * time.Second
	}
	return &NotificationHandler{service: service, stream: stream}
}

func (h *NotificationHandler) List(c *gin.Context) {
	var page utils.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	userID, _ := middleware.GetUserID(c)
	list, total, err := h.service.List(c.Request.Context(), userID, c.Query("unread") == "true", page)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.NewPageResult(list, total, page))
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	if err := h.service.MarkRead(c.Request.Context(), userID, c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	n, err := h.service.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"updated": n})
}

func (h *NotificationHandler) Counts(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	perms, _ := middleware.GetPermissions(c)
	counts, err := h.service.Counts(c.Request.Context(), perms, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, counts)
}

// Stream 订阅实时频道，收到事件或重连成功后推送最新计数
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.stream.Hub == nil || h.stream.Dial == nil {
		response.Error(c, http.StatusServiceUnavailable, response.ErrServerInternal, "realtime disabled")
		return
	}
	userID, _ := middleware.GetUserID(c)
	perms, _ := middleware.GetPermissions(c)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	refresh := make(chan struct{}, 1)
	signal := func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	}

	// 没有可访问门店的管理员不订阅任何频道，只收到初始计数和心跳
	if channels := h.stream.Hub.ChannelsFor(perms, userID); len(channels) > 0 {
		sub := realtime.NewSubscriber(h.stream.Dial, channels, h.stream.BackoffMin, h.stream.BackoffMax)
		sub.OnMessage = func(context.Context, events.Payload) { signal() }
		sub.Resync = func(context.Context) error {
			signal()
			return nil
		}
		go func() { _ = sub.Run(ctx) }()
	}
	signal()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.stream.Keepalive)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-refresh:
			counts, err := h.service.Counts(ctx, perms, userID)
			if err != nil {
				logger.Log.Warn("stream counts failed", zap.String("user_id", userID), zap.Error(err))
				return ctx.Err() == nil
			}
			c.SSEvent("refresh", counts)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})
}
