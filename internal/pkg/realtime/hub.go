// Package realtime 事件扇出：落库/推送等 sink + Redis 频道广播。
// 订阅方只把消息当作刷新信号，断线重连后重新查询，不补发错过的事件。
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"reward_engine/internal/pkg/events"
	"reward_engine/pkg/logger"
	"reward_engine/pkg/metrics"
	"reward_engine/pkg/security"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Sink 事件的同步处理方，例如写通知表、投递推送
type Sink interface {
	Handle(ctx context.Context, topic events.Topic, payload events.Payload) error
}

// SinkFunc 函数适配
type SinkFunc func(ctx context.Context, topic events.Topic, payload events.Payload) error

func (f SinkFunc) Handle(ctx context.Context, topic events.Topic, payload events.Payload) error {
	return f(ctx, topic, payload)
}

// RedisPublisher *redis.Client 满足该接口
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Hub 实现 events.Publisher
type Hub struct {
	prefix  string
	redis   RedisPublisher
	metrics *metrics.Collector
	now     func() time.Time

	mu    sync.RWMutex
	sinks []Sink
}

func NewHub(rdb RedisPublisher, prefix string) *Hub {
	if prefix == "" {
		prefix = "reward"
	}
	return &Hub{
		prefix:  prefix,
		redis:   rdb,
		metrics: metrics.GetGlobalCollector(),
		now:     time.Now,
	}
}

// AddSink 模块初始化时注册
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

func (h *Hub) Prefix() string { return h.prefix }

func (h *Hub) UserChannel(userID string) string {
	return fmt.Sprintf("%s:user:%s", h.prefix, userID)
}

func (h *Hub) StoreChannel(storeID string) string {
	return fmt.Sprintf("%s:store:%s", h.prefix, storeID)
}

func (h *Hub) GlobalChannel() string {
	return h.prefix + ":global"
}

// Routes 一个事件发往用户、门店和全局频道
func (h *Hub) Routes(payload events.Payload) []string {
	channels := make([]string, 0, 3)
	if payload.UserID != "" {
		channels = append(channels, h.UserChannel(payload.UserID))
	}
	if payload.StoreID != "" {
		channels = append(channels, h.StoreChannel(payload.StoreID))
	}
	return append(channels, h.GlobalChannel())
}

// ChannelsFor 按权限范围决定订阅哪些频道
func (h *Hub) ChannelsFor(perms security.Permissions, userID string) []string {
	stores, all := perms.AccessibleStores()
	switch {
	case all:
		return []string{h.GlobalChannel()}
	case perms.IsAdmin():
		channels := make([]string, 0, len(stores))
		for _, id := range stores {
			channels = append(channels, h.StoreChannel(id))
		}
		return channels
	default:
		return []string{h.UserChannel(userID)}
	}
}

// Publish sink 与广播的失败都只记录并合并返回，调用方不回滚
func (h *Hub) Publish(ctx context.Context, topic events.Topic, payload events.Payload) error {
	payload.Topic = topic
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = h.now()
	}

	h.mu.RLock()
	sinks := append([]Sink(nil), h.sinks...)
	h.mu.RUnlock()

	var errList []error
	for _, s := range sinks {
		if err := s.Handle(ctx, topic, payload); err != nil {
			errList = append(errList, err)
		}
	}

	if h.redis != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			errList = append(errList, err)
		} else {
			for _, ch := range h.Routes(payload) {
				if err := h.redis.Publish(ctx, ch, body).Err(); err != nil {
					errList = append(errList, fmt.Errorf("publish %s: %w", ch, err))
				}
			}
		}
	}

	err := errors.Join(errList...)
	h.metrics.RecordEvent(string(topic), err)
	if err != nil {
		logger.Log.Warn("event fan-out incomplete", zap.String("topic", string(topic)), zap.Error(err))
	}
	return err
}
