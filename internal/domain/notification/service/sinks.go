package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"reward_engine/internal/domain/notification/model"
	"reward_engine/internal/domain/notification/repository"
	"reward_engine/internal/pkg/events"
	"reward_engine/internal/pkg/worker"
	baseModel "reward_engine/pkg/model"
)

// ErrPushQueueFull 推送队列已满，本次推送被丢弃
var ErrPushQueueFull = errors.New("push queue full")

// titles 面向用户的事件，其余事件只做广播
var titles = map[events.Topic]string{
	events.TopicParticipationVerified: "任务审核通过",
	events.TopicParticipationRejected: "任务审核未通过",
	events.TopicSettlementIssued:      "返现已生成",
	events.TopicPaybackPaid:           "返现已到账",
	events.TopicPaybackRejected:       "返现被驳回",
	events.TopicReferralVerified:      "推荐已确认",
	events.TopicReferralPaid:          "推荐奖励已发放",
	events.TopicCouponIssued:          "收到优惠券",
}

// Title 不需要通知用户的事件返回 false
func Title(topic events.Topic) (string, bool) {
	t, ok := titles[topic]
	return t, ok
}

// LedgerSink 把事件写入通知表
type LedgerSink struct {
	repo repository.NotificationRepository
}

func NewLedgerSink(repo repository.NotificationRepository) *LedgerSink {
	return &LedgerSink{repo: repo}
}

func (s *LedgerSink) Handle(ctx context.Context, topic events.Topic, payload events.Payload) error {
	title, ok := Title(topic)
	if !ok || payload.UserID == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	n := &model.Notification{
		RecipientID: payload.UserID,
		Type:        string(topic),
		Title:       title,
		Payload:     baseModel.JSON(body),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification %s: %w", topic, err)
	}
	return nil
}

// TaskQueue *worker.WorkerPool 满足该接口
type TaskQueue interface {
	AddTask(task worker.PushTask) bool
}

// PushSink 把事件投递到推送队列，投递本身异步完成
type PushSink struct {
	queue TaskQueue
}

func NewPushSink(queue TaskQueue) *PushSink {
	return &PushSink{queue: queue}
}

func (s *PushSink) Handle(_ context.Context, topic events.Topic, payload events.Payload) error {
	title, ok := Title(topic)
	if !ok || payload.UserID == "" {
		return nil
	}
	ext := map[string]string{"type": string(topic)}
	for k, v := range map[string]string{
		"participationId": payload.ParticipationID,
		"paybackId":       payload.PaybackID,
		"referralId":      payload.ReferralID,
		"couponId":        payload.CouponID,
	} {
		if v != "" {
			ext[k] = v
		}
	}
	task := worker.PushTask{
		AccountID: payload.UserID,
		Title:     title,
		Body:      pushBody(topic, payload),
		Ext:       ext,
	}
	if !s.queue.AddTask(task) {
		return ErrPushQueueFull
	}
	return nil
}

func pushBody(topic events.Topic, payload events.Payload) string {
	switch topic {
	case events.TopicSettlementIssued, events.TopicPaybackPaid, events.TopicReferralPaid:
		return fmt.Sprintf("金额 %d 원", payload.Amount)
	case events.TopicParticipationRejected, events.TopicPaybackRejected:
		return "请在应用内查看原因"
	default:
		return "点击查看详情"
	}
}
