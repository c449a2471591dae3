package events

import (
	"context"
	"time"
)

// Topic 事件主题
type Topic string

const (
	TopicParticipationSubmitted Topic = "participation.submitted"
	TopicParticipationVerified  Topic = "participation.verified"
	TopicParticipationRejected  Topic = "participation.rejected"
	TopicSettlementIssued       Topic = "settlement.issued"
	TopicPaybackPaid            Topic = "payback.paid"
	TopicPaybackRejected        Topic = "payback.rejected"
	TopicReferralRegistered     Topic = "referral.registered"
	TopicReferralVerified       Topic = "referral.verified"
	TopicReferralPaid           Topic = "referral.paid"
	TopicCouponIssued           Topic = "coupon.issued"
)

// Payload 事件载荷。订阅方只把事件当作刷新信号，收到后重新查询权威状态
type Payload struct {
	Topic           Topic     `json:"type"`
	UserID          string    `json:"userId"`
	StoreID         string    `json:"storeId,omitempty"`
	ParticipationID string    `json:"participationId,omitempty"`
	PaybackID       string    `json:"paybackId,omitempty"`
	ReferralID      string    `json:"referralId,omitempty"`
	CouponID        string    `json:"couponId,omitempty"`
	Amount          int64     `json:"amount,omitempty"`
	Status          string    `json:"status,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}

// Publisher 统一的事件发布接口，路由与订阅由实现方负责
type Publisher interface {
	Publish(ctx context.Context, topic Topic, payload Payload) error
}

// PublisherFunc 函数适配
type PublisherFunc func(ctx context.Context, topic Topic, payload Payload) error

func (f PublisherFunc) Publish(ctx context.Context, topic Topic, payload Payload) error {
	return f(ctx, topic, payload)
}

// Nop 丢弃所有事件
var Nop Publisher = PublisherFunc(func(context.Context, Topic, Payload) error { return nil })
