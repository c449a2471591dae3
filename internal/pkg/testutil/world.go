// Package testutil 内存实现的仓库，供服务层测试使用。
// 所有仓库共享一个 World 和一把锁，条件更新的语义与 SQL 保持一致。
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	couponModel "reward_engine/internal/domain/coupon/model"
	missionModel "reward_engine/internal/domain/mission/model"
	partModel "reward_engine/internal/domain/participation/model"
	refModel "reward_engine/internal/domain/referral/model"
	settleModel "reward_engine/internal/domain/settlement/model"
	userModel "reward_engine/internal/domain/user/model"
	"reward_engine/internal/pkg/events"
	baseModel "reward_engine/pkg/model"
)

// World 所有表的内存快照
type World struct {
	mu sync.Mutex

	Users          map[string]*userModel.User
	Stores         map[string][]string
	Missions       map[string]*missionModel.MissionDefinition
	Participations map[string]*partModel.Participation
	Paybacks       map[string]*settleModel.Payback
	Coupons        map[string]*couponModel.Coupon
	UserCoupons    map[string]*couponModel.UserCoupon
	Referrals      map[string]*refModel.Referral

	seq int64
}

func NewWorld() *World {
	return &World{
		Users:          map[string]*userModel.User{},
		Stores:         map[string][]string{},
		Missions:       map[string]*missionModel.MissionDefinition{},
		Participations: map[string]*partModel.Participation{},
		Paybacks:       map[string]*settleModel.Payback{},
		Coupons:        map[string]*couponModel.Coupon{},
		UserCoupons:    map[string]*couponModel.UserCoupon{},
		Referrals:      map[string]*refModel.Referral{},
	}
}

// stamp 补齐 ID 和创建时间，创建时间单调递增便于排序
func (w *World) stamp(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = baseModel.NewID()
	}
	w.seq++
	*createdAt = time.Unix(1_700_000_000+w.seq, 0)
}

// AddUser 直接写入用户
func (w *World) AddUser(u *userModel.User) *userModel.User {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamp(&u.ID, &u.CreatedAt)
	if u.ReferralCode == "" {
		u.ReferralCode = u.ID[:8]
	}
	w.Users[u.ID] = u
	return u
}

// AddMission 直接写入任务定义
func (w *World) AddMission(d *missionModel.MissionDefinition) *missionModel.MissionDefinition {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamp(&d.ID, &d.CreatedAt)
	w.Missions[d.ID] = d
	return d
}

// AddCoupon 直接写入优惠券模板
func (w *World) AddCoupon(c *couponModel.Coupon) *couponModel.Coupon {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamp(&c.ID, &c.CreatedAt)
	w.Coupons[c.ID] = c
	return c
}

// User 读取用户快照
func (w *World) User(id string) userModel.User {
	w.mu.Lock()
	defer w.mu.Unlock()
	if u, ok := w.Users[id]; ok {
		return *u
	}
	return userModel.User{}
}

// Participation 读取参与快照
func (w *World) Participation(id string) partModel.Participation {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.Participations[id]; ok {
		return *p
	}
	return partModel.Participation{}
}

// PaybacksFor 某个参与的全部返现
func (w *World) PaybacksFor(participationID string) []settleModel.Payback {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []settleModel.Payback
	for _, p := range w.Paybacks {
		if p.ParticipationID != nil && *p.ParticipationID == participationID {
			out = append(out, *p)
		}
	}
	return out
}

// UserCouponsOf 某个用户持有的券
func (w *World) UserCouponsOf(userID string) []couponModel.UserCoupon {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []couponModel.UserCoupon
	for _, uc := range w.UserCoupons {
		if uc.UserID == userID {
			out = append(out, *uc)
		}
	}
	sortByCreated(out, func(uc couponModel.UserCoupon) time.Time { return uc.CreatedAt })
	return out
}

func sortByCreated[T any](list []T, at func(T) time.Time) {
	sort.Slice(list, func(i, j int) bool { return at(list[i]).Before(at(list[j])) })
}

func inStores(storeID string, stores []string, all bool) bool {
	if all {
		return true
	}
	for _, s := range stores {
		if s == storeID {
			return true
		}
	}
	return false
}

func page[T any](list []T, offset, limit int) []T {
	if offset >= len(list) {
		return []T{}
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end]
}

// Recorder 记录发布的事件
type Recorder struct {
	mu     sync.Mutex
	Events []events.Payload
	Err    error
}

func (r *Recorder) Publish(_ context.Context, topic events.Topic, payload events.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payload.Topic = topic
	r.Events = append(r.Events, payload)
	return r.Err
}

// Topics 按发布顺序返回主题
func (r *Recorder) Topics() []events.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Topic, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Topic)
	}
	return out
}

// Count 某个主题出现的次数
func (r *Recorder) Count(topic events.Topic) int {
	n := 0
	for _, t := range r.Topics() {
		if t == topic {
			n++
		}
	}
	return n
}
