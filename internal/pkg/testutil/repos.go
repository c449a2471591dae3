package testutil

import (
	"context"
	"sort"
	"strings"
	"time"

	couponModel "reward_engine/internal/domain/coupon/model"
	couponRepository "reward_engine/internal/domain/coupon/repository"
	missionModel "reward_engine/internal/domain/mission/model"
	missionRepository "reward_engine/internal/domain/mission/repository"
	partModel "reward_engine/internal/domain/participation/model"
	partRepository "reward_engine/internal/domain/participation/repository"
	refModel "reward_engine/internal/domain/referral/model"
	refRepository "reward_engine/internal/domain/referral/repository"
	settleModel "reward_engine/internal/domain/settlement/model"
	settleRepository "reward_engine/internal/domain/settlement/repository"
	userModel "reward_engine/internal/domain/user/model"
	userRepository "reward_engine/internal/domain/user/repository"
	"reward_engine/pkg/errs"
	baseModel "reward_engine/pkg/model"
)

// ---- users ----

type UserRepo struct{ W *World }

var _ userRepository.UserRepository = UserRepo{}

func (r UserRepo) Create(_ context.Context, u *userModel.User) error {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	for _, existing := range r.W.Users {
		if existing.Phone == u.Phone || existing.ReferralCode == u.ReferralCode {
			return errs.ErrAlreadyExists
		}
	}
	r.W.stamp(&u.ID, &u.CreatedAt)
	cp := *u
	r.W.Users[u.ID] = &cp
	return nil
}

func (r UserRepo) find(match func(*userModel.User) bool) (*userModel.User, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	for _, u := range r.W.Users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r UserRepo) GetByID(_ context.Context, id string) (*userModel.User, error) {
	return r.find(func(u *userModel.User) bool { return u.ID == id })
}

func (r UserRepo) GetByPhone(_ context.Context, phone string) (*userModel.User, error) {
	return r.find(func(u *userModel.User) bool { return u.Phone == phone })
}

func (r UserRepo) GetByReferralCode(_ context.Context, code string) (*userModel.User, error) {
	return r.find(func(u *userModel.User) bool { return u.ReferralCode == code })
}

func (r UserRepo) GetList(_ context.Context, storeIDs []string, all bool, offset, limit int) ([]userModel.User, int64, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	var list []userModel.User
	for _, u := range r.W.Users {
		if inStores(u.StoreID, storeIDs, all) {
			list = append(list, *u)
		}
	}
	sortByCreated(list, func(u userModel.User) time.Time { return u.CreatedAt })
	return page(list, offset, limit), int64(len(list)), nil
}

func (r UserRepo) Update(_ context.Context, u *userModel.User) error {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	existing, ok := r.W.Users[u.ID]
	if !ok {
		return errs.ErrNotFound
	}
	existing.Name = u.Name
	existing.StoreID = u.StoreID
	existing.PhoneVerified = u.PhoneVerified
	return nil
}

func (r UserRepo) SetReferredBy(_ context.Context, userID, referrerID string) (bool, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	u, ok := r.W.Users[userID]
	if !ok || u.ReferredByID != nil {
		return false, nil
	}
	u.ReferredByID = &referrerID
	return true, nil
}

func (r UserRepo) ListStoreIDs(_ context.Context, userID string) ([]string, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	ids := append([]string{}, r.W.Stores[userID]...)
	sort.Strings(ids)
	return ids, nil
}

func (r UserRepo) AssignStore(_ context.Context, userID, storeID string) error {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	for _, s := range r.W.Stores[userID] {
		if s == storeID {
			return nil
		}
	}
	r.W.Stores[userID] = append(r.W.Stores[userID], storeID)
	return nil
}

func (r UserRepo) Delete(_ context.Context, id string) error {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	delete(r.W.Users, id)
	return nil
}

// ---- missions ----

type MissionRepo struct{ W *World }

var _ missionRepository.MissionRepository = MissionRepo{}

func (r MissionRepo) Create(_ context.Context, d *missionModel.MissionDefinition) error {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	r.W.stamp(&d.ID, &d.CreatedAt)
	cp := *d
	r.W.Missions[d.ID] = &cp
	return nil
}

func (r MissionRepo) GetByID(_ context.Context, id string) (*missionModel.MissionDefinition, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	d, ok := r.W.Missions[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r MissionRepo) ListActive(_ context.Context) ([]missionModel.MissionDefinition, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	var list []missionModel.MissionDefinition
	for _, d := range r.W.Missions {
		if d.Active {
			list = append(list, *d)
		}
	}
	sortByCreated(list, func(d missionModel.MissionDefinition) time.Time { return d.CreatedAt })
	return list, nil
}

// ---- participations ----

type ParticipationRepo struct{ W *World }

var _ partRepository.ParticipationRepository = ParticipationRepo{}

func isOpen(s partModel.Status) bool { return !s.IsTerminal() }

func (r ParticipationRepo) CreateIfAbsent(_ context.Context, p *partModel.Participation) (bool, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	// 模拟非终态部分唯一索引
	for _, existing := range r.W.Participations {
		if existing.UserID == p.UserID && existing.MissionDefinitionID == p.MissionDefinitionID && isOpen(existing.Status) {
			return false, nil
		}
	}
	r.W.stamp(&p.ID, &p.CreatedAt)
	cp := *p
	r.W.Participations[p.ID] = &cp
	return true, nil
}

func (r ParticipationRepo) GetByID(_ context.Context, id string) (*partModel.Participation, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	p, ok := r.W.Participations[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r ParticipationRepo) matching(userID, missionDefID string, match func(*partModel.Participation) bool) []*partModel.Participation {
	var out []*partModel.Participation
	for _, p := range r.W.Participations {
		if p.UserID == userID && p.MissionDefinitionID == missionDefID && match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r ParticipationRepo) FindOpen(_ context.Context, userID, missionDefID string) (*partModel.Participation, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	found := r.matching(userID, missionDefID, func(p *partModel.Participation) bool { return isOpen(p.Status) })
	if len(found) == 0 {
		return nil, errs.ErrNotFound
	}
	cp := *found[0]
	return &cp, nil
}

func (r ParticipationRepo) FindLatest(_ context.Context, userID, missionDefID string) (*partModel.Participation, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	found := r.matching(userID, missionDefID, func(*partModel.Participation) bool { return true })
	if len(found) == 0 {
		return nil, errs.ErrNotFound
	}
	cp := *found[0]
	return &cp, nil
}

func (r ParticipationRepo) MarkStarted(_ context.Context, id string, at time.Time) (bool, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	p, ok := r.W.Participations[id]
	if !ok || p.Status != partModel.StatusPending {
		return false, nil
	}
	p.Status = partModel.StatusInProgress
	p.StartedAt = &at
	return true, nil
}

func (r ParticipationRepo) SaveProof(_ context.Context, userID, missionDefID string, proof baseModel.JSON, at time.Time) (bool, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	found := r.matching(userID, missionDefID, func(p *partModel.Participation) bool {
		return p.Status == partModel.StatusInProgress || p.Status == partModel.StatusCompleted
	})
	if len(found) == 0 {
		return false, nil
	}
	p := found[0]
	p.Status = partModel.StatusCompleted
	p.Proof = append(baseModel.JSON{}, proof...)
	p.CompletedAt = &at
	return true, nil
}

func (r ParticipationRepo) Transition(_ context.Context, id string, from, to partModel.Status, review partModel.Review) (bool, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	p, ok := r.W.Participations[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	if review.ReviewerID != "" {
		reviewer := review.ReviewerID
		p.ReviewedBy = &reviewer
	}
	at := review.At
	switch to {
	case partModel.StatusVerified:
		p.VerifiedAt = &at
	case partModel.StatusRejected:
		p.RejectedAt = &at
		p.RejectReason = review.Reason
	}
	return true, nil
}

func (r ParticipationRepo) ListByUser(_ context.Context, userID string) ([]partModel.Participation, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	var list []partModel.Participation
	for _, p := range r.W.Participations {
		if p.UserID == userID {
			list = append(list, *p)
		}
	}
	sortByCreated(list, func(p partModel.Participation) time.Time { return p.CreatedAt })
	return list, nil
}

func (r ParticipationRepo) ListForReview(_ context.Context, f partModel.ReviewFilter, offset, limit int) ([]partModel.Participation, int64, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	var list []partModel.Participation
	for _, p := range r.W.Participations {
		if (f.Status == "" || p.Status == f.Status) && inStores(p.StoreID, f.StoreIDs, f.AllStores) {
			list = append(list, *p)
		}
	}
	sortByCreated(list, func(p partModel.Participation) time.Time { return p.CreatedAt })
	return page(list, offset, limit), int64(len(list)), nil
}

func (r ParticipationRepo) ListVerifiedUnsettled(_ context.Context, limit int) ([]partModel.Participation, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	var list []partModel.Participation
	for _, p := range r.W.Participations {
		if p.Status == partModel.StatusVerified && p.SettledAt == nil {
			list = append(list, *p)
		}
	}
	sortByCreated(list, func(p partModel.Participation) time.Time { return p.CreatedAt })
	return page(list, 0, limit), nil
}

func (r ParticipationRepo) MarkSettled(_ context.Context, id string, at time.Time) (bool, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	p, ok := r.W.Participations[id]
	if !ok || p.Status != partModel.StatusVerified || p.SettledAt != nil {
		return false, nil
	}
	p.SettledAt = &at
	return true, nil
}

// ---- paybacks ----

type PaybackRepo struct{ W *World }

var _ settleRepository.PaybackRepository = PaybackRepo{}

func (r PaybackRepo) FindByParticipation(_ context.Context, participationID string) (*settleModel.Payback, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	for _, p := range r.W.Paybacks {
		if p.ParticipationID != nil && *p.ParticipationID == participationID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r PaybackRepo) CreateIfAbsent(_ context.Context, p *settleModel.Payback, xp int64) (bool, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	if !r.W.insertPayback(p) {
		return false, nil
	}
	if u, ok := r.W.Users[p.UserID]; ok {
		u.XP += xp
	}
	return true, nil
}

// insertPayback 模拟 participation_id / referral_id 唯一索引，调用方持有锁
func (w *World) insertPayback(p *settleModel.Payback) bool {
	for _, existing := range w.Paybacks {
		if p.ParticipationID != nil && existing.ParticipationID != nil && *existing.ParticipationID == *p.ParticipationID {
			return false
		}
		if p.ReferralID != nil && existing.ReferralID != nil && *existing.ReferralID == *p.ReferralID {
			return false
		}
	}
	w.stamp(&p.ID, &p.CreatedAt)
	cp := *p
	w.Paybacks[p.ID] = &cp
	return true
}

func (r PaybackRepo) GetByID(_ context.Context, id string) (*settleModel.Payback, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	p, ok := r.W.Paybacks[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r PaybackRepo) settle(id string, apply func(*settleModel.Payback)) (*settleModel.Payback, error) {
	p, ok := r.W.Paybacks[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	switch p.Status {
	case settleModel.PaybackPending:
	case settleModel.PaybackPaid:
		return nil, errs.ErrAlreadyPaid
	default:
		return nil, errs.ErrInvalidTransition
	}
	apply(p)
	cp := *p
	return &cp, nil
}

func (r PaybackRepo) MarkPaid(_ context.Context, id, reviewerID string, at time.Time) (*settleModel.Payback, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	return r.settle(id, func(p *settleModel.Payback) {
		p.Status = settleModel.PaybackPaid
		p.PaidAt = &at
		p.ReviewedBy = &reviewerID
		if u, ok := r.W.Users[p.UserID]; ok {
			u.SettledEarnings += p.Amount
		}
	})
}

func (r PaybackRepo) MarkRejected(_ context.Context, id, reviewerID, reason string) (*settleModel.Payback, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	return r.settle(id, func(p *settleModel.Payback) {
		p.Status = settleModel.PaybackRejected
		p.RejectReason = reason
		p.ReviewedBy = &reviewerID
	})
}

func (r PaybackRepo) List(_ context.Context, f settleModel.ListFilter, offset, limit int) ([]settleModel.Payback, int64, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	var list []settleModel.Payback
	for _, p := range r.W.Paybacks {
		if (f.Status == "" || p.Status == f.Status) && inStores(p.StoreID, f.StoreIDs, f.AllStores) {
			list = append(list, *p)
		}
	}
	sortByCreated(list, func(p settleModel.Payback) time.Time { return p.CreatedAt })
	return page(list, offset, limit), int64(len(list)), nil
}

func (r PaybackRepo) ListByUser(_ context.Context, userID string) ([]settleModel.Payback, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	var list []settleModel.Payback
	for _, p := range r.W.Paybacks {
		if p.UserID == userID {
			list = append(list, *p)
		}
	}
	sortByCreated(list, func(p settleModel.Payback) time.Time { return p.CreatedAt })
	return list, nil
}

// ---- coupons ----

type CouponRepo struct{ W *World }

var _ couponRepository.CouponRepository = CouponRepo{}

func (r CouponRepo) Create(_ context.Context, c *couponModel.Coupon) error {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	r.W.stamp(&c.ID, &c.CreatedAt)
	cp := *c
	r.W.Coupons[c.ID] = &cp
	return nil
}

func (r CouponRepo) GetByID(_ context.Context, id string) (*couponModel.Coupon, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	c, ok := r.W.Coupons[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r CouponRepo) CountUserCoupons(_ context.Context, userID, couponID string) (int64, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	var n int64
	for _, uc := range r.W.UserCoupons {
		if uc.UserID == userID && uc.CouponID == couponID {
			n++
		}
	}
	return n, nil
}

func (r CouponRepo) FindBySource(_ context.Context, userID, couponID, source string) (*couponModel.UserCoupon, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	for _, uc := range r.W.UserCoupons {
		if uc.UserID == userID && uc.CouponID == couponID && uc.Source == source {
			cp := *uc
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r CouponRepo) Issue(_ context.Context, uc *couponModel.UserCoupon, limited bool) error {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	c, ok := r.W.Coupons[uc.CouponID]
	if !ok {
		return errs.ErrNotFound
	}
	// 模拟 mission: 来源的部分唯一索引
	if strings.HasPrefix(uc.Source, "mission:") {
		for _, existing := range r.W.UserCoupons {
			if existing.Source == uc.Source {
				return errs.ErrAlreadyExists
			}
		}
	}
	if limited {
		if c.Stock <= 0 {
			return couponRepository.ErrOutOfStock
		}
		c.Stock--
	}
	r.W.stamp(&uc.ID, &uc.CreatedAt)
	cp := *uc
	r.W.UserCoupons[uc.ID] = &cp
	return nil
}

func (r CouponRepo) GetUserCoupon(_ context.Context, id string) (*couponModel.UserCoupon, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	uc, ok := r.W.UserCoupons[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *uc
	return &cp, nil
}

func (r CouponRepo) MarkUsed(_ context.Context, id, userID string, at time.Time) (bool, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	uc, ok := r.W.UserCoupons[id]
	if !ok || uc.UserID != userID || uc.Status != couponModel.StatusUnused {
		return false, nil
	}
	if uc.ExpiresAt != nil && !uc.ExpiresAt.After(at) {
		return false, nil
	}
	uc.Status = couponModel.StatusUsed
	uc.UsedAt = &at
	return true, nil
}

func (r CouponRepo) ExpireDue(_ context.Context, at time.Time) (int64, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	var n int64
	for _, uc := range r.W.UserCoupons {
		if uc.Status == couponModel.StatusUnused && uc.ExpiresAt != nil && !uc.ExpiresAt.After(at) {
			uc.Status = couponModel.StatusExpired
			n++
		}
	}
	return n, nil
}

func (r CouponRepo) ListByUser(_ context.Context, userID string) ([]couponModel.UserCoupon, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	var list []couponModel.UserCoupon
	for _, uc := range r.W.UserCoupons {
		if uc.UserID == userID {
			list = append(list, *uc)
		}
	}
	sortByCreated(list, func(uc couponModel.UserCoupon) time.Time { return uc.CreatedAt })
	return list, nil
}

// ---- referrals ----

type ReferralRepo struct{ W *World }

var _ refRepository.ReferralRepository = ReferralRepo{}

func (r ReferralRepo) CreateIfAbsent(_ context.Context, ref *refModel.Referral) (bool, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	for _, existing := range r.W.Referrals {
		if existing.RefereeID == ref.RefereeID {
			return false, nil
		}
	}
	r.W.stamp(&ref.ID, &ref.CreatedAt)
	cp := *ref
	r.W.Referrals[ref.ID] = &cp
	return true, nil
}

func (r ReferralRepo) get(match func(*refModel.Referral) bool) (*refModel.Referral, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	for _, ref := range r.W.Referrals {
		if match(ref) {
			cp := *ref
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r ReferralRepo) GetByID(_ context.Context, id string) (*refModel.Referral, error) {
	return r.get(func(ref *refModel.Referral) bool { return ref.ID == id })
}

func (r ReferralRepo) GetByReferee(_ context.Context, refereeID string) (*refModel.Referral, error) {
	return r.get(func(ref *refModel.Referral) bool { return ref.RefereeID == refereeID })
}

func (r ReferralRepo) MarkVerified(_ context.Context, id string, at time.Time) (bool, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	ref, ok := r.W.Referrals[id]
	if !ok || ref.IsVerified {
		return false, nil
	}
	ref.IsVerified = true
	ref.VerifiedAt = &at
	return true, nil
}

func (r ReferralRepo) VerifyByRefereePhones(_ context.Context, referrerID string, phones []string, threshold int, at time.Time) (int, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	wanted := map[string]bool{}
	for _, p := range phones {
		wanted[p] = true
	}
	var matched []*refModel.Referral
	for _, ref := range r.W.Referrals {
		u, ok := r.W.Users[ref.RefereeID]
		if ref.ReferrerID == referrerID && ok && wanted[u.Phone] {
			matched = append(matched, ref)
		}
	}
	if len(phones) == 0 || len(matched) < threshold {
		return 0, nil
	}
	n := 0
	for _, ref := range matched {
		if !ref.IsVerified {
			ref.IsVerified = true
			ref.VerifiedAt = &at
			n++
		}
	}
	return n, nil
}

func (r ReferralRepo) PayReward(_ context.Context, id string, payback *settleModel.Payback, at time.Time) (*refModel.Referral, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	ref, ok := r.W.Referrals[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if !ref.IsVerified {
		return nil, errs.ErrNotVerified
	}
	if ref.RewardPaid {
		return nil, errs.ErrAlreadyPaid
	}
	ref.RewardPaid = true
	ref.PaidAt = &at

	payback.UserID = ref.ReferrerID
	if u, ok := r.W.Users[ref.ReferrerID]; ok {
		payback.StoreID = u.StoreID
	}
	refID := ref.ID
	payback.ReferralID = &refID
	payback.Source = settleModel.SourceReferral
	payback.Status = settleModel.PaybackPending
	r.W.insertPayback(payback)
	cp := *ref
	return &cp, nil
}

func (r ReferralRepo) ListByReferrer(_ context.Context, referrerID string) ([]refModel.Referral, error) {
	r.W.mu.Lock()
	defer r.W.mu.Unlock()
	var list []refModel.Referral
	for _, ref := range r.W.Referrals {
		if ref.ReferrerID == referrerID {
			list = append(list, *ref)
		}
	}
	sortByCreated(list, func(ref refModel.Referral) time.Time { return ref.CreatedAt })
	return list, nil
}
