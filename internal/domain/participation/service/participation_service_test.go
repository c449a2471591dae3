package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	couponModel "reward_engine/internal/domain/coupon/model"
	couponService "reward_engine/internal/domain/coupon/service"
	missionModel "reward_engine/internal/domain/mission/model"
	missionService "reward_engine/internal/domain/mission/service"
	"reward_engine/internal/domain/participation/model"
	refModel "reward_engine/internal/domain/referral/model"
	refService "reward_engine/internal/domain/referral/service"
	settleModel "reward_engine/internal/domain/settlement/model"
	settleService "reward_engine/internal/domain/settlement/service"
	userModel "reward_engine/internal/domain/user/model"
	"reward_engine/internal/pkg/events"
	"reward_engine/internal/pkg/lock"
	"reward_engine/internal/pkg/testutil"
	"reward_engine/pkg/errs"
	"reward_engine/pkg/security"
	"reward_engine/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	w        *testutil.World
	rec      *testutil.Recorder
	svc      ParticipationService
	customer *userModel.User
	coupon   *couponModel.Coupon
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	w := testutil.NewWorld()
	rec := &testutil.Recorder{}
	users := testutil.UserRepo{W: w}

	coupon := w.AddCoupon(&couponModel.Coupon{
		Name:       "review thanks",
		Total:      10,
		Stock:      10,
		Amount:     3000,
		PerUserCap: 1,
		ValidDays:  30,
		StartTime:  time.Now().Add(-time.Hour),
		EndTime:    time.Now().Add(24 * time.Hour),
	})

	catalog := missionService.NewCatalogService(testutil.MissionRepo{W: w}, nil)
	coupons := couponService.NewCouponService(testutil.CouponRepo{W: w}, users, lock.NewLocalLocker(), rec)
	referrals := refService.NewReferralService(testutil.ReferralRepo{W: w}, users, rec, 10000)
	settler := settleService.NewSettlementService(
		testutil.PaybackRepo{W: w},
		catalog,
		coupons,
		referrals,
		testutil.ParticipationRepo{W: w},
		rec,
		settleService.Options{ReferralThreshold: 3, ReviewCouponID: coupon.ID},
	)

	return &harness{
		w:        w,
		rec:      rec,
		svc:      NewParticipationService(testutil.ParticipationRepo{W: w}, catalog, users, settler, rec),
		customer: w.AddUser(&userModel.User{Phone: "01000000001", Role: userModel.RoleCustomer, StoreID: "5"}),
		coupon:   coupon,
	}
}

func (h *harness) mission(mt missionModel.MissionType, repeatable bool) *missionModel.MissionDefinition {
	return h.w.AddMission(&missionModel.MissionDefinition{
		Type:         mt,
		Title:        string(mt),
		RewardAmount: 5000,
		RewardXP:     20,
		Repeatable:   repeatable,
		Active:       true,
	})
}

// completed 开始并提交凭证
func (h *harness) completed(t *testing.T, def *missionModel.MissionDefinition, proof string) *model.Participation {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.StartMission(ctx, h.customer.ID, def.ID)
	require.NoError(t, err)
	p, err := h.svc.SubmitProof(ctx, h.customer.ID, def.ID, []byte(proof))
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, p.Status)
	return p
}

const (
	challengeProof = `{"studyHours":14,"certificateImageRef":"oss://proofs/cert.png"}`
	reviewProof    = `{"platformUrls":["https://naver.me/a","https://kakao.me/b","https://google.com/c"]}`
)

func manager(stores ...string) security.Permissions {
	return security.New(security.RoleBranchManager, stores)
}

func TestStartMissionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.mission(missionModel.TypeChallenge, false)

	first, err := h.svc.StartMission(ctx, h.customer.ID, def.ID)
	require.NoError(t, err)
	second, err := h.svc.StartMission(ctx, h.customer.ID, def.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.StatusInProgress, second.Status)
	assert.Equal(t, "5", second.StoreID)
	assert.Len(t, h.w.Participations, 1)
}

func TestStartMissionPromotesSeededPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.mission(missionModel.TypeChallenge, false)

	seeded := &model.Participation{UserID: h.customer.ID, MissionDefinitionID: def.ID, MissionType: def.Type, StoreID: "5", Status: model.StatusPending}
	_, err := testutil.ParticipationRepo{W: h.w}.CreateIfAbsent(ctx, seeded)
	require.NoError(t, err)

	// pending 不能直接提交
	_, err = h.svc.SubmitProof(ctx, h.customer.ID, def.ID, []byte(challengeProof))
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	p, err := h.svc.StartMission(ctx, h.customer.ID, def.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, p.ID)
	assert.Equal(t, model.StatusInProgress, p.Status)
	assert.NotNil(t, p.StartedAt)
}

func TestStartMissionAfterTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	once := h.mission(missionModel.TypeChallenge, false)
	p := h.completed(t, once, challengeProof)
	_, err := h.svc.AdminReject(ctx, manager("5"), "admin-1", p.ID, "blurry")
	require.NoError(t, err)

	_, err = h.svc.StartMission(ctx, h.customer.ID, once.ID)
	assert.ErrorIs(t, err, errs.ErrAlreadyVerified)

	again := h.mission(missionModel.TypeAttendance, true)
	p = h.completed(t, again, `{"attendedOn":"2026-10-01","checkInRef":"qr-1"}`)
	_, err = h.svc.AdminReject(ctx, manager("5"), "admin-1", p.ID, "wrong day")
	require.NoError(t, err)

	next, err := h.svc.StartMission(ctx, h.customer.ID, again.ID)
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, next.ID)
}

func TestSubmitProofChallengeStudyHours(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.mission(missionModel.TypeChallenge, false)
	_, err := h.svc.StartMission(ctx, h.customer.ID, def.ID)
	require.NoError(t, err)

	cases := []struct {
		name    string
		payload string
		ok      bool
	}{
		{"at limit", `{"studyHours":14,"certificateImageRef":"oss://c.png"}`, true},
		{"over limit", `{"studyHours":15,"certificateImageRef":"oss://c.png"}`, false},
		{"missing photo", `{"studyHours":3}`, false},
		{"missing hours", `{"certificateImageRef":"oss://c.png"}`, false},
		{"unknown field", `{"studyHours":3,"certificateImageRef":"oss://c.png","bonus":true}`, false},
		{"not json", `studyHours=3`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := h.svc.SubmitProof(ctx, h.customer.ID, def.ID, []byte(tc.payload))
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, model.StatusCompleted, p.Status)
				assert.JSONEq(t, tc.payload, string(p.Proof))
				return
			}
			assert.ErrorIs(t, err, errs.ErrInvalidProof)
		})
	}
}

func TestSubmitProofResubmissionOverwrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.mission(missionModel.TypeSNS, false)
	first := h.completed(t, def, `{"platform":"instagram","postUrl":"https://instagram.com/p/1"}`)

	second, err := h.svc.SubmitProof(ctx, h.customer.ID, def.ID, []byte(`{"platform":"instagram","postUrl":"https://instagram.com/p/2"}`))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Contains(t, string(second.Proof), "/p/2")
	assert.Equal(t, 2, h.rec.Count(events.TopicParticipationSubmitted))
}

func TestSubmitProofStateErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.mission(missionModel.TypeChallenge, false)

	_, err := h.svc.SubmitProof(ctx, h.customer.ID, def.ID, []byte(challengeProof))
	assert.ErrorIs(t, err, errs.ErrNotFound)

	p := h.completed(t, def, challengeProof)
	_, err = h.svc.AdminApprove(ctx, manager("5"), "admin-1", p.ID)
	require.NoError(t, err)

	_, err = h.svc.SubmitProof(ctx, h.customer.ID, def.ID, []byte(challengeProof))
	assert.ErrorIs(t, err, errs.ErrAlreadySubmitted)
	assert.ErrorIs(t, err, errs.ErrAlreadyVerified)
}

func TestAdminApproveStoreScope(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	other := h.w.AddUser(&userModel.User{Phone: "01000000007", Role: userModel.RoleCustomer, StoreID: "7"})
	def := h.mission(missionModel.TypeChallenge, false)

	_, err := h.svc.StartMission(ctx, other.ID, def.ID)
	require.NoError(t, err)
	in7, err := h.svc.SubmitProof(ctx, other.ID, def.ID, []byte(challengeProof))
	require.NoError(t, err)
	in5 := h.completed(t, def, challengeProof)

	_, err = h.svc.AdminApprove(ctx, manager("5"), "admin-1", in7.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	p, err := h.svc.AdminApprove(ctx, manager("5"), "admin-1", in5.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, p.Status)

	// 无审核权限的角色
	_, err = h.svc.AdminApprove(ctx, security.New(security.RoleCustomer, []string{"7"}), "u", in7.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestAdminApproveConcurrentProducesOnePayback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.mission(missionModel.TypeChallenge, false)
	p := h.completed(t, def, challengeProof)

	const callers = 16
	var wg sync.WaitGroup
	errCh := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.AdminApprove(ctx, manager("5"), fmt.Sprintf("admin-%d", i), p.ID)
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		assert.NoError(t, err)
	}

	paybacks := h.w.PaybacksFor(p.ID)
	require.Len(t, paybacks, 1)
	assert.Equal(t, settleModel.PaybackPending, paybacks[0].Status)
	assert.Equal(t, int64(5000), paybacks[0].Amount)
	assert.Equal(t, 1, h.rec.Count(events.TopicSettlementIssued))
	assert.Equal(t, 1, h.rec.Count(events.TopicParticipationVerified))
	assert.Equal(t, int64(20), h.w.User(h.customer.ID).XP)
	// 金额只在返现审核通过后到账
	assert.Zero(t, h.w.User(h.customer.ID).SettledEarnings)
}

func TestReviewMissionEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.mission(missionModel.TypeReview, false)
	p := h.completed(t, def, reviewProof)

	_, err := h.svc.AdminApprove(ctx, manager("5"), "admin-1", p.ID)
	require.NoError(t, err)

	paybacks := h.w.PaybacksFor(p.ID)
	require.Len(t, paybacks, 1)
	assert.Equal(t, settleModel.PaybackPending, paybacks[0].Status)
	assert.Equal(t, def.RewardAmount, paybacks[0].Amount)

	coupons := h.w.UserCouponsOf(h.customer.ID)
	require.Len(t, coupons, 1)
	assert.Equal(t, couponModel.StatusUnused, coupons[0].Status)
	assert.Equal(t, "mission:"+p.ID, coupons[0].Source)

	// 第二次审核是空操作
	again, err := h.svc.AdminApprove(ctx, manager("5"), "admin-2", p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, again.Status)
	assert.Len(t, h.w.PaybacksFor(p.ID), 1)
	assert.Len(t, h.w.UserCouponsOf(h.customer.ID), 1)
}

func TestReviewMissionTooFewURLs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.mission(missionModel.TypeReview, false)
	_, err := h.svc.StartMission(ctx, h.customer.ID, def.ID)
	require.NoError(t, err)

	_, err = h.svc.SubmitProof(ctx, h.customer.ID, def.ID, []byte(`{"platformUrls":["https://naver.me/a","https://kakao.me/b"]}`))
	assert.ErrorIs(t, err, errs.ErrInvalidProof)

	_, err = h.svc.SubmitProof(ctx, h.customer.ID, def.ID, []byte(`{"platformUrls":["https://naver.me/a","https://naver.me/a","https://kakao.me/b"]}`))
	assert.ErrorIs(t, err, errs.ErrInvalidProof)
}

func TestReferralMissionVerifiesRefereesWithoutPaying(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	refs := testutil.ReferralRepo{W: h.w}

	phones := []string{"01011110001", "01011110002", "01011110003"}
	for _, phone := range phones {
		friend := h.w.AddUser(&userModel.User{Phone: phone, Role: userModel.RoleCustomer, StoreID: "5"})
		_, err := refs.CreateIfAbsent(ctx, &refModel.Referral{ReferrerID: h.customer.ID, RefereeID: friend.ID})
		require.NoError(t, err)
	}

	def := h.mission(missionModel.TypeReferral, false)
	p := h.completed(t, def, `{"referees":[
		{"refereeName":"a","refereePhone":"01011110001"},
		{"refereeName":"b","refereePhone":"01011110002"},
		{"refereeName":"c","refereePhone":"01011110003"}]}`)

	_, err := h.svc.AdminApprove(ctx, manager("5"), "admin-1", p.ID)
	require.NoError(t, err)

	list, err := refs.ListByReferrer(ctx, h.customer.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, r := range list {
		assert.True(t, r.IsVerified)
		assert.False(t, r.RewardPaid)
	}
}

func TestAdminRejectDoesNotSettle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.mission(missionModel.TypeChallenge, false)
	p := h.completed(t, def, challengeProof)

	_, err := h.svc.AdminReject(ctx, security.New(security.RoleStoreManager, []string{"5"}), "admin-1", p.ID, "fake certificate")
	require.NoError(t, err)

	got, err := testutil.ParticipationRepo{W: h.w}.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Equal(t, "fake certificate", got.RejectReason)
	assert.Empty(t, h.w.PaybacksFor(p.ID))

	// 已拒绝的不能再通过
	_, err = h.svc.AdminApprove(ctx, manager("5"), "admin-1", p.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestListForReviewIsStoreScoped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.mission(missionModel.TypeChallenge, false)
	h.completed(t, def, challengeProof)

	list, total, err := h.svc.ListForReview(ctx, manager("5"), model.StatusCompleted, utils.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	list, total, err = h.svc.ListForReview(ctx, manager("9"), model.StatusCompleted, utils.Pagination{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)

	_, _, err = h.svc.ListForReview(ctx, security.New(security.RoleCustomer, nil), "", utils.Pagination{})
	assert.ErrorIs(t, err, errs.ErrForbidden)
}
