package service

import (
	"context"
	"errors"
	"testing"
	"time"

	couponModel "reward_engine/internal/domain/coupon/model"
	couponService "reward_engine/internal/domain/coupon/service"
	missionModel "reward_engine/internal/domain/mission/model"
	missionService "reward_engine/internal/domain/mission/service"
	partModel "reward_engine/internal/domain/participation/model"
	"reward_engine/internal/domain/settlement/model"
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

type fixture struct {
	w    *testutil.World
	rec  *testutil.Recorder
	svc  SettlementService
	user *userModel.User
	def  *missionModel.MissionDefinition
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w := testutil.NewWorld()
	rec := &testutil.Recorder{}
	svc := NewSettlementService(
		testutil.PaybackRepo{W: w},
		missionService.NewCatalogService(testutil.MissionRepo{W: w}, nil),
		nil,
		nil,
		testutil.ParticipationRepo{W: w},
		rec,
		Options{ReferralThreshold: 3},
	)
	return &fixture{
		w:    w,
		rec:  rec,
		svc:  svc,
		user: w.AddUser(&userModel.User{Phone: "01022223333", StoreID: "5"}),
		def: w.AddMission(&missionModel.MissionDefinition{
			Type: missionModel.TypeChallenge, Title: "study", RewardAmount: 7000, RewardXP: 10, Active: true,
		}),
	}
}

// verified 直接写入一条已通过的参与
func (f *fixture) verified(t *testing.T) *partModel.Participation {
	t.Helper()
	p := &partModel.Participation{
		UserID:              f.user.ID,
		MissionDefinitionID: f.def.ID,
		MissionType:         f.def.Type,
		StoreID:             f.user.StoreID,
		Status:              partModel.StatusVerified,
	}
	_, err := testutil.ParticipationRepo{W: f.w}.CreateIfAbsent(context.Background(), p)
	require.NoError(t, err)
	return p
}

var (
	admin        = security.New(security.RoleBranchManager, []string{"5"})
	storeManager = security.New(security.RoleStoreManager, []string{"5"})
)

func TestSettleIssuesPendingPaybackOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.verified(t)

	pb, err := f.svc.Settle(ctx, admin, p)
	require.NoError(t, err)
	assert.Equal(t, model.PaybackPending, pb.Status)
	assert.Equal(t, int64(7000), pb.Amount)
	assert.Equal(t, model.SourceMission, pb.Source)

	again, err := f.svc.Settle(ctx, admin, p)
	require.NoError(t, err)
	assert.Equal(t, pb.ID, again.ID)
	assert.Len(t, f.w.PaybacksFor(p.ID), 1)
	assert.Equal(t, int64(10), f.w.User(f.user.ID).XP)
	assert.Equal(t, 1, f.rec.Count(events.TopicSettlementIssued))
}

// flakyIssuer 前 failures 次发券返回错误
type flakyIssuer struct {
	next     CouponIssuer
	failures int
	calls    int
}

func (f *flakyIssuer) IssueCouponOnce(ctx context.Context, userID, couponID, source string) (*couponModel.IssueResult, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("lock timeout")
	}
	return f.next.IssueCouponOnce(ctx, userID, couponID, source)
}

func TestReconcileRetriesFailedCouponStep(t *testing.T) {
	w := testutil.NewWorld()
	rec := &testutil.Recorder{}
	ctx := context.Background()
	coupon := w.AddCoupon(&couponModel.Coupon{
		Name: "review thanks", Total: 10, Stock: 10, Amount: 3000, PerUserCap: 5,
		StartTime: time.Now().Add(-time.Hour), EndTime: time.Now().Add(time.Hour),
	})
	issuer := &flakyIssuer{
		next:     couponService.NewCouponService(testutil.CouponRepo{W: w}, testutil.UserRepo{W: w}, lock.NewLocalLocker(), rec),
		failures: 1,
	}
	svc := NewSettlementService(
		testutil.PaybackRepo{W: w},
		missionService.NewCatalogService(testutil.MissionRepo{W: w}, nil),
		issuer,
		nil,
		testutil.ParticipationRepo{W: w},
		rec,
		Options{ReviewCouponID: coupon.ID},
	)
	user := w.AddUser(&userModel.User{Phone: "01033334444", StoreID: "5"})
	def := w.AddMission(&missionModel.MissionDefinition{
		Type: missionModel.TypeReview, Title: "review", RewardAmount: 5000, RewardXP: 10, Active: true,
	})
	p := &partModel.Participation{
		UserID: user.ID, MissionDefinitionID: def.ID, MissionType: def.Type,
		StoreID: "5", Status: partModel.StatusVerified,
	}
	_, err := testutil.ParticipationRepo{W: w}.CreateIfAbsent(ctx, p)
	require.NoError(t, err)

	pb, err := svc.Settle(ctx, admin, p)
	require.Error(t, err)
	assert.NotEmpty(t, pb.ID)
	assert.Empty(t, w.UserCouponsOf(user.ID))
	assert.Nil(t, w.Participation(p.ID).SettledAt)

	res, err := svc.Reconcile(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, &ReconcileResult{Scanned: 1, Settled: 1}, res)
	assert.Len(t, w.UserCouponsOf(user.ID), 1)
	assert.Len(t, w.PaybacksFor(p.ID), 1)
	assert.Equal(t, int64(10), w.User(user.ID).XP)
	assert.Equal(t, 1, rec.Count(events.TopicSettlementIssued))
	assert.NotNil(t, w.Participation(p.ID).SettledAt)

	// 已结算的参与不再被扫描，直接重放也不会多发券
	res, err = svc.Reconcile(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
	_, err = svc.Settle(ctx, admin, p)
	require.NoError(t, err)
	assert.Len(t, w.UserCouponsOf(user.ID), 1)
	assert.Equal(t, int64(10), w.User(user.ID).XP)
	assert.Equal(t, 3, issuer.calls)
}

func TestSettleGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.verified(t)

	_, err := f.svc.Settle(ctx, security.New(security.RoleBranchManager, []string{"7"}), p)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	completed := *p
	completed.Status = partModel.StatusCompleted
	_, err = f.svc.Settle(ctx, admin, &completed)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	assert.Empty(t, f.w.PaybacksFor(p.ID))
}

func TestSettleIgnoresPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.rec.Err = errors.New("redis down")
	p := f.verified(t)

	pb, err := f.svc.Settle(context.Background(), admin, p)
	require.NoError(t, err)
	assert.NotEmpty(t, pb.ID)
}

func TestApprovePaybackCreditsEarningsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pb, err := f.svc.Settle(ctx, admin, f.verified(t))
	require.NoError(t, err)

	_, err = f.svc.ApprovePayback(ctx, storeManager, "sm-1", pb.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	paid, err := f.svc.ApprovePayback(ctx, admin, "admin-1", pb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaybackPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)
	assert.Equal(t, int64(7000), f.w.User(f.user.ID).SettledEarnings)

	_, err = f.svc.ApprovePayback(ctx, admin, "admin-1", pb.ID)
	assert.ErrorIs(t, err, errs.ErrAlreadyPaid)
	assert.Equal(t, int64(7000), f.w.User(f.user.ID).SettledEarnings)
	assert.Equal(t, 1, f.rec.Count(events.TopicPaybackPaid))
}

func TestRejectPaybackIsFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pb, err := f.svc.Settle(ctx, admin, f.verified(t))
	require.NoError(t, err)

	rejected, err := f.svc.RejectPayback(ctx, admin, "admin-1", pb.ID, "duplicate receipt")
	require.NoError(t, err)
	assert.Equal(t, model.PaybackRejected, rejected.Status)

	_, err = f.svc.ApprovePayback(ctx, admin, "admin-1", pb.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	assert.Zero(t, f.w.User(f.user.ID).SettledEarnings)
}

func TestReconcileSettlesMissingPaybacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	settled := f.verified(t)
	_, err := f.svc.Settle(ctx, admin, settled)
	require.NoError(t, err)

	other := f.w.AddUser(&userModel.User{Phone: "01099998888", StoreID: "7"})
	orphan := &partModel.Participation{
		UserID: other.ID, MissionDefinitionID: f.def.ID, MissionType: f.def.Type,
		StoreID: "7", Status: partModel.StatusVerified,
	}
	_, err = testutil.ParticipationRepo{W: f.w}.CreateIfAbsent(ctx, orphan)
	require.NoError(t, err)

	res, err := f.svc.Reconcile(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, &ReconcileResult{Scanned: 1, Settled: 1}, res)
	assert.Len(t, f.w.PaybacksFor(orphan.ID), 1)

	res, err = f.svc.Reconcile(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
}

func TestListPaybacksScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Settle(ctx, admin, f.verified(t))
	require.NoError(t, err)

	list, total, err := f.svc.ListPaybacks(ctx, storeManager, model.PaybackPending, utils.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	_, total, err = f.svc.ListPaybacks(ctx, security.New(security.RoleStoreManager, []string{"8"}), "", utils.Pagination{})
	require.NoError(t, err)
	assert.Zero(t, total)

	mine, err := f.svc.ListMine(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}
