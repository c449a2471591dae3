package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"reward_engine/internal/domain/coupon/model"
	userModel "reward_engine/internal/domain/user/model"
	"reward_engine/internal/pkg/lock"
	"reward_engine/internal/pkg/testutil"
	"reward_engine/pkg/errs"
	"reward_engine/pkg/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newService(w *testutil.World) *couponService {
	svc := NewCouponService(testutil.CouponRepo{W: w}, testutil.UserRepo{W: w}, lock.NewLocalLocker(), &testutil.Recorder{}).(*couponService)
	svc.now = func() time.Time { return clock }
	return svc
}

func template(w *testutil.World, stock, capPerUser int) *model.Coupon {
	return w.AddCoupon(&model.Coupon{
		Name:       "3000 off",
		Total:      stock,
		Stock:      stock,
		Amount:     3000,
		PerUserCap: capPerUser,
		ValidDays:  7,
		StartTime:  clock.Add(-time.Hour),
		EndTime:    clock.Add(time.Hour),
	})
}

func TestIssueCouponRespectsPerUserCap(t *testing.T) {
	w := testutil.NewWorld()
	svc := newService(w)
	ctx := context.Background()
	c := template(w, 10, 1)

	res, err := svc.IssueCoupon(ctx, "u-1", c.ID, "mission:p-1")
	require.NoError(t, err)
	require.True(t, res.Issued)
	assert.Equal(t, model.StatusUnused, res.UserCoupon.Status)
	assert.Equal(t, clock.AddDate(0, 0, 7), *res.UserCoupon.ExpiresAt)

	res, err = svc.IssueCoupon(ctx, "u-1", c.ID, "mission:p-2")
	require.NoError(t, err)
	assert.False(t, res.Issued)
	assert.Equal(t, model.ReasonCapReached, res.Reason)
	assert.Equal(t, 9, w.Coupons[c.ID].Stock)
}

func TestIssueCouponConcurrentCap(t *testing.T) {
	w := testutil.NewWorld()
	svc := newService(w)
	c := template(w, model.UnlimitedStock, 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IssueCoupon(context.Background(), "u-1", c.ID, "claim")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, w.UserCouponsOf("u-1"), 2)
}

func TestIssueCouponSkips(t *testing.T) {
	w := testutil.NewWorld()
	svc := newService(w)
	ctx := context.Background()

	empty := template(w, 1, 0)
	_, err := svc.IssueCoupon(ctx, "u-1", empty.ID, "claim")
	require.NoError(t, err)
	res, err := svc.IssueCoupon(ctx, "u-2", empty.ID, "claim")
	require.NoError(t, err)
	assert.Equal(t, model.ReasonOutOfStock, res.Reason)

	late := template(w, 5, 1)
	w.Coupons[late.ID].EndTime = clock
	res, err = svc.IssueCoupon(ctx, "u-1", late.ID, "claim")
	require.NoError(t, err)
	assert.Equal(t, model.ReasonNotInWindow, res.Reason)

	_, err = svc.IssueCoupon(ctx, "u-1", "missing", "claim")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestIssueCouponOnceDedupesBySource(t *testing.T) {
	w := testutil.NewWorld()
	svc := newService(w)
	ctx := context.Background()
	c := template(w, 5, 3)

	res, err := svc.IssueCouponOnce(ctx, "u-1", c.ID, "mission:p-1")
	require.NoError(t, err)
	require.True(t, res.Issued)

	again, err := svc.IssueCouponOnce(ctx, "u-1", c.ID, "mission:p-1")
	require.NoError(t, err)
	assert.False(t, again.Issued)
	assert.Equal(t, model.ReasonAlreadyIssued, again.Reason)
	assert.Equal(t, res.UserCoupon.ID, again.UserCoupon.ID)

	other, err := svc.IssueCouponOnce(ctx, "u-1", c.ID, "mission:p-2")
	require.NoError(t, err)
	assert.True(t, other.Issued)
	assert.Len(t, w.UserCouponsOf("u-1"), 2)
	assert.Equal(t, 3, w.Coupons[c.ID].Stock)
}

func TestSendCouponChecksScope(t *testing.T) {
	w := testutil.NewWorld()
	svc := newService(w)
	ctx := context.Background()
	c := template(w, 5, 1)
	u := w.AddUser(&userModel.User{Phone: "01000001111", StoreID: "7"})

	_, err := svc.SendCoupon(ctx, security.New(security.RoleStoreManager, []string{"5"}), "sm", u.ID, c.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	res, err := svc.SendCoupon(ctx, security.New(security.RoleStoreManager, []string{"7"}), "sm", u.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, res.Issued)
	assert.Equal(t, "admin:sm", res.UserCoupon.Source)
}

func TestUseCouponOnlyMovesForward(t *testing.T) {
	w := testutil.NewWorld()
	svc := newService(w)
	ctx := context.Background()
	c := template(w, 5, 3)

	res, err := svc.IssueCoupon(ctx, "u-1", c.ID, "claim")
	require.NoError(t, err)
	id := res.UserCoupon.ID

	_, err = svc.UseCoupon(ctx, "u-2", id)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	used, err := svc.UseCoupon(ctx, "u-1", id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUsed, used.Status)

	_, err = svc.UseCoupon(ctx, "u-1", id)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	// 过期后不能使用，扫描把它置为 expired
	res, err = svc.IssueCoupon(ctx, "u-1", c.ID, "claim")
	require.NoError(t, err)
	svc.now = func() time.Time { return clock.AddDate(0, 0, 8) }
	_, err = svc.UseCoupon(ctx, "u-1", res.UserCoupon.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	n, err := svc.ExpireDue(ctx, svc.now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = svc.ExpireDue(ctx, svc.now())
	require.NoError(t, err)
	assert.Zero(t, n)

	mine, err := svc.ListMine(ctx, "u-1")
	require.NoError(t, err)
	statuses := []model.UserCouponStatus{}
	for _, uc := range mine {
		statuses = append(statuses, uc.Status)
	}
	assert.ElementsMatch(t, []model.UserCouponStatus{model.StatusUsed, model.StatusExpired}, statuses)
}

func TestCreateCouponRequiresPermission(t *testing.T) {
	w := testutil.NewWorld()
	svc := newService(w)
	ctx := context.Background()
	in := CreateCouponInput{Name: "x", Amount: 1000, StartTime: clock, EndTime: clock.Add(time.Hour)}

	_, err := svc.CreateCoupon(ctx, security.New(security.RoleStoreManager, []string{"5"}), in)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	c, err := svc.CreateCoupon(ctx, security.SystemActor(), in)
	require.NoError(t, err)
	assert.Equal(t, model.UnlimitedStock, c.Stock)

	in.EndTime = clock
	_, err = svc.CreateCoupon(ctx, security.SystemActor(), in)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}
