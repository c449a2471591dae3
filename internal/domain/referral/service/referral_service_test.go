package service

import (
	"context"
	"sync"
	"testing"

	settleModel "reward_engine/internal/domain/settlement/model"
	userModel "reward_engine/internal/domain/user/model"
	"reward_engine/internal/pkg/events"
	"reward_engine/internal/pkg/testutil"
	"reward_engine/pkg/errs"
	"reward_engine/pkg/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bonus int64 = 10000

func setup() (*testutil.World, *testutil.Recorder, ReferralService, *userModel.User) {
	w := testutil.NewWorld()
	rec := &testutil.Recorder{}
	svc := NewReferralService(testutil.ReferralRepo{W: w}, testutil.UserRepo{W: w}, rec, bonus)
	referrer := w.AddUser(&userModel.User{Phone: "01012340000", StoreID: "5", ReferralCode: "REF00001"})
	return w, rec, svc, referrer
}

var admin = security.New(security.RoleBranchManager, []string{"5"})

func TestRegisterReferral(t *testing.T) {
	w, rec, svc, referrer := setup()
	ctx := context.Background()
	newcomer := w.AddUser(&userModel.User{Phone: "01012341111", StoreID: "5"})

	_, err := svc.RegisterReferral(ctx, referrer.ID, "REF00001")
	assert.ErrorIs(t, err, errs.ErrSelfReferral)

	_, err = svc.RegisterReferral(ctx, newcomer.ID, "NOPE")
	assert.ErrorIs(t, err, errs.ErrInvalidCode)

	ref, err := svc.RegisterReferral(ctx, newcomer.ID, "REF00001")
	require.NoError(t, err)
	assert.Equal(t, referrer.ID, ref.ReferrerID)
	assert.False(t, ref.IsVerified)
	assert.False(t, ref.RewardPaid)
	require.NotNil(t, w.User(newcomer.ID).ReferredByID)
	assert.Equal(t, referrer.ID, *w.User(newcomer.ID).ReferredByID)
	assert.Equal(t, 1, rec.Count(events.TopicReferralRegistered))

	_, err = svc.RegisterReferral(ctx, newcomer.ID, "REF00001")
	assert.ErrorIs(t, err, errs.ErrAlreadyExists)
	assert.True(t, errs.IsBenign(err))
}

func TestVerifyReferralIsIdempotent(t *testing.T) {
	w, rec, svc, _ := setup()
	ctx := context.Background()
	newcomer := w.AddUser(&userModel.User{Phone: "01012342222"})
	ref, err := svc.RegisterReferral(ctx, newcomer.ID, "REF00001")
	require.NoError(t, err)

	_, err = svc.VerifyReferral(ctx, security.New(security.RoleBranchManager, []string{"7"}), ref.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = svc.VerifyReferral(ctx, security.New(security.RoleStoreManager, []string{"5"}), ref.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	got, err := svc.VerifyReferral(ctx, admin, ref.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)

	got, err = svc.VerifyReferral(ctx, admin, ref.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	assert.Equal(t, 1, rec.Count(events.TopicReferralVerified))
}

func TestPayReferralReward(t *testing.T) {
	w, _, svc, referrer := setup()
	ctx := context.Background()
	newcomer := w.AddUser(&userModel.User{Phone: "01012343333"})
	ref, err := svc.RegisterReferral(ctx, newcomer.ID, "REF00001")
	require.NoError(t, err)

	_, _, err = svc.PayReferralReward(ctx, admin, ref.ID)
	assert.ErrorIs(t, err, errs.ErrNotVerified)

	_, err = svc.VerifyReferral(ctx, admin, ref.ID)
	require.NoError(t, err)

	paid, payback, err := svc.PayReferralReward(ctx, admin, ref.ID)
	require.NoError(t, err)
	assert.True(t, paid.RewardPaid)
	assert.Equal(t, referrer.ID, payback.UserID)
	assert.Equal(t, "5", payback.StoreID)
	assert.Equal(t, bonus, payback.Amount)
	assert.Equal(t, settleModel.SourceReferral, payback.Source)
	assert.Nil(t, payback.ParticipationID)

	_, _, err = svc.PayReferralReward(ctx, admin, ref.ID)
	assert.ErrorIs(t, err, errs.ErrAlreadyPaid)
	assert.Len(t, w.Paybacks, 1)
}

func TestPayReferralRewardConcurrent(t *testing.T) {
	w, _, svc, _ := setup()
	ctx := context.Background()
	newcomer := w.AddUser(&userModel.User{Phone: "01012344444"})
	ref, err := svc.RegisterReferral(ctx, newcomer.ID, "REF00001")
	require.NoError(t, err)
	_, err = svc.VerifyReferral(ctx, admin, ref.ID)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := svc.PayReferralReward(ctx, admin, ref.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Len(t, w.Paybacks, 1)
}

func TestVerifyRefereesThreshold(t *testing.T) {
	w, _, svc, referrer := setup()
	ctx := context.Background()
	phones := []string{"01055550001", "01055550002", "01055550003"}
	for _, phone := range phones {
		u := w.AddUser(&userModel.User{Phone: phone})
		_, err := svc.RegisterReferral(ctx, u.ID, "REF00001")
		require.NoError(t, err)
	}

	n, err := svc.VerifyReferees(ctx, referrer.ID, phones[:2], 3)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.VerifyReferees(ctx, referrer.ID, append(phones, "01099999999"), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	mine, err := svc.ListMine(ctx, referrer.ID)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	for _, r := range mine {
		assert.True(t, r.IsVerified)
	}
}
