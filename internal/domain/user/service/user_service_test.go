package service

import (
	"context"
	"errors"
	"testing"

	refModel "reward_engine/internal/domain/referral/model"
	"reward_engine/internal/domain/user/model"
	"reward_engine/internal/pkg/config"
	"reward_engine/pkg/errs"
	"reward_engine/pkg/security"
	"reward_engine/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	config.GlobalConfig.JWT.Secret = "user-service-test-secret-0123456789abcdef"
	config.GlobalConfig.JWT.Expire = 1
}

// MockUserRepository is a mock of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil && user.ID == "" {
		user.ID = "new-user-id"
	}
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetByReferralCode(ctx context.Context, code string) (*model.User, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetList(ctx context.Context, storeIDs []string, all bool, offset, limit int) ([]model.User, int64, error) {
	args := m.Called(ctx, storeIDs, all, offset, limit)
	return args.Get(0).([]model.User), args.Get(1).(int64), args.Error(2)
}

func (m *MockUserRepository) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) SetReferredBy(ctx context.Context, userID, referrerID string) (bool, error) {
	args := m.Called(ctx, userID, referrerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) ListStoreIDs(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockUserRepository) AssignStore(ctx context.Context, userID, storeID string) error {
	args := m.Called(ctx, userID, storeID)
	return args.Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockOTPService is a mock of OTPService
type MockOTPService struct {
	mock.Mock
}

func (m *MockOTPService) Send(ctx context.Context, phone string) (string, error) {
	args := m.Called(ctx, phone)
	return args.String(0), args.Error(1)
}

func (m *MockOTPService) Verify(ctx context.Context, phone, code string) bool {
	args := m.Called(ctx, phone, code)
	return args.Bool(0)
}

type MockReferralRegistrar struct {
	mock.Mock
}

func (m *MockReferralRegistrar) RegisterReferral(ctx context.Context, newUserID, code string) (*refModel.Referral, error) {
	args := m.Called(ctx, newUserID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*refModel.Referral), args.Error(1)
}

func createTestUser(id, phone, role string) *model.User {
	u := &model.User{
		Phone:         phone,
		PhoneVerified: true,
		Name:          "TestUser",
		Role:          role,
		ReferralCode:  "ABCD1234",
	}
	u.ID = id
	return u
}

func TestLoginOrRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("New user registration with referral code", func(t *testing.T) {
		mockRepo := new(MockUserRepository)
		mockOTP := new(MockOTPService)
		mockRef := new(MockReferralRegistrar)
		svc := NewUserService(mockRepo, mockOTP, mockRef)

		phone := "01012340000"
		mockOTP.On("Verify", ctx, phone, "123456").Return(true)
		mockRepo.On("GetByPhone", ctx, phone).Return(nil, errs.ErrNotFound)
		mockRepo.On("Create", ctx, mock.AnythingOfType("*model.User")).Return(nil)
		mockRef.On("RegisterReferral", ctx, "new-user-id", "FRIEND01").Return(&refModel.Referral{}, nil)

		result, err := svc.LoginOrRegister(ctx, phone, "123456", RegisterInput{StoreID: "5", ReferralCode: "FRIEND01"})

		require.NoError(t, err)
		assert.True(t, result.IsNew)
		assert.NotEmpty(t, result.Token)
		assert.Equal(t, model.RoleCustomer, result.User.Role)
		assert.True(t, result.User.PhoneVerified)
		assert.Equal(t, "5", result.User.StoreID)
		assert.Len(t, result.User.ReferralCode, 8)
		mockOTP.AssertExpectations(t)
		mockRepo.AssertExpectations(t)
		mockRef.AssertExpectations(t)
	})

	t.Run("Referral failure does not block registration", func(t *testing.T) {
		mockRepo := new(MockUserRepository)
		mockOTP := new(MockOTPService)
		mockRef := new(MockReferralRegistrar)
		svc := NewUserService(mockRepo, mockOTP, mockRef)

		phone := "01012340001"
		mockOTP.On("Verify", ctx, phone, "123456").Return(true)
		mockRepo.On("GetByPhone", ctx, phone).Return(nil, errs.ErrNotFound)
		mockRepo.On("Create", ctx, mock.AnythingOfType("*model.User")).Return(nil)
		mockRef.On("RegisterReferral", ctx, "new-user-id", "BADCODE").Return(nil, errs.ErrInvalidCode)

		result, err := svc.LoginOrRegister(ctx, phone, "123456", RegisterInput{ReferralCode: "BADCODE"})

		require.NoError(t, err)
		assert.True(t, result.IsNew)
	})

	t.Run("Concurrent registration reuses the existing user", func(t *testing.T) {
		mockRepo := new(MockUserRepository)
		mockOTP := new(MockOTPService)
		svc := NewUserService(mockRepo, mockOTP, nil)

		phone := "01012340002"
		existing := createTestUser("raced-id", phone, model.RoleCustomer)
		mockOTP.On("Verify", ctx, phone, "123456").Return(true)
		mockRepo.On("GetByPhone", ctx, phone).Return(nil, errs.ErrNotFound).Once()
		mockRepo.On("Create", ctx, mock.AnythingOfType("*model.User")).Return(gorm.ErrDuplicatedKey).Once()
		mockRepo.On("GetByPhone", ctx, phone).Return(existing, nil).Once()

		result, err := svc.LoginOrRegister(ctx, phone, "123456", RegisterInput{})

		require.NoError(t, err)
		assert.False(t, result.IsNew)
		assert.Equal(t, "raced-id", result.User.ID)
	})

	t.Run("Existing manager login carries stores", func(t *testing.T) {
		mockRepo := new(MockUserRepository)
		mockOTP := new(MockOTPService)
		svc := NewUserService(mockRepo, mockOTP, nil)

		phone := "01012340003"
		user := createTestUser("manager-id", phone, model.RoleBranchManager)
		mockOTP.On("Verify", ctx, phone, "123456").Return(true)
		mockRepo.On("GetByPhone", ctx, phone).Return(user, nil)
		mockRepo.On("ListStoreIDs", ctx, "manager-id").Return([]string{"5", "6"}, nil)

		result, err := svc.LoginOrRegister(ctx, phone, "123456", RegisterInput{})

		require.NoError(t, err)
		claims, err := utils.ParseToken(result.Token)
		require.NoError(t, err)
		assert.Equal(t, []string{"5", "6"}, claims.StoreIDs)
		assert.Equal(t, model.RoleBranchManager, claims.Role)
	})

	t.Run("Invalid verification code", func(t *testing.T) {
		mockRepo := new(MockUserRepository)
		mockOTP := new(MockOTPService)
		svc := NewUserService(mockRepo, mockOTP, nil)

		mockOTP.On("Verify", ctx, "01012340004", "000000").Return(false)

		result, err := svc.LoginOrRegister(ctx, "01012340004", "000000", RegisterInput{})

		assert.ErrorIs(t, err, ErrInvalidOTP)
		assert.Nil(t, result)
		mockRepo.AssertNotCalled(t, "GetByPhone", mock.Anything, mock.Anything)
	})
}

func TestSendOTP(t *testing.T) {
	ctx := context.Background()
	mockOTP := new(MockOTPService)
	svc := NewUserService(new(MockUserRepository), mockOTP, nil)

	mockOTP.On("Send", ctx, "01012345678").Return("123456", nil)

	assert.NoError(t, svc.SendOTP(ctx, "01012345678"))
	mockOTP.AssertExpectations(t)
}

func TestGetUsersIsStoreScoped(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	svc := NewUserService(mockRepo, new(MockOTPService), nil)

	users := []model.User{*createTestUser("user1", "01000000001", model.RoleCustomer)}
	mockRepo.On("GetList", ctx, []string{"5"}, false, 0, 10).Return(users, int64(1), nil)
	mockRepo.On("GetList", ctx, []string(nil), true, 10, 10).Return(users, int64(1), nil)

	result, total, err := svc.GetUsers(ctx, security.New(security.RoleStoreManager, []string{"5"}), utils.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, result, 1)
	assert.Equal(t, int64(1), total)

	_, _, err = svc.GetUsers(ctx, security.New(security.RoleSuperAdmin, nil), utils.Pagination{Page: 2, Limit: 10})
	require.NoError(t, err)

	_, _, err = svc.GetUsers(ctx, security.New(security.RoleCustomer, nil), utils.Pagination{})
	assert.ErrorIs(t, err, errs.ErrForbidden)
	mockRepo.AssertExpectations(t)
}

func TestAssignStore(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	svc := NewUserService(mockRepo, new(MockOTPService), nil)

	mockRepo.On("GetByID", ctx, "manager-id").Return(createTestUser("manager-id", "01000000009", model.RoleStoreManager), nil)
	mockRepo.On("AssignStore", ctx, "manager-id", "7").Return(nil)

	err := svc.AssignStore(ctx, security.New(security.RoleBranchManager, []string{"7"}), "manager-id", "7")
	assert.ErrorIs(t, err, errs.ErrForbidden, "branch managers cannot edit roles")

	require.NoError(t, svc.AssignStore(ctx, security.SystemActor(), "manager-id", "7"))
	mockRepo.AssertExpectations(t)
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	svc := NewUserService(mockRepo, new(MockOTPService), nil)

	user := createTestUser("victim", "01000000010", model.RoleCustomer)
	mockRepo.On("GetByID", ctx, "victim").Return(user, nil)
	mockRepo.On("Delete", ctx, "victim").Return(nil)

	assert.ErrorIs(t, svc.DeleteUser(ctx, security.New(security.RoleBranchManager, nil), "victim"), errs.ErrForbidden)
	require.NoError(t, svc.DeleteUser(ctx, security.SystemActor(), "victim"))
	mockRepo.AssertExpectations(t)

	mockRepo.On("GetByID", ctx, "ghost").Return(nil, errs.ErrNotFound)
	err := svc.DeleteUser(ctx, security.SystemActor(), "ghost")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}
