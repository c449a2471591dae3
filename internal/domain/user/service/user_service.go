package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	refModel "reward_engine/internal/domain/referral/model"
	"reward_engine/internal/domain/user/model"
	"reward_engine/internal/domain/user/repository"
	"reward_engine/internal/pkg/otp"
	"reward_engine/pkg/errs"
	"reward_engine/pkg/logger"
	"reward_engine/pkg/security"
	"reward_engine/pkg/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidOTP = errors.New("invalid verification code")

// ReferralRegistrar 注册时绑定推荐关系
type ReferralRegistrar interface {
	RegisterReferral(ctx context.Context, newUserID, code string) (*refModel.Referral, error)
}

// RegisterInput 首次登录时的注册信息
type RegisterInput struct {
	Name         string
	StoreID      string
	ReferralCode string
}

// LoginResult 登录结果
type LoginResult struct {
	Token    string      `json:"token"`
	ExpireAt *time.Time  `json:"expireAt"`
	User     *model.User `json:"user"`
	IsNew    bool        `json:"isNew"`
}

// UserService 用户服务接口
type UserService interface {
	SendOTP(ctx context.Context, phone string) error
	LoginOrRegister(ctx context.Context, phone, code string, in RegisterInput) (*LoginResult, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUsers(ctx context.Context, actor security.Permissions, page utils.Pagination) ([]model.User, int64, error)
	UpdateProfile(ctx context.Context, userID, name string) (*model.User, error)
	AssignStore(ctx context.Context, actor security.Permissions, userID, storeID string) error
	DeleteUser(ctx context.Context, actor security.Permissions, id string) error
}

// userService 实现
type userService struct {
	repo      repository.UserRepository
	otp       otp.OTPService
	referrals ReferralRegistrar
}

// NewUserService 创建用户服务
func NewUserService(repo repository.UserRepository, otp otp.OTPService, referrals ReferralRegistrar) UserService {
	return &userService{repo: repo, otp: otp, referrals: referrals}
}

func (s *userService) SendOTP(ctx context.Context, phone string) error {
	_, err := s.otp.Send(ctx, phone)
	return err
}

// LoginOrRegister 登录或注册
func (s *userService) LoginOrRegister(ctx context.Context, phone, code string, in RegisterInput) (*LoginResult, error) {
	// 1. 验证验证码
	if !s.otp.Verify(ctx, phone, code) {
		return nil, ErrInvalidOTP
	}

	// 2. 查询用户是否存在，不存在则注册
	isNew := false
	user, err := s.repo.GetByPhone(ctx, phone)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		user, isNew, err = s.register(ctx, phone, in)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case !user.PhoneVerified:
		user.PhoneVerified = true
		if err := s.repo.Update(ctx, user); err != nil {
			return nil, err
		}
	}

	// 3. 推荐码只在首次注册时处理，失败不影响注册
	if isNew && in.ReferralCode != "" && s.referrals != nil {
		if _, err := s.referrals.RegisterReferral(ctx, user.ID, in.ReferralCode); err != nil {
			logger.Log.Warn("referral registration at signup failed",
				zap.String("user_id", user.ID),
				zap.String("code", in.ReferralCode),
				zap.Error(err))
		}
	}

	// 4. 管理员携带分配门店
	var storeIDs []string
	if user.Role != model.RoleCustomer {
		if storeIDs, err = s.repo.ListStoreIDs(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	// 5. 生成 Token
	token, expireAt, err := utils.GenerateToken(user.ID, user.Role, storeIDs)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Token: token, ExpireAt: expireAt, User: user, IsNew: isNew}, nil
}

// register 推荐码冲突时重新生成；手机号冲突说明并发注册，直接读取已存在的用户
func (s *userService) register(ctx context.Context, phone string, in RegisterInput) (*model.User, bool, error) {
	name := in.Name
	if name == "" && len(phone) >= 4 {
		name = "User_" + phone[len(phone)-4:] // 默认昵称
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		user := &model.User{
			Phone:         phone,
			PhoneVerified: true,
			Name:          name,
			Role:          model.RoleCustomer,
			StoreID:       in.StoreID,
			ReferralCode:  utils.NewReferralCode(),
		}
		err := s.repo.Create(ctx, user)
		if err == nil {
			return user, true, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, err
		}
		lastErr = err
		if existing, getErr := s.repo.GetByPhone(ctx, phone); getErr == nil {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("create user: %w", lastErr)
}

// GetUser 获取单个用户
func (s *userService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetUsers 获取用户列表（分页），按操作者门店范围过滤
func (s *userService) GetUsers(ctx context.Context, actor security.Permissions, page utils.Pagination) ([]model.User, int64, error) {
	if !actor.HasPermission(security.PermissionUserRead) {
		return nil, 0, errs.ErrForbidden
	}
	stores, all := actor.AccessibleStores()
	offset, limit := page.GetPageOffset()
	return s.repo.GetList(ctx, stores, all, offset, limit)
}

func (s *userService) UpdateProfile(ctx context.Context, userID, name string) (*model.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Name = name
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// AssignStore 分配管理门店，重复分配不报错
func (s *userService) AssignStore(ctx context.Context, actor security.Permissions, userID, storeID string) error {
	if !actor.HasPermission(security.PermissionRoleEdit) || !actor.CanAccessStore(storeID) {
		return errs.ErrForbidden
	}
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return err
	}
	return s.repo.AssignStore(ctx, userID, storeID)
}

// DeleteUser 软删除
func (s *userService) DeleteUser(ctx context.Context, actor security.Permissions, id string) error {
	if !actor.HasPermission(security.PermissionUserDelete) {
		return errs.ErrForbidden
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanAccessStore(user.StoreID) {
		return errs.ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}
