package handler

import (
	"errors"
	"net/http"

	"reward_engine/internal/domain/user/service"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/internal/pkg/otp"
	"reward_engine/pkg/response"
	"reward_engine/pkg/utils"

	"github.com/gin-gonic/gin"
)

// UserHandler 用户处理器
type UserHandler struct {
	service service.UserService
}

// NewUserHandler 创建处理器
func NewUserHandler(service service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// SendOTPInput 发送验证码
type SendOTPInput struct {
	Phone string `json:"phone" binding:"required,min=9,max=20"`
}

// LoginInput 登录/注册
type LoginInput struct {
	Phone        string `json:"phone" binding:"required,min=9,max=20"`
	Code         string `json:"code" binding:"required,len=6"`
	Name         string `json:"name" binding:"max=50"`
	StoreID      string `json:"storeId" binding:"max=64"`
	ReferralCode string `json:"referralCode" binding:"max=16"`
}

// UpdateProfileInput 更新资料
type UpdateProfileInput struct {
	Name string `json:"name" binding:"required,max=50"`
}

// AssignStoreInput 分配门店
type AssignStoreInput struct {
	StoreID string `json:"storeId" binding:"required,max=64"`
}

func (h *UserHandler) SendOTP(c *gin.Context) {
	var input SendOTPInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	if err := h.service.SendOTP(c.Request.Context(), input.Phone); err != nil {
		if errors.Is(err, otp.ErrTooFrequent) {
			response.Error(c, http.StatusTooManyRequests, response.ErrTooManyRequests, err.Error())
			return
		}
		response.FromError(c, err)
		return
	}
	response.Success(c, "OTP sent")
}

// LoginOrRegister 验证码登录，首次登录自动注册
func (h *UserHandler) LoginOrRegister(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.LoginOrRegister(c.Request.Context(), input.Phone, input.Code, service.RegisterInput{
		Name:         input.Name,
		StoreID:      input.StoreID,
		ReferralCode: input.ReferralCode,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidOTP) {
			response.Error(c, http.StatusUnauthorized, response.ErrAuthFailed, err.Error())
			return
		}
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// GetMe 当前用户及余额
func (h *UserHandler) GetMe(c *gin.Context) {
	uid, ok := middleware.GetUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "User not authenticated")
		return
	}
	user, err := h.service.GetUser(c.Request.Context(), uid)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, user)
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	uid, ok := middleware.GetUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "User not authenticated")
		return
	}
	var input UpdateProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	user, err := h.service.UpdateProfile(c.Request.Context(), uid, input.Name)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, user)
}

// GetUsers 管理端用户列表
func (h *UserHandler) GetUsers(c *gin.Context) {
	perms, _ := middleware.GetPermissions(c)
	var page utils.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	users, total, err := h.service.GetUsers(c.Request.Context(), perms, page)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.NewPageResult(users, total, page))
}

// GetUser 获取单个用户
func (h *UserHandler) GetUser(c *gin.Context) {
	perms, _ := middleware.GetPermissions(c)
	user, err := h.service.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	if !perms.CanAccessStore(user.StoreID) {
		response.Error(c, http.StatusForbidden, response.ErrNoPermission, "store not accessible")
		return
	}
	response.Success(c, user)
}

func (h *UserHandler) AssignStore(c *gin.Context) {
	perms, _ := middleware.GetPermissions(c)
	var input AssignStoreInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	if err := h.service.AssignStore(c.Request.Context(), perms, c.Param("id"), input.StoreID); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, true)
}

// DeleteUser 删除用户
func (h *UserHandler) DeleteUser(c *gin.Context) {
	perms, _ := middleware.GetPermissions(c)
	if err := h.service.DeleteUser(c.Request.Context(), perms, c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, true)
}
