package handler

import (
	"net/http"
	"time"

	"reward_engine/internal/domain/coupon/model"
	"reward_engine/internal/domain/coupon/service"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/pkg/response"

	"github.com/gin-gonic/gin"
)

type CouponHandler struct {
	service service.CouponService
}

func NewCouponHandler(service service.CouponService) *CouponHandler {
	return &CouponHandler{service: service}
}

type CreateCouponInput struct {
	Name       string    `json:"name" binding:"required,max=100"`
	Total      int       `json:"total" binding:"min=0"`
	Amount     int64     `json:"amount" binding:"required,min=1"`
	PerUserCap int       `json:"perUserCap" binding:"min=0"`
	ValidDays  int       `json:"validDays" binding:"min=0"`
	StartTime  time.Time `json:"startTime" binding:"required"`
	EndTime    time.Time `json:"endTime" binding:"required"`
}

func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	var input CreateCouponInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	perms, _ := middleware.GetPermissions(c)
	coupon, err := h.service.CreateCoupon(c.Request.Context(), perms, service.CreateCouponInput{
		Name:       input.Name,
		Total:      input.Total,
		Amount:     input.Amount,
		PerUserCap: input.PerUserCap,
		ValidDays:  input.ValidDays,
		StartTime:  input.StartTime,
		EndTime:    input.EndTime,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, coupon)
}

// issued 跳过发放不是错误，用业务码告知原因
func issued(c *gin.Context, res *model.IssueResult) {
	switch {
	case res.Issued:
		response.Success(c, res)
	case res.Reason == model.ReasonOutOfStock:
		response.Fail(c, response.ErrCouponOutOfStock, "coupon out of stock")
	case res.Reason == model.ReasonCapReached:
		response.Fail(c, response.ErrCouponClaimed, "coupon limit reached")
	default:
		response.Fail(c, response.ErrCouponNotFound, "coupon not available")
	}
}

// ClaimCoupon 用户自助领券，受同样的每人上限与库存约束
func (h *CouponHandler) ClaimCoupon(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	res, err := h.service.IssueCoupon(c.Request.Context(), userID, c.Param("id"), "claim")
	if err != nil {
		response.FromError(c, err)
		return
	}
	issued(c, res)
}

// SendCouponInput 管理员发券输入
type SendCouponInput struct {
	UserID   string `json:"userId" binding:"required"`
	CouponID string `json:"couponId" binding:"required"`
}

// SendCoupon 管理员给指定用户发券
func (h *CouponHandler) SendCoupon(c *gin.Context) {
	var input SendCouponInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	perms, _ := middleware.GetPermissions(c)
	actorID, _ := middleware.GetUserID(c)
	res, err := h.service.SendCoupon(c.Request.Context(), perms, actorID, input.UserID, input.CouponID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	issued(c, res)
}

func (h *CouponHandler) UseCoupon(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	uc, err := h.service.UseCoupon(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, uc)
}

func (h *CouponHandler) ListMine(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	list, err := h.service.ListMine(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}
