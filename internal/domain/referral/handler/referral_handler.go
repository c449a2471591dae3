package handler

import (
	"net/http"

	"reward_engine/internal/domain/referral/service"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReferralHandler struct {
	service service.ReferralService
}

func NewReferralHandler(service service.ReferralService) *ReferralHandler {
	return &ReferralHandler{service: service}
}

type RegisterInput struct {
	Code string `json:"code" binding:"required,max=16"`
}

// Register 已注册用户补填推荐码
func (h *ReferralHandler) Register(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	userID, _ := middleware.GetUserID(c)
	ref, err := h.service.RegisterReferral(c.Request.Context(), userID, input.Code)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, ref)
}

func (h *ReferralHandler) ListMine(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	list, err := h.service.ListMine(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

func (h *ReferralHandler) Verify(c *gin.Context) {
	perms, _ := middleware.GetPermissions(c)
	ref, err := h.service.VerifyReferral(c.Request.Context(), perms, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, ref)
}

func (h *ReferralHandler) Pay(c *gin.Context) {
	perms, _ := middleware.GetPermissions(c)
	ref, payback, err := h.service.PayReferralReward(c.Request.Context(), perms, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"referral": ref, "payback": payback})
}
