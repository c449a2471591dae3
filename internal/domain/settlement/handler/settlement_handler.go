package handler

import (
	"net/http"

	"reward_engine/internal/domain/settlement/model"
	"reward_engine/internal/domain/settlement/service"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/pkg/response"
	"reward_engine/pkg/utils"

	"github.com/gin-gonic/gin"
)

type SettlementHandler struct {
	service service.SettlementService
}

func NewSettlementHandler(service service.SettlementService) *SettlementHandler {
	return &SettlementHandler{service: service}
}

type RejectInput struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

type ReconcileInput struct {
	Limit int `json:"limit" binding:"min=0,max=1000"`
}

func (h *SettlementHandler) ListMine(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	list, err := h.service.ListMine(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

func (h *SettlementHandler) ListPaybacks(c *gin.Context) {
	var page utils.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	perms, _ := middleware.GetPermissions(c)
	status := model.PaybackStatus(c.Query("status"))
	list, total, err := h.service.ListPaybacks(c.Request.Context(), perms, status, page)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.NewPageResult(list, total, page))
}

func (h *SettlementHandler) ApprovePayback(c *gin.Context) {
	perms, _ := middleware.GetPermissions(c)
	reviewerID, _ := middleware.GetUserID(c)
	pb, err := h.service.ApprovePayback(c.Request.Context(), perms, reviewerID, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pb)
}

func (h *SettlementHandler) RejectPayback(c *gin.Context) {
	var input RejectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	perms, _ := middleware.GetPermissions(c)
	reviewerID, _ := middleware.GetUserID(c)
	pb, err := h.service.RejectPayback(c.Request.Context(), perms, reviewerID, c.Param("id"), input.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pb)
}

// Reconcile 手动触发对账，与定时任务共用逻辑
func (h *SettlementHandler) Reconcile(c *gin.Context) {
	var input ReconcileInput
	if err := c.ShouldBindJSON(&input); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	if input.Limit == 0 {
		input.Limit = 100
	}
	result, err := h.service.Reconcile(c.Request.Context(), input.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}
