package handler

import (
	"io"
	"net/http"

	"reward_engine/internal/domain/participation/model"
	"reward_engine/internal/domain/participation/service"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/pkg/response"
	"reward_engine/pkg/utils"

	"github.com/gin-gonic/gin"
)

// maxProofBytes 凭证只包含引用和少量字段
const maxProofBytes = 64 << 10

type ParticipationHandler struct {
	service service.ParticipationService
}

func NewParticipationHandler(service service.ParticipationService) *ParticipationHandler {
	return &ParticipationHandler{service: service}
}

type RejectInput struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

func (h *ParticipationHandler) Start(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	p, err := h.service.StartMission(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}

// SubmitProof 请求体即凭证本身，按任务类型校验后原样保存
func (h *ParticipationHandler) SubmitProof(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProofBytes+1))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	if len(raw) > maxProofBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.ErrInvalidParam, "proof payload too large")
		return
	}
	userID, _ := middleware.GetUserID(c)
	p, err := h.service.SubmitProof(c.Request.Context(), userID, c.Param("id"), raw)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}

func (h *ParticipationHandler) GetMine(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	list, err := h.service.GetMine(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

func (h *ParticipationHandler) ListForReview(c *gin.Context) {
	var page utils.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	perms, _ := middleware.GetPermissions(c)
	status := model.Status(c.DefaultQuery("status", string(model.StatusCompleted)))
	list, total, err := h.service.ListForReview(c.Request.Context(), perms, status, page)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.NewPageResult(list, total, page))
}

func (h *ParticipationHandler) Approve(c *gin.Context) {
	perms, _ := middleware.GetPermissions(c)
	reviewerID, _ := middleware.GetUserID(c)
	p, err := h.service.AdminApprove(c.Request.Context(), perms, reviewerID, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}

func (h *ParticipationHandler) Reject(c *gin.Context) {
	var input RejectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	perms, _ := middleware.GetPermissions(c)
	reviewerID, _ := middleware.GetUserID(c)
	p, err := h.service.AdminReject(c.Request.Context(), perms, reviewerID, c.Param("id"), input.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}
