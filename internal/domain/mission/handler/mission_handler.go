package handler

import (
	"net/http"

	"reward_engine/internal/domain/mission/model"
	"reward_engine/internal/domain/mission/service"
	"reward_engine/internal/pkg/middleware"
	"reward_engine/pkg/response"

	"github.com/gin-gonic/gin"
)

type MissionHandler struct {
	service service.CatalogService
}

func NewMissionHandler(service service.CatalogService) *MissionHandler {
	return &MissionHandler{service: service}
}

// MissionView 任务详情，附带凭证契约供客户端渲染表单
type MissionView struct {
	*model.MissionDefinition
	Schema model.ProofSchema `json:"schema"`
}

func (h *MissionHandler) ListActive(c *gin.Context) {
	defs, err := h.service.ListActive(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, defs)
}

func (h *MissionHandler) GetMission(c *gin.Context) {
	def, err := h.service.GetActiveMissionDefinition(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, MissionView{MissionDefinition: def, Schema: def.Schema()})
}

type CreateMissionInput struct {
	Type         model.MissionType      `json:"type" binding:"required,oneof=challenge sns review referral attendance"`
	Title        string                 `json:"title" binding:"required,max=100"`
	Description  string                 `json:"description"`
	RewardAmount int64                  `json:"rewardAmount" binding:"min=0"`
	RewardXP     int64                  `json:"rewardXp" binding:"min=0"`
	ProofSchema  model.SchemaDescriptor `json:"proofSchema"`
	Repeatable   bool                   `json:"repeatable"`
}

func (h *MissionHandler) CreateMission(c *gin.Context) {
	var input CreateMissionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	perms, _ := middleware.GetPermissions(c)
	def := &model.MissionDefinition{
		Type:         input.Type,
		Title:        input.Title,
		Description:  input.Description,
		RewardAmount: input.RewardAmount,
		RewardXP:     input.RewardXP,
		ProofSchema:  input.ProofSchema,
		Repeatable:   input.Repeatable,
		Active:       true,
	}
	if err := h.service.CreateMission(c.Request.Context(), perms, def); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, def)
}
