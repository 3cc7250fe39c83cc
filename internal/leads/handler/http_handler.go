package handler

import (
	"net/http"
	"strconv"

	"peachhaus_crm_backend/internal/leads/repository"
	"peachhaus_crm_backend/internal/leads/service"
	"peachhaus_crm_backend/platform/httpkit"
	"peachhaus_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PATCH("/:id/stage", h.ChangeStage)
	rg.GET("/:id/timeline", h.Timeline)
	rg.GET("/:id/communications", h.Communications)
}

type createLeadRequest struct {
	FirstName       string `json:"firstName" validate:"required"`
	LastName        string `json:"lastName"`
	Email           string `json:"email" validate:"omitempty,email"`
	Phone           string `json:"phone"`
	PropertyAddress string `json:"propertyAddress"`
	ServiceType     string `json:"serviceType" validate:"omitempty,oneof=full_service cohosting"`
	Notes           string `json:"notes"`
	Source          string `json:"source"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	lead, err := h.svc.Create(c.Request.Context(), service.CreateLeadInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Phone:           req.Phone,
		PropertyAddress: req.PropertyAddress,
		ServiceType:     req.ServiceType,
		Notes:           req.Notes,
		Source:          req.Source,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, leadResponse(lead))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseLeadID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, leadResponse(lead))
}

type changeStageRequest struct {
	Stage         string `json:"stage" validate:"required"`
	TriggerSource string `json:"triggerSource"`
}

func (h *Handler) ChangeStage(c *gin.Context) {
	id, ok := parseLeadID(c)
	if !ok {
		return
	}

	var req changeStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	source := req.TriggerSource
	if source == "" {
		source = "dashboard"
	}

	previousStage, err := h.svc.ChangeStage(c.Request.Context(), id, req.Stage, source)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{
		"leadId":        id,
		"stage":         req.Stage,
		"previousStage": previousStage,
	})
}

func (h *Handler) Timeline(c *gin.Context) {
	id, ok := parseLeadID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	items, err := h.svc.Timeline(c.Request.Context(), id, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) Communications(c *gin.Context) {
	id, ok := parseLeadID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	items, err := h.svc.Communications(c.Request.Context(), id, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": items})
}

func parseLeadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id")
		return uuid.Nil, false
	}
	return id, true
}

func leadResponse(lead repository.Lead) gin.H {
	return gin.H{
		"id":              lead.ID,
		"firstName":       lead.FirstName,
		"lastName":        lead.LastName,
		"email":           lead.Email,
		"phone":           lead.Phone,
		"propertyAddress": lead.PropertyAddress,
		"serviceType":     lead.ServiceType,
		"stage":           lead.Stage,
		"notes":           lead.Notes,
		"aiSummary":       lead.AISummary,
		"createdAt":       lead.CreatedAt,
		"updatedAt":       lead.UpdatedAt,
	}
}
