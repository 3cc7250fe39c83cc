package handler

import (
	"errors"
	"net/http"

	"peachhaus_crm_backend/internal/automation/repository"
	"peachhaus_crm_backend/internal/automation/service"
	"peachhaus_crm_backend/platform/httpkit"
	"peachhaus_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	dispatcher *service.Dispatcher
	rules      *repository.Repository
	val        *validator.Validator
}

func New(dispatcher *service.Dispatcher, rules *repository.Repository, val *validator.Validator) *Handler {
	return &Handler{dispatcher: dispatcher, rules: rules, val: val}
}

// RegisterTrigger mounts the public stage-change trigger. The endpoint is
// called by the dashboard and by webhook integrations, so it answers CORS
// preflight permissively and requires no auth.
func (h *Handler) RegisterTrigger(rg *gin.RouterGroup) {
	rg.Use(permissiveCORS())
	rg.OPTIONS("/process-stage-change", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	rg.POST("/process-stage-change", h.ProcessStageChange)
}

// RegisterAdminRoutes mounts rule management for admins.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListRules)
	rg.POST("", h.CreateRule)
	rg.PUT("/:id", h.UpdateRule)
	rg.DELETE("/:id", h.DeleteRule)
}

func permissiveCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Next()
	}
}

type processStageChangeRequest struct {
	LeadID        string `json:"leadId" validate:"required,uuid"`
	NewStage      string `json:"newStage" validate:"required"`
	PreviousStage string `json:"previousStage"`
	AutoTriggered bool   `json:"autoTriggered"`
	TriggerSource string `json:"triggerSource"`
}

// ProcessStageChange runs the full automation set for a stage transition.
// Any top-level failure maps to 500 with the error message; per-rule
// failures are absorbed by the dispatcher and still count as processed.
func (h *Handler) ProcessStageChange(c *gin.Context) {
	var req processStageChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.val.Struct(req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	leadID, err := uuid.Parse(req.LeadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid lead id"})
		return
	}

	processed, err := h.dispatcher.ProcessStageChange(c.Request.Context(), service.StageChange{
		LeadID:        leadID,
		NewStage:      req.NewStage,
		PreviousStage: req.PreviousStage,
		AutoTriggered: req.AutoTriggered,
		TriggerSource: req.TriggerSource,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"automationsProcessed": processed,
	})
}

type ruleRequest struct {
	TriggerStage    string  `json:"triggerStage" validate:"required"`
	ActionType      string  `json:"actionType" validate:"required,oneof=sms email ai_qualify"`
	TemplateContent string  `json:"templateContent"`
	TemplateSubject *string `json:"templateSubject"`
	DelayMinutes    int     `json:"delayMinutes" validate:"gte=0"`
	IsActive        *bool   `json:"isActive"`
	AIEnabled       bool    `json:"aiEnabled"`
}

func (r ruleRequest) toParams() repository.UpsertRuleParams {
	isActive := true
	if r.IsActive != nil {
		isActive = *r.IsActive
	}
	return repository.UpsertRuleParams{
		TriggerStage:    r.TriggerStage,
		ActionType:      r.ActionType,
		TemplateContent: r.TemplateContent,
		TemplateSubject: r.TemplateSubject,
		DelayMinutes:    r.DelayMinutes,
		IsActive:        isActive,
		AIEnabled:       r.AIEnabled,
	}
}

func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.rules.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": ruleResponses(rules)})
}

func (h *Handler) CreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := h.rules.Create(c.Request.Context(), req.toParams())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, ruleResponse(rule))
}

func (h *Handler) UpdateRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid rule id")
		return
	}

	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := h.rules.Update(c.Request.Context(), id, req.toParams())
	if errors.Is(err, repository.ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "automation rule not found")
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ruleResponse(rule))
}

func (h *Handler) DeleteRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid rule id")
		return
	}

	err = h.rules.Delete(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "automation rule not found")
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func ruleResponse(r repository.Rule) gin.H {
	return gin.H{
		"id":              r.ID,
		"triggerStage":    r.TriggerStage,
		"actionType":      r.ActionType,
		"templateContent": r.TemplateContent,
		"templateSubject": r.TemplateSubject,
		"delayMinutes":    r.DelayMinutes,
		"isActive":        r.IsActive,
		"aiEnabled":       r.AIEnabled,
		"createdAt":       r.CreatedAt,
		"updatedAt":       r.UpdatedAt,
	}
}

func ruleResponses(rules []repository.Rule) []gin.H {
	out := make([]gin.H, 0, len(rules))
	for _, r := range rules {
		out = append(out, ruleResponse(r))
	}
	return out
}
