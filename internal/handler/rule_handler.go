package handler

import (
	"net/http"
	"time"

	"commission-service/internal/middleware"
	"commission-service/internal/service"
	"commission-service/pkg/pagination"
	"commission-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RuleHandler struct {
	ruleService       service.RuleService
	commissionService service.CommissionService
}

func NewRuleHandler(ruleService service.RuleService, commissionService service.CommissionService) *RuleHandler {
	return &RuleHandler{ruleService: ruleService, commissionService: commissionService}
}

func (h *RuleHandler) RegisterRoutes(router *gin.RouterGroup) {
	rules := router.Group("/api/commission-rules")
	rules.Use(middleware.RequireRole("admin", "manager"))
	{
		rules.GET("", h.GetRules)
		rules.GET("/eligible", h.ListEligibleRules)
		rules.GET("/:id", h.GetRule)
		rules.POST("", h.CreateRule)
		rules.PUT("/:id", h.UpdateRule)
		rules.DELETE("/:id", middleware.RequireRole("admin"), h.DeleteRule)
	}
}

// GetRules lists commission rules, optionally for one employee
// @Summary      List commission rules
// @Tags         commission-rules
// @Security     BearerAuth
// @Produce      json
// @Param        employee_id  query     string  false  "Employee ID"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Items per page (default 20)"
// @Success      200          {object}  response.Response{data=object}
// @Router       /api/commission-rules [get]
func (h *RuleHandler) GetRules(c *gin.Context) {
	p := pagination.Parse(c)

	rules, total, err := h.ruleService.GetRules(c.Request.Context(), c.Query("employee_id"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"rules": rules,
		"total": total,
		"page":  p.Page,
		"limit": p.Limit,
	}))
}

// GetRule returns one commission rule
func (h *RuleHandler) GetRule(c *gin.Context) {
	rule, err := h.ruleService.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

// CreateRule validates and stores a new commission rule
// @Summary      Create commission rule
// @Tags         commission-rules
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        rule  body      service.RuleRequest  true  "Rule definition"
// @Success      201   {object}  response.Response{data=service.RuleResponse}
// @Failure      400   {object}  response.Response
// @Router       /api/commission-rules [post]
func (h *RuleHandler) CreateRule(c *gin.Context) {
	var req service.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	rule, err := h.ruleService.CreateRule(c.Request.Context(), req, middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rule))
}

// UpdateRule replaces a rule's configuration
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	var req service.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	rule, err := h.ruleService.UpdateRule(c.Request.Context(), c.Param("id"), req, middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

// DeleteRule removes a rule, or deactivates it when commissions reference it
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	result, err := h.ruleService.DeleteRule(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ListEligibleRules is a diagnostic view of which rules are in their effective window
// @Summary      List eligible rule ids
// @Tags         commission-rules
// @Security     BearerAuth
// @Produce      json
// @Param        employee_id  query     string  true   "Employee ID"
// @Param        as_of        query     string  false  "RFC3339 timestamp (default now)"
// @Success      200          {object}  response.Response{data=object}
// @Router       /api/commission-rules/eligible [get]
func (h *RuleHandler) ListEligibleRules(c *gin.Context) {
	employeeID, err := uuid.Parse(c.Query("employee_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "employee_id must be a UUID"))
		return
	}

	var asOf time.Time
	if raw := c.Query("as_of"); raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "as_of must be RFC3339"))
			return
		}
	}

	ids, err := h.commissionService.ListEligibleRules(c.Request.Context(), employeeID, asOf)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"employee_id": employeeID.String(),
		"rule_ids":    ids,
	}))
}
