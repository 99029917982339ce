package handler

import (
	"errors"
	"io"
	"net/http"

	"commission-service/internal/middleware"
	"commission-service/internal/service"
	"commission-service/pkg/pagination"
	"commission-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CommissionHandler struct {
	commissionService service.CommissionService
}

func NewCommissionHandler(commissionService service.CommissionService) *CommissionHandler {
	return &CommissionHandler{commissionService: commissionService}
}

func (h *CommissionHandler) RegisterRoutes(router *gin.RouterGroup) {
	commissions := router.Group("/api/commissions")
	commissions.Use(middleware.RequireRole("admin", "manager", "staff"))
	{
		commissions.GET("", h.ListCommissions)
		commissions.GET("/:id", h.GetCommission)
		commissions.POST("/events", h.CreateCommission)
		commissions.PUT("/:id/approve", middleware.RequireRole("admin", "manager"), h.ApproveCommission)
		commissions.PUT("/:id/pay", middleware.RequireRole("admin"), h.MarkPaid)
		commissions.PUT("/:id/cancel", middleware.RequireRole("admin", "manager"), h.CancelCommission)
		commissions.DELETE("/:id", middleware.RequireRole("admin"), h.DeleteCommission)
	}
}

// CreateCommission ingests a revenue event. Re-delivered events return the existing commission.
// @Summary      Ingest revenue event
// @Tags         commissions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        event  body      service.RevenueEvent  true  "Revenue event"
// @Success      201    {object}  response.Response{data=service.CreateCommissionResult}
// @Success      200    {object}  response.Response{data=service.CreateCommissionResult}
// @Failure      400    {object}  response.Response
// @Router       /api/commissions/events [post]
func (h *CommissionHandler) CreateCommission(c *gin.Context) {
	var event service.RevenueEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	if actor := actorID(c); actor != uuid.Nil {
		event.Actor = &actor
	}

	result, err := h.commissionService.CreateCommission(c.Request.Context(), event)
	if err != nil {
		if errors.Is(err, service.ErrNoEligibleCommission) {
			c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
				"outcome": service.OutcomeSkipped,
				"reason":  err.Error(),
			}))
			return
		}
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome == service.OutcomeDuplicateIgnored {
		status = http.StatusOK
	}
	c.JSON(status, response.Success(status, result))
}

// ListCommissions returns commissions filtered by employee, status or source
func (h *CommissionHandler) ListCommissions(c *gin.Context) {
	p := pagination.Parse(c)

	commissions, total, err := h.commissionService.ListCommissions(c.Request.Context(), service.CommissionFilter{
		EmployeeID: c.Query("employee_id"),
		Status:     c.Query("status"),
		SourceType: c.Query("source_type"),
		SourceID:   c.Query("source_id"),
		Page:       p.Page,
		Limit:      p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"commissions": commissions,
		"total":       total,
		"page":        p.Page,
		"limit":       p.Limit,
	}))
}

func (h *CommissionHandler) GetCommission(c *gin.Context) {
	commission, err := h.commissionService.GetCommission(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, commission))
}

// ApproveCommission approves a pending commission
// @Summary      Approve commission
// @Tags         commissions
// @Security     BearerAuth
// @Produce      json
// @Param        id    path      string                            true   "Commission ID"
// @Param        body  body      service.ApproveCommissionRequest  false  "Approval notes"
// @Success      200   {object}  response.Response{data=service.CommissionResponse}
// @Failure      400   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /api/commissions/{id}/approve [put]
func (h *CommissionHandler) ApproveCommission(c *gin.Context) {
	var req service.ApproveCommissionRequest
	// notes are optional, so an empty body is accepted
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.commissionService.ApproveCommission(c.Request.Context(), c.Param("id"), actorID(c), req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// MarkPaid records payment of an approved commission
func (h *CommissionHandler) MarkPaid(c *gin.Context) {
	var req service.PaymentInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	actor := actorID(c)
	req.PaidBy = &actor

	result, err := h.commissionService.MarkPaid(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// CancelCommission cancels a pending or approved commission with a reason
func (h *CommissionHandler) CancelCommission(c *gin.Context) {
	var req service.CancelCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.commissionService.CancelCommission(c.Request.Context(), c.Param("id"), actorID(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// DeleteCommission soft-deletes a cancelled commission
func (h *CommissionHandler) DeleteCommission(c *gin.Context) {
	if err := h.commissionService.DeleteCommission(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]string{"id": c.Param("id")}))
}
