package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cptrack/cptrack-api/internal/dto"
	"github.com/cptrack/cptrack-api/internal/service"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
	"github.com/cptrack/cptrack-api/pkg/response"
)

// WorkflowHandler exposes stage transition endpoints.
type WorkflowHandler struct {
	workflow *service.WorkflowService
	overdue  *service.OverdueService
}

// NewWorkflowHandler constructs WorkflowHandler.
func NewWorkflowHandler(workflow *service.WorkflowService, overdue *service.OverdueService) *WorkflowHandler {
	return &WorkflowHandler{workflow: workflow, overdue: overdue}
}

// Advance godoc
// @Summary Complete a stage and open the next one
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Stage ID"
// @Param payload body dto.AdvanceStageRequest false "Optional remarks"
// @Success 200 {object} response.Envelope
// @Router /stages/{id}/advance [post]
func (h *WorkflowHandler) Advance(c *gin.Context) {
	var req dto.AdvanceStageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	detail, err := h.workflow.Advance(c.Request.Context(), c.Param("id"), req.Remarks, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Return godoc
// @Summary Send a stage back to its predecessor
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Stage ID"
// @Param payload body dto.ReturnStageRequest true "Return remarks"
// @Success 200 {object} response.Envelope
// @Router /stages/{id}/return [post]
func (h *WorkflowHandler) Return(c *gin.Context) {
	var req dto.ReturnStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.workflow.ReturnToPrevious(c.Request.Context(), c.Param("id"), req.Remarks, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Reject godoc
// @Summary Terminally reject the paper at this stage
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Stage ID"
// @Param payload body dto.RejectStageRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /stages/{id}/reject [post]
func (h *WorkflowHandler) Reject(c *gin.Context) {
	var req dto.RejectStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.workflow.Reject(c.Request.Context(), c.Param("id"), req.Reason, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Reassign godoc
// @Summary Reassign a stage to another user
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Stage ID"
// @Param payload body dto.ReassignStageRequest true "New assignee"
// @Success 200 {object} response.Envelope
// @Router /stages/{id}/reassign [post]
func (h *WorkflowHandler) Reassign(c *gin.Context) {
	var req dto.ReassignStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	stage, err := h.workflow.Reassign(c.Request.Context(), c.Param("id"), req.NewUserID, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stage, nil)
}

// ScanOverdue godoc
// @Summary Run an overdue sweep immediately
// @Tags Workflow
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /workflow/overdue-scan [post]
func (h *WorkflowHandler) ScanOverdue(c *gin.Context) {
	report, err := h.overdue.RunOnce(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
