package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cptrack/cptrack-api/internal/dto"
	"github.com/cptrack/cptrack-api/internal/models"
	"github.com/cptrack/cptrack-api/internal/service"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
	"github.com/cptrack/cptrack-api/pkg/response"
)

// PaperHandler exposes concept paper endpoints.
type PaperHandler struct {
	workflow *service.WorkflowService
}

// NewPaperHandler constructs PaperHandler.
func NewPaperHandler(workflow *service.WorkflowService) *PaperHandler {
	return &PaperHandler{workflow: workflow}
}

// Create godoc
// @Summary Submit a concept paper
// @Tags Papers
// @Accept json
// @Produce json
// @Param payload body dto.CreatePaperRequest true "Paper payload"
// @Success 201 {object} response.Envelope
// @Router /papers [post]
func (h *PaperHandler) Create(c *gin.Context) {
	var req dto.CreatePaperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.workflow.CreatePaper(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// List godoc
// @Summary List concept papers
// @Tags Papers
// @Produce json
// @Param status query string false "Comma-separated status filter"
// @Param requisitionerId query string false "Filter by requisitioner"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /papers [get]
func (h *PaperHandler) List(c *gin.Context) {
	var query dto.PaperQuery
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				query.Status = append(query.Status, models.PaperStatus(part))
			}
		}
	}
	query.RequisitionerID = c.Query("requisitionerId")
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		query.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		query.Offset = offset
	}

	papers, err := h.workflow.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, papers, nil)
}

// Get godoc
// @Summary Get a paper with its workflow stages
// @Tags Papers
// @Produce json
// @Param id path string true "Paper ID"
// @Success 200 {object} response.Envelope
// @Router /papers/{id} [get]
func (h *PaperHandler) Get(c *gin.Context) {
	detail, err := h.workflow.GetDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
