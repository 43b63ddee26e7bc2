package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cptrack/cptrack-api/internal/dto"
	"github.com/cptrack/cptrack-api/internal/service"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
	"github.com/cptrack/cptrack-api/pkg/response"
)

// TemplateHandler exposes the stage registry.
type TemplateHandler struct {
	registry *service.RegistryService
}

// NewTemplateHandler constructs TemplateHandler.
func NewTemplateHandler(registry *service.RegistryService) *TemplateHandler {
	return &TemplateHandler{registry: registry}
}

// List godoc
// @Summary List stage templates in workflow order
// @Tags Templates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stage-templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.registry.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// UpdateMaxDays godoc
// @Summary Change a template's time budget
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.UpdateTemplateMaxDaysRequest true "New budget in days"
// @Success 200 {object} response.Envelope
// @Router /stage-templates/{id} [patch]
func (h *TemplateHandler) UpdateMaxDays(c *gin.Context) {
	var req dto.UpdateTemplateMaxDaysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	tpl, err := h.registry.UpdateMaxDays(c.Request.Context(), c.Param("id"), req.MaxDays)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}
