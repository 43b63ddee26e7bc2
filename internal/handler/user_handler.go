package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cptrack/cptrack-api/internal/dto"
	"github.com/cptrack/cptrack-api/internal/service"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
	"github.com/cptrack/cptrack-api/pkg/response"
)

// UserHandler exposes user administration endpoints.
type UserHandler struct {
	users *service.UserService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// AffectedStages godoc
// @Summary Preview stages stranded by deactivating a user
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/affected-stages [get]
func (h *UserHandler) AffectedStages(c *gin.Context) {
	affected, err := h.users.AffectedStages(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, affected, nil)
}

// Deactivate godoc
// @Summary Deactivate a user, reassigning every stage they hold
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body dto.DeactivateUserRequest true "Stage reassignment mapping"
// @Success 204 "No Content"
// @Router /users/{id}/deactivate [post]
func (h *UserHandler) Deactivate(c *gin.Context) {
	var req dto.DeactivateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.users.DeactivateWithReassignment(c.Request.Context(), claimsFromContext(c), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
