package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cptrack/cptrack-api/internal/service"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
	"github.com/cptrack/cptrack-api/pkg/response"
)

// AttachmentHandler exposes paper attachment endpoints.
type AttachmentHandler struct {
	attachments *service.AttachmentService
}

// NewAttachmentHandler constructs AttachmentHandler.
func NewAttachmentHandler(attachments *service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// Upload godoc
// @Summary Attach a file to a concept paper
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Paper ID"
// @Param file formData file true "File to attach"
// @Success 201 {object} response.Envelope
// @Router /papers/{id}/attachments [post]
func (h *AttachmentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	var uploadedBy string
	if claims := claimsFromContext(c); claims != nil {
		uploadedBy = claims.UserID
	}

	attachment, err := h.attachments.Upload(c.Request.Context(), service.UploadParams{
		PaperID:     c.Param("id"),
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		SizeBytes:   fileHeader.Size,
		UploadedBy:  uploadedBy,
		Body:        file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachment)
}

// List godoc
// @Summary List a paper's attachments
// @Tags Attachments
// @Produce json
// @Param id path string true "Paper ID"
// @Success 200 {object} response.Envelope
// @Router /papers/{id}/attachments [get]
func (h *AttachmentHandler) List(c *gin.Context) {
	attachments, err := h.attachments.ListByPaper(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attachments, nil)
}

// DownloadLink godoc
// @Summary Issue a signed download link for an attachment
// @Tags Attachments
// @Produce json
// @Param id path string true "Attachment ID"
// @Success 200 {object} response.Envelope
// @Router /attachments/{id}/download-link [post]
func (h *AttachmentHandler) DownloadLink(c *gin.Context) {
	link, err := h.attachments.DownloadLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Stream an attachment via a signed token
// @Tags Attachments
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /attachments/download [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	attachment, file, err := h.attachments.Resolve(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", `attachment; filename="`+attachment.FileName+`"`)
	c.Header("Content-Type", attachment.ContentType)
	http.ServeContent(c.Writer, c.Request, attachment.FileName, attachment.CreatedAt, file)
}
