package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cptrack/cptrack-api/internal/dto"
	"github.com/cptrack/cptrack-api/internal/models"
	appErrors "github.com/cptrack/cptrack-api/pkg/errors"
	"github.com/cptrack/cptrack-api/pkg/storage"
)

type attachmentStore interface {
	Create(ctx context.Context, attachment *models.Attachment) error
	GetByID(ctx context.Context, id string) (*models.Attachment, error)
	ListByPaper(ctx context.Context, paperID string) ([]models.Attachment, error)
}

type attachmentPaperStore interface {
	GetByID(ctx context.Context, id string) (*models.ConceptPaper, error)
}

// AttachmentService stores paper attachments on local disk and hands out
// signed, expiring download references.
type AttachmentService struct {
	attachments attachmentStore
	papers      attachmentPaperStore
	storage     *storage.LocalStorage
	signer      *storage.SignedURLSigner
	clock       Clock
	logger      *zap.Logger

	maxSizeBytes int64
	allowedMIMEs map[string]struct{}
}

// AttachmentLimits bounds uploads.
type AttachmentLimits struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// AttachmentOption customises AttachmentService construction.
type AttachmentOption func(*AttachmentService)

// WithAttachmentClock overrides the wall clock, used by tests.
func WithAttachmentClock(clock Clock) AttachmentOption {
	return func(s *AttachmentService) {
		s.clock = clock
	}
}

// NewAttachmentService constructs the service.
func NewAttachmentService(attachments attachmentStore, papers attachmentPaperStore, store *storage.LocalStorage, signer *storage.SignedURLSigner, limits AttachmentLimits, logger *zap.Logger, opts ...AttachmentOption) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(limits.AllowedMIMEs))
	for _, mime := range limits.AllowedMIMEs {
		allowed[mime] = struct{}{}
	}
	svc := &AttachmentService{
		attachments:  attachments,
		papers:       papers,
		storage:      store,
		signer:       signer,
		clock:        SystemClock(),
		logger:       logger,
		maxSizeBytes: limits.MaxFileSizeBytes,
		allowedMIMEs: allowed,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// UploadParams describes one incoming file.
type UploadParams struct {
	PaperID     string
	FileName    string
	ContentType string
	SizeBytes   int64
	UploadedBy  string
	Body        io.Reader
}

// Upload validates and persists one file against an existing paper.
func (s *AttachmentService) Upload(ctx context.Context, params UploadParams) (*models.Attachment, error) {
	if params.FileName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file name is required")
	}
	if s.maxSizeBytes > 0 && params.SizeBytes > s.maxSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("file exceeds the %d byte limit", s.maxSizeBytes))
	}
	if len(s.allowedMIMEs) > 0 {
		if _, ok := s.allowedMIMEs[params.ContentType]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("content type %q is not allowed", params.ContentType))
		}
	}
	if _, err := s.loadPaper(ctx, params.PaperID); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	// The stored name is derived from the attachment id, never from user
	// input, so path traversal in FileName cannot reach the disk layout.
	storedName := filepath.Join(params.PaperID, id+filepath.Ext(params.FileName))
	relPath, err := s.storage.SaveStream(storedName, params.Body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	attachment := &models.Attachment{
		ID:             id,
		ConceptPaperID: params.PaperID,
		FileName:       params.FileName,
		ContentType:    params.ContentType,
		SizeBytes:      params.SizeBytes,
		StoragePath:    relPath,
		UploadedBy:     params.UploadedBy,
		CreatedAt:      s.clock.Now().UTC(),
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		if delErr := s.storage.Delete(relPath); delErr != nil {
			s.logger.Error("failed to remove orphaned file", zap.String("path", relPath), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attachment")
	}

	s.logger.Info("attachment stored",
		zap.String("attachment_id", id),
		zap.String("paper_id", params.PaperID),
		zap.Int64("size_bytes", params.SizeBytes),
	)
	return attachment, nil
}

// ListByPaper returns attachment metadata for a paper.
func (s *AttachmentService) ListByPaper(ctx context.Context, paperID string) ([]models.Attachment, error) {
	if _, err := s.loadPaper(ctx, paperID); err != nil {
		return nil, err
	}
	attachments, err := s.attachments.ListByPaper(ctx, paperID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attachments")
	}
	return attachments, nil
}

// DownloadLink issues a signed, expiring token for one attachment.
func (s *AttachmentService) DownloadLink(ctx context.Context, attachmentID string) (*dto.AttachmentDownload, error) {
	attachment, err := s.loadAttachment(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(attachment.ID, attachment.StoragePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &dto.AttachmentDownload{
		AttachmentID: attachment.ID,
		Token:        token,
		ExpiresAt:    expiresAt,
	}, nil
}

// Resolve validates a download token and opens the underlying file. The
// caller owns closing the returned file.
func (s *AttachmentService) Resolve(ctx context.Context, token string) (*models.Attachment, *os.File, error) {
	attachmentID, relPath, expiresAt, err := s.signer.Parse(token)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}
	if s.clock.Now().After(expiresAt) {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token expired")
	}

	attachment, err := s.loadAttachment(ctx, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	if attachment.StoragePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}

	file, err := s.storage.Open(attachment.StoragePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open stored file")
	}
	return attachment, file, nil
}

func (s *AttachmentService) loadAttachment(ctx context.Context, id string) (*models.Attachment, error) {
	attachment, err := s.attachments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}
	return attachment, nil
}

func (s *AttachmentService) loadPaper(ctx context.Context, id string) (*models.ConceptPaper, error) {
	paper, err := s.papers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "concept paper not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load concept paper")
	}
	return paper, nil
}
