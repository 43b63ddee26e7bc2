package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cptrack/cptrack-api/internal/models"
)

// AttachmentRepository persists attachment metadata. File bytes never
// pass through here; they live behind the storage collaborator.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository constructs the repository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create inserts a metadata row.
func (r *AttachmentRepository) Create(ctx context.Context, attachment *models.Attachment) error {
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attachments
	(id, concept_paper_id, file_name, content_type, size_bytes, storage_path, uploaded_by, created_at)
	VALUES (:id, :concept_paper_id, :file_name, :content_type, :size_bytes, :storage_path, :uploaded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attachment); err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// GetByID fetches attachment metadata.
func (r *AttachmentRepository) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	const query = `SELECT id, concept_paper_id, file_name, content_type, size_bytes, storage_path, uploaded_by, created_at
	FROM attachments WHERE id = $1`
	var attachment models.Attachment
	if err := r.db.GetContext(ctx, &attachment, query, id); err != nil {
		return nil, err
	}
	return &attachment, nil
}

// ListByPaper returns attachment metadata for a paper, newest first.
func (r *AttachmentRepository) ListByPaper(ctx context.Context, paperID string) ([]models.Attachment, error) {
	const query = `SELECT id, concept_paper_id, file_name, content_type, size_bytes, storage_path, uploaded_by, created_at
	FROM attachments WHERE concept_paper_id = $1 ORDER BY created_at DESC`
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, paperID); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return attachments, nil
}
