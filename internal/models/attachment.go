package models

import "time"

// Attachment is metadata for a file linked to a concept paper. The engine
// only tracks metadata rows; bytes live behind the storage collaborator.
type Attachment struct {
	ID             string    `db:"id" json:"id"`
	ConceptPaperID string    `db:"concept_paper_id" json:"concept_paper_id"`
	FileName       string    `db:"file_name" json:"file_name"`
	ContentType    string    `db:"content_type" json:"content_type"`
	SizeBytes      int64     `db:"size_bytes" json:"size_bytes"`
	StoragePath    string    `db:"storage_path" json:"-"`
	UploadedBy     string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
