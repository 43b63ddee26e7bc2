package dto

import "time"

// AttachmentDownload is a signed, expiring download reference.
type AttachmentDownload struct {
	AttachmentID string    `json:"attachmentId"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expiresAt"`
}
