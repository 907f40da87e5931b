package model

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further status transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanTransitionTo guards the lifecycle: pending is the only state that may
// move, and it may only move to a terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.Terminal()
}

type RejectionReason string

const (
	ReasonSizeMismatch        RejectionReason = "size_mismatch"
	ReasonMimeMismatch        RejectionReason = "mime_mismatch"
	ReasonSizeAndMimeMismatch RejectionReason = "size_and_mime_mismatch"
	ReasonThumbFuncFailed     RejectionReason = "thumbnail_function_failed"
	ReasonThumbNotReady       RejectionReason = "thumbnail_not_ready"
)

type Image struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	StoragePath       string           `gorm:"uniqueIndex;not null" json:"storagePath"`
	PreviewPath       *string          `json:"previewPath,omitempty"`
	ExpectedMimeType  string           `gorm:"not null" json:"expectedMimeType"`
	ExpectedSizeBytes int64            `gorm:"not null" json:"expectedSizeBytes"`
	MimeType          *string          `json:"mimeType,omitempty"`
	SizeBytes         *int64           `json:"sizeBytes,omitempty"`
	Status            Status           `gorm:"not null;index:idx_images_status_created,priority:1;check:status IN ('pending','accepted','rejected')" json:"status"`
	RejectionReason   *RejectionReason `json:"rejectionReason,omitempty"`
	Description       *string          `gorm:"type:text" json:"description,omitempty"`
	CreatedAt         time.Time        `gorm:"not null;index:idx_images_status_created,priority:2,sort:desc" json:"createdAt"`
	ValidatedAt       *time.Time       `json:"validatedAt,omitempty"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

func (Image) TableName() string {
	return "images"
}
