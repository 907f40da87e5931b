package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KubaBaniak/image-storage/internal/apperr"
	"github.com/KubaBaniak/image-storage/internal/cursor"
	"github.com/KubaBaniak/image-storage/internal/model"
)

// AcceptedFields carries everything recorded on the pending -> accepted
// transition.
type AcceptedFields struct {
	PreviewPath string
	MimeType    string
	SizeBytes   int64
	ValidatedAt time.Time
}

// Images is the metadata store contract. The store is the sole arbiter of
// state transitions: MarkAccepted and MarkRejected are conditional updates
// that only match a pending row, so concurrent verify calls cannot both win.
type Images interface {
	Create(ctx context.Context, img *model.Image) error
	Get(ctx context.Context, id uuid.UUID) (*model.Image, error)
	MarkAccepted(ctx context.Context, id uuid.UUID, fields AcceptedFields) (bool, error)
	MarkRejected(ctx context.Context, id uuid.UUID, reason model.RejectionReason) (bool, error)
	SetDescription(ctx context.Context, id uuid.UUID, description string) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListAccepted(ctx context.Context, after *cursor.Cursor, limit int) ([]model.Image, error)
}

type gormImages struct {
	db *gorm.DB
}

func NewImages(db *gorm.DB) Images {
	return &gormImages{db: db}
}

func (r *gormImages) Create(ctx context.Context, img *model.Image) error {
	if err := r.db.WithContext(ctx).Create(img).Error; err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "failed to create image record", err)
	}
	return nil
}

func (r *gormImages) Get(ctx context.Context, id uuid.UUID) (*model.Image, error) {
	var img model.Image
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "image not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "failed to fetch image record", err)
	}
	return &img, nil
}

func (r *gormImages) MarkAccepted(ctx context.Context, id uuid.UUID, fields AcceptedFields) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Image{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]interface{}{
			"status":           model.StatusAccepted,
			"preview_path":     fields.PreviewPath,
			"mime_type":        fields.MimeType,
			"size_bytes":       fields.SizeBytes,
			"validated_at":     fields.ValidatedAt,
			"rejection_reason": nil,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return false, apperr.Wrap(apperr.KindDependencyFailure, "failed to accept image record", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *gormImages) MarkRejected(ctx context.Context, id uuid.UUID, reason model.RejectionReason) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Image{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]interface{}{
			"status":           model.StatusRejected,
			"rejection_reason": reason,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return false, apperr.Wrap(apperr.KindDependencyFailure, "failed to reject image record", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *gormImages) SetDescription(ctx context.Context, id uuid.UUID, description string) error {
	res := r.db.WithContext(ctx).Model(&model.Image{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"description": description,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "failed to store image description", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "image not found")
	}
	return nil
}

func (r *gormImages) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Image{}).Error; err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "failed to delete image record", err)
	}
	return nil
}

// ListAccepted returns accepted rows with a preview, newest first with id as
// the tie-break. The caller passes limit+1 to detect further pages.
func (r *gormImages) ListAccepted(ctx context.Context, after *cursor.Cursor, limit int) ([]model.Image, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND preview_path IS NOT NULL", model.StatusAccepted).
		Order("created_at DESC, id DESC").
		Limit(limit)

	if after != nil {
		q = q.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			after.CreatedAt, after.CreatedAt, after.ID,
		)
	}

	var images []model.Image
	if err := q.Find(&images).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "failed to list images", err)
	}
	return images, nil
}
