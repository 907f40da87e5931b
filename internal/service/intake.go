package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KubaBaniak/image-storage/internal/apperr"
	"github.com/KubaBaniak/image-storage/internal/model"
	"github.com/KubaBaniak/image-storage/internal/repository"
	"github.com/KubaBaniak/image-storage/internal/thumbnail"
	"github.com/KubaBaniak/image-storage/internal/vector"
)

const originalsFolder = "originals"

// IssueUploadIntent reserves a pending record and returns a short-lived
// upload URL. The two effects are not transactional: a metadata failure
// issues no URL, a signing failure after the insert leaves a pending orphan
// that only expiry cleanup reclaims.
func (s *ImageService) IssueUploadIntent(ctx context.Context, mimeType string, sizeBytes int64) (*UploadIntent, error) {
	mime := normalizeMime(mimeType)

	if sizeBytes <= 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "sizeBytes must be positive")
	}
	if s.policy.MaxFileSizeBytes > 0 && sizeBytes > s.policy.MaxFileSizeBytes {
		return nil, apperr.New(apperr.KindInvalidInput, "file exceeds the maximum allowed size")
	}
	if len(s.policy.AllowedMimeTypes) > 0 && !s.mimeAllowed(mime) {
		return nil, apperr.New(apperr.KindInvalidInput, "mime type is not allowed by the bucket policy")
	}

	ext, ok := extensionFor(mime)
	if !ok {
		return nil, apperr.New(apperr.KindUnsupportedType, "no storage extension mapping for mime type")
	}

	id := uuid.New()
	storagePath := fmt.Sprintf("%s/%s.%s", originalsFolder, id, ext)

	record := &model.Image{
		ID:                id,
		StoragePath:       storagePath,
		ExpectedMimeType:  mime,
		ExpectedSizeBytes: sizeBytes,
		Status:            model.StatusPending,
		CreatedAt:         time.Now(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	uploadURL, err := s.store.PresignUpload(ctx, storagePath, mime, s.putTTL)
	if err != nil {
		s.log.Error("upload URL signing failed after record creation, pending orphan remains",
			zap.String("imageId", id.String()),
			zap.Error(err))
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "failed to generate upload URL", err)
	}

	s.log.Info("upload intent issued",
		zap.String("imageId", id.String()),
		zap.String("storagePath", storagePath))

	return &UploadIntent{ImageID: id, UploadURL: uploadURL}, nil
}

func (s *ImageService) mimeAllowed(mime string) bool {
	for _, allowed := range s.policy.AllowedMimeTypes {
		if mimesEqual(mime, normalizeMime(allowed)) {
			return true
		}
	}
	return false
}

// ValidateUpload checks the stored object against the record's expectations
// and drives the single pending -> terminal transition. Every transition is
// a conditional update on status=pending, so concurrent verify calls for the
// same image perform the side effects at most once.
func (s *ImageService) ValidateUpload(ctx context.Context, imageID uuid.UUID) (*VerifyResult, error) {
	record, err := s.repo.Get(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if record.Status != model.StatusPending {
		return nil, apperr.New(apperr.KindNotFound, "image is not pending validation")
	}

	object, err := s.store.Head(ctx, record.StoragePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidationFailed,
			"file not found in storage (upload not completed yet)", err)
	}

	expMime := normalizeMime(record.ExpectedMimeType)
	actMime := normalizeMime(object.ContentType)
	sizeMismatch := record.ExpectedSizeBytes != object.Size
	mimeMismatch := !mimesEqual(expMime, actMime)

	if sizeMismatch || mimeMismatch {
		reason := model.ReasonSizeMismatch
		switch {
		case sizeMismatch && mimeMismatch:
			reason = model.ReasonSizeAndMimeMismatch
		case mimeMismatch:
			reason = model.ReasonMimeMismatch
		}
		if err := s.reject(ctx, imageID, reason); err != nil {
			return nil, err
		}
		return nil, apperr.New(apperr.KindValidationFailed, "uploaded file failed validation")
	}

	if err := s.trigger.Trigger(ctx, record.StoragePath); err != nil {
		s.log.Error("thumbnail trigger failed",
			zap.String("imageId", imageID.String()),
			zap.Error(err))
		if err := s.reject(ctx, imageID, model.ReasonThumbFuncFailed); err != nil {
			return nil, err
		}
		return nil, apperr.New(apperr.KindDependencyFailure, "thumbnail generation failed")
	}

	thumbPath := thumbnail.PathFor(record.StoragePath)
	if !s.poller.WaitForReady(ctx, thumbPath) {
		if err := s.reject(ctx, imageID, model.ReasonThumbNotReady); err != nil {
			return nil, err
		}
		return nil, apperr.New(apperr.KindTimeout, "thumbnail not available yet")
	}

	accepted, err := s.repo.MarkAccepted(ctx, imageID, repository.AcceptedFields{
		PreviewPath: thumbPath,
		MimeType:    expMime,
		SizeBytes:   record.ExpectedSizeBytes,
		ValidatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !accepted {
		// A concurrent verify already moved the record to a terminal state.
		return nil, apperr.New(apperr.KindNotFound, "image is not pending validation")
	}

	if err := s.tags.EnqueueTagImage(ctx, imageID.String()); err != nil {
		s.log.Error("failed to enqueue tagging job",
			zap.String("imageId", imageID.String()),
			zap.Error(err))
	}

	s.log.Info("image accepted",
		zap.String("imageId", imageID.String()),
		zap.String("previewPath", thumbPath))

	return &VerifyResult{ID: imageID, Path: record.StoragePath}, nil
}

func (s *ImageService) reject(ctx context.Context, imageID uuid.UUID, reason model.RejectionReason) error {
	rejected, err := s.repo.MarkRejected(ctx, imageID, reason)
	if err != nil {
		return err
	}
	if rejected {
		s.log.Info("image rejected",
			zap.String("imageId", imageID.String()),
			zap.String("reason", string(reason)))
	}
	return nil
}

// DeleteImage removes the stored objects first and only then the metadata
// row, so a surviving row always points at surviving storage.
func (s *ImageService) DeleteImage(ctx context.Context, imageID uuid.UUID) error {
	record, err := s.repo.Get(ctx, imageID)
	if err != nil {
		return err
	}

	keys := []string{record.StoragePath}
	if record.PreviewPath != nil {
		keys = append(keys, *record.PreviewPath)
	}

	if err := s.store.Remove(ctx, keys); err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "storage delete failed", err)
	}

	if err := s.repo.Delete(ctx, imageID); err != nil {
		s.log.Error("metadata delete failed after storage delete",
			zap.String("imageId", imageID.String()),
			zap.Strings("removed", keys),
			zap.Error(err))
		return err
	}

	s.log.Info("image deleted", zap.String("imageId", imageID.String()))
	return nil
}

func (s *ImageService) GetOriginalURL(ctx context.Context, filename string) (string, error) {
	if filename == "" {
		return "", apperr.New(apperr.KindInvalidInput, "filename is required")
	}
	url, err := s.store.PresignDownload(ctx, originalsFolder+"/"+filename, s.getTTL)
	if err != nil {
		return "", apperr.Wrap(apperr.KindDependencyFailure, "could not get URL of original image", err)
	}
	return url, nil
}

// AttachEmbedding embeds the record's caption and upserts it into the vector
// index keyed by the image id.
func (s *ImageService) AttachEmbedding(ctx context.Context, imageID uuid.UUID) error {
	record, err := s.repo.Get(ctx, imageID)
	if err != nil {
		return err
	}
	if record.Description == nil || *record.Description == "" {
		return apperr.New(apperr.KindInvalidInput, "image has no description to embed")
	}

	vec, err := s.embedder.Embed(ctx, *record.Description)
	if err != nil {
		return err
	}

	return s.vectors.Upsert(ctx, vector.Point{
		ID:      imageID.String(),
		Vector:  vec,
		Caption: *record.Description,
	})
}
