// Package service implements the image lifecycle: upload-intent issuance,
// post-upload validation, deletion, embedding attachment and the paginated
// preview listing with optional semantic filtering.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KubaBaniak/image-storage/internal/embedding"
	"github.com/KubaBaniak/image-storage/internal/repository"
	"github.com/KubaBaniak/image-storage/internal/storage"
	"github.com/KubaBaniak/image-storage/internal/thumbnail"
	"github.com/KubaBaniak/image-storage/internal/vector"
)

// TagEnqueuer submits asynchronous captioning work. Enqueueing the same
// image twice must be a no-op.
type TagEnqueuer interface {
	EnqueueTagImage(ctx context.Context, imageID string) error
}

type UploadIntent struct {
	ImageID   uuid.UUID `json:"imageId"`
	UploadURL string    `json:"originalUrl"`
}

type VerifyResult struct {
	ID   uuid.UUID `json:"id"`
	Path string    `json:"path"`
}

type PreviewItem struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	PreviewPath string    `json:"previewPath"`
	SignedURL   string    `json:"signedUrl"`
	SignError   string    `json:"signError,omitempty"`
}

type PreviewPage struct {
	Items      []PreviewItem `json:"items"`
	NextCursor *string       `json:"nextCursor"`
	Limit      int           `json:"limit"`
}

type ImageService struct {
	repo     repository.Images
	store    storage.ObjectStore
	trigger  thumbnail.Trigger
	poller   thumbnail.Readiness
	vectors  vector.Index
	embedder embedding.Embedder
	tags     TagEnqueuer
	log      *zap.Logger

	// Upload policy, loaded once via LoadPolicy and cached for the process
	// lifetime.
	policy storage.BucketPolicy

	putTTL time.Duration
	getTTL time.Duration
}

type Deps struct {
	Repo     repository.Images
	Store    storage.ObjectStore
	Trigger  thumbnail.Trigger
	Poller   thumbnail.Readiness
	Vectors  vector.Index
	Embedder embedding.Embedder
	Tags     TagEnqueuer
	Log      *zap.Logger
	PutTTL   time.Duration
	GetTTL   time.Duration
}

func New(deps Deps) *ImageService {
	return &ImageService{
		repo:     deps.Repo,
		store:    deps.Store,
		trigger:  deps.Trigger,
		poller:   deps.Poller,
		vectors:  deps.Vectors,
		embedder: deps.Embedder,
		tags:     deps.Tags,
		log:      deps.Log,
		putTTL:   deps.PutTTL,
		getTTL:   deps.GetTTL,
	}
}

// LoadPolicy reads the bucket's upload limits and caches them. Call once at
// startup; call again only to deliberately re-initialize the policy.
func (s *ImageService) LoadPolicy(ctx context.Context) error {
	policy, err := s.store.BucketPolicy(ctx)
	if err != nil {
		return err
	}
	s.policy = policy
	s.log.Info("bucket upload policy loaded",
		zap.Int64("maxFileSizeBytes", policy.MaxFileSizeBytes),
		zap.Strings("allowedMimeTypes", policy.AllowedMimeTypes))
	return nil
}
