package tagging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/KubaBaniak/image-storage/internal/captioning"
	"github.com/KubaBaniak/image-storage/internal/repository"
	"github.com/KubaBaniak/image-storage/internal/storage"
)

// TTL of the signed read URL handed to the captioning service.
const inferenceURLTTL = 5 * time.Minute

type Worker struct {
	repo      repository.Images
	store     storage.ObjectStore
	captioner captioning.Captioner
	log       *zap.Logger
}

func NewWorker(repo repository.Images, store storage.ObjectStore, captioner captioning.Captioner, log *zap.Logger) *Worker {
	return &Worker{repo: repo, store: store, captioner: captioner, log: log}
}

// HandleTagImage captions one image. A record that already carries a
// description is skipped, which guards against duplicate delivery. Errors
// surface to asynq's retry mechanism; exhausted tasks land in the archive.
func (w *Worker) HandleTagImage(ctx context.Context, task *asynq.Task) error {
	var payload taskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed tagging payload: %w", err)
	}

	imageID, err := uuid.Parse(payload.ImageID)
	if err != nil {
		return fmt.Errorf("malformed image id %q: %w", payload.ImageID, err)
	}

	record, err := w.repo.Get(ctx, imageID)
	if err != nil {
		return err
	}
	if record.Description != nil && *record.Description != "" {
		w.log.Info("image already captioned, skipping",
			zap.String("imageId", payload.ImageID))
		return nil
	}

	imageURL, err := w.store.PresignDownload(ctx, record.StoragePath, inferenceURLTTL)
	if err != nil {
		return fmt.Errorf("failed to sign image URL for inference: %w", err)
	}

	caption, err := w.captioner.Caption(ctx, imageURL)
	if err != nil {
		return err
	}

	if err := w.repo.SetDescription(ctx, imageID, caption); err != nil {
		return err
	}

	w.log.Info("image captioned",
		zap.String("imageId", payload.ImageID),
		zap.String("caption", caption))
	return nil
}
