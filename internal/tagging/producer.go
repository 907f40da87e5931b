// Package tagging bridges accepted images to the asynchronous captioning
// pipeline via asynq.
package tagging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/KubaBaniak/image-storage/internal/apperr"
)

const (
	TaskTypeTagImage = "image:tag"
	QueueName        = "tagging"

	maxRetry          = 3
	initialRetryDelay = 3 * time.Second
)

type taskPayload struct {
	ImageID string `json:"imageId"`
}

type Producer struct {
	client *asynq.Client
	log    *zap.Logger
}

func NewProducer(client *asynq.Client, log *zap.Logger) *Producer {
	return &Producer{client: client, log: log}
}

// EnqueueTagImage submits one captioning job keyed by the image id. The id
// doubles as the task id, so re-enqueueing the same image is a no-op.
func (p *Producer) EnqueueTagImage(ctx context.Context, imageID string) error {
	payload, _ := json.Marshal(taskPayload{ImageID: imageID})
	task := asynq.NewTask(TaskTypeTagImage, payload)

	_, err := p.client.EnqueueContext(ctx, task,
		asynq.TaskID(imageID),
		asynq.Queue(QueueName),
		asynq.MaxRetry(maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		p.log.Info("tagging job already enqueued", zap.String("imageId", imageID))
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "failed to enqueue tagging job", err)
	}

	p.log.Info("tagging job enqueued", zap.String("imageId", imageID))
	return nil
}

// RetryDelay implements the exponential backoff for failed tagging jobs:
// 3s, 6s, 12s.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return initialRetryDelay * time.Duration(1<<n)
}
