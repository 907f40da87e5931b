package tagging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KubaBaniak/image-storage/internal/apperr"
	"github.com/KubaBaniak/image-storage/internal/cursor"
	"github.com/KubaBaniak/image-storage/internal/model"
	"github.com/KubaBaniak/image-storage/internal/repository"
	"github.com/KubaBaniak/image-storage/internal/storage"
)

type stubRepo struct {
	images       map[uuid.UUID]*model.Image
	descriptions map[uuid.UUID]string
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		images:       map[uuid.UUID]*model.Image{},
		descriptions: map[uuid.UUID]string{},
	}
}

func (r *stubRepo) Create(ctx context.Context, img *model.Image) error { return nil }

func (r *stubRepo) Get(ctx context.Context, id uuid.UUID) (*model.Image, error) {
	img, ok := r.images[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "image not found")
	}
	copied := *img
	return &copied, nil
}

func (r *stubRepo) MarkAccepted(ctx context.Context, id uuid.UUID, fields repository.AcceptedFields) (bool, error) {
	return false, nil
}

func (r *stubRepo) MarkRejected(ctx context.Context, id uuid.UUID, reason model.RejectionReason) (bool, error) {
	return false, nil
}

func (r *stubRepo) SetDescription(ctx context.Context, id uuid.UUID, description string) error {
	r.descriptions[id] = description
	return nil
}

func (r *stubRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (r *stubRepo) ListAccepted(ctx context.Context, after *cursor.Cursor, limit int) ([]model.Image, error) {
	return nil, nil
}

type stubStore struct {
	signedKeys []string
	signErr    error
}

func (s *stubStore) BucketPolicy(ctx context.Context) (storage.BucketPolicy, error) {
	return storage.BucketPolicy{}, nil
}

func (s *stubStore) PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return "", nil
}

func (s *stubStore) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	s.signedKeys = append(s.signedKeys, key)
	return "https://signed.example/" + key, nil
}

func (s *stubStore) PresignDownloadBatch(ctx context.Context, keys []string, ttl time.Duration) []storage.SignedURL {
	return nil
}

func (s *stubStore) Head(ctx context.Context, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (s *stubStore) Remove(ctx context.Context, keys []string) error { return nil }

type stubCaptioner struct {
	caption string
	err     error
	calls   int
}

func (c *stubCaptioner) Caption(ctx context.Context, imageURL string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.caption, nil
}

func tagTask(t *testing.T, imageID string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(taskPayload{ImageID: imageID})
	require.NoError(t, err)
	return asynq.NewTask(TaskTypeTagImage, payload)
}

func TestHandleTagImage_CaptionsAndPersists(t *testing.T) {
	repo := newStubRepo()
	store := &stubStore{}
	captioner := &stubCaptioner{caption: "a dog chasing a ball"}

	id := uuid.New()
	repo.images[id] = &model.Image{
		ID:          id,
		StoragePath: "originals/" + id.String() + ".jpeg",
		Status:      model.StatusAccepted,
	}

	w := NewWorker(repo, store, captioner, zap.NewNop())
	require.NoError(t, w.HandleTagImage(context.Background(), tagTask(t, id.String())))

	assert.Equal(t, "a dog chasing a ball", repo.descriptions[id])
	assert.Equal(t, 1, captioner.calls)
	assert.Equal(t, []string{"originals/" + id.String() + ".jpeg"}, store.signedKeys)
}

func TestHandleTagImage_SkipsAlreadyCaptionedImage(t *testing.T) {
	repo := newStubRepo()
	store := &stubStore{}
	captioner := &stubCaptioner{caption: "should not be used"}

	id := uuid.New()
	existing := "already captioned"
	repo.images[id] = &model.Image{
		ID:          id,
		StoragePath: "originals/" + id.String() + ".jpeg",
		Status:      model.StatusAccepted,
		Description: &existing,
	}

	w := NewWorker(repo, store, captioner, zap.NewNop())
	require.NoError(t, w.HandleTagImage(context.Background(), tagTask(t, id.String())))

	assert.Zero(t, captioner.calls, "duplicate delivery must not re-run inference")
	assert.NotContains(t, repo.descriptions, id)
}

func TestHandleTagImage_CaptionFailurePropagatesForRetry(t *testing.T) {
	repo := newStubRepo()
	store := &stubStore{}
	captioner := &stubCaptioner{err: errors.New("inference timeout")}

	id := uuid.New()
	repo.images[id] = &model.Image{
		ID:          id,
		StoragePath: "originals/" + id.String() + ".jpeg",
		Status:      model.StatusAccepted,
	}

	w := NewWorker(repo, store, captioner, zap.NewNop())
	err := w.HandleTagImage(context.Background(), tagTask(t, id.String()))
	require.Error(t, err, "the queue's retry policy owns caption failures")
	assert.NotContains(t, repo.descriptions, id)
}

func TestHandleTagImage_MalformedPayload(t *testing.T) {
	w := NewWorker(newStubRepo(), &stubStore{}, &stubCaptioner{}, zap.NewNop())

	err := w.HandleTagImage(context.Background(), asynq.NewTask(TaskTypeTagImage, []byte("{broken")))
	require.Error(t, err)
}

func TestRetryDelayGrowsExponentially(t *testing.T) {
	assert.Equal(t, 3*time.Second, RetryDelay(0, nil, nil))
	assert.Equal(t, 6*time.Second, RetryDelay(1, nil, nil))
	assert.Equal(t, 12*time.Second, RetryDelay(2, nil, nil))
}
