package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KubaBaniak/image-storage/internal/apperr"
	"github.com/KubaBaniak/image-storage/internal/cursor"
	"github.com/KubaBaniak/image-storage/internal/model"
	"github.com/KubaBaniak/image-storage/internal/repository"
	"github.com/KubaBaniak/image-storage/internal/storage"
	"github.com/KubaBaniak/image-storage/internal/vector"
)

type fakeRepo struct {
	mu           sync.Mutex
	images       map[uuid.UUID]*model.Image
	createErr    error
	deleteErr    error
	forceCASFail bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{images: map[uuid.UUID]*model.Image{}}
}

func (r *fakeRepo) put(img model.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := img
	r.images[img.ID] = &copied
}

func (r *fakeRepo) get(id uuid.UUID) model.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.images[id]
}

func (r *fakeRepo) Create(ctx context.Context, img *model.Image) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.put(*img)
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id uuid.UUID) (*model.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "image not found")
	}
	copied := *img
	return &copied, nil
}

func (r *fakeRepo) MarkAccepted(ctx context.Context, id uuid.UUID, fields repository.AcceptedFields) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok || img.Status != model.StatusPending || r.forceCASFail {
		return false, nil
	}
	img.Status = model.StatusAccepted
	img.PreviewPath = &fields.PreviewPath
	img.MimeType = &fields.MimeType
	img.SizeBytes = &fields.SizeBytes
	img.ValidatedAt = &fields.ValidatedAt
	img.RejectionReason = nil
	img.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeRepo) MarkRejected(ctx context.Context, id uuid.UUID, reason model.RejectionReason) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok || img.Status != model.StatusPending || r.forceCASFail {
		return false, nil
	}
	img.Status = model.StatusRejected
	img.RejectionReason = &reason
	img.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeRepo) SetDescription(ctx context.Context, id uuid.UUID, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "image not found")
	}
	img.Description = &description
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.images, id)
	return nil
}

func (r *fakeRepo) ListAccepted(ctx context.Context, after *cursor.Cursor, limit int) ([]model.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []model.Image
	for _, img := range r.images {
		if img.Status != model.StatusAccepted || img.PreviewPath == nil {
			continue
		}
		if after != nil {
			beforeCursor := img.CreatedAt.Before(after.CreatedAt) ||
				(img.CreatedAt.Equal(after.CreatedAt) && img.ID.String() < after.ID)
			if !beforeCursor {
				continue
			}
		}
		rows = append(rows, *img)
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID.String() > rows[j].ID.String()
	})

	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

var errObjectMissing = errors.New("object not found")

type fakeStore struct {
	policy      storage.BucketPolicy
	policyErr   error
	objects     map[string]storage.ObjectInfo
	presignErr  error
	removeErr   error
	signErrs    map[string]error
	removed     [][]string
	signedKeys  []string
	presignPuts []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		policy: storage.BucketPolicy{
			MaxFileSizeBytes: 10 * 1024 * 1024,
			AllowedMimeTypes: []string{"image/jpeg", "image/png", "image/webp"},
		},
		objects:  map[string]storage.ObjectInfo{},
		signErrs: map[string]error{},
	}
}

func (s *fakeStore) BucketPolicy(ctx context.Context) (storage.BucketPolicy, error) {
	return s.policy, s.policyErr
}

func (s *fakeStore) PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if s.presignErr != nil {
		return "", s.presignErr
	}
	s.presignPuts = append(s.presignPuts, key)
	return "https://signed.example/upload/" + key, nil
}

func (s *fakeStore) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err, ok := s.signErrs[key]; ok {
		return "", err
	}
	s.signedKeys = append(s.signedKeys, key)
	return "https://signed.example/" + key, nil
}

func (s *fakeStore) PresignDownloadBatch(ctx context.Context, keys []string, ttl time.Duration) []storage.SignedURL {
	results := make([]storage.SignedURL, len(keys))
	for i, key := range keys {
		url, err := s.PresignDownload(ctx, key, ttl)
		results[i] = storage.SignedURL{Key: key, URL: url, Err: err}
	}
	return results
}

func (s *fakeStore) Head(ctx context.Context, key string) (storage.ObjectInfo, error) {
	info, ok := s.objects[key]
	if !ok {
		return storage.ObjectInfo{}, errObjectMissing
	}
	return info, nil
}

func (s *fakeStore) Remove(ctx context.Context, keys []string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	s.removed = append(s.removed, keys)
	return nil
}

type fakeTrigger struct {
	err   error
	calls []string
}

func (t *fakeTrigger) Trigger(ctx context.Context, objectName string) error {
	t.calls = append(t.calls, objectName)
	return t.err
}

type fakePoller struct {
	ready bool
	calls []string
}

func (p *fakePoller) WaitForReady(ctx context.Context, thumbPath string) bool {
	p.calls = append(p.calls, thumbPath)
	return p.ready
}

type fakeVectors struct {
	matches  []vector.Match
	queryErr error
	upserts  []vector.Point
}

func (v *fakeVectors) EnsureCollection(ctx context.Context) error { return nil }

func (v *fakeVectors) Upsert(ctx context.Context, point vector.Point) error {
	v.upserts = append(v.upserts, point)
	return nil
}

func (v *fakeVectors) Query(ctx context.Context, queryVector []float32, limit int) ([]vector.Match, error) {
	if v.queryErr != nil {
		return nil, v.queryErr
	}
	if len(v.matches) > limit {
		return v.matches[:limit], nil
	}
	return v.matches, nil
}

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls []string
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls = append(e.calls, text)
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

type fakeTags struct {
	err error
	ids []string
}

func (t *fakeTags) EnqueueTagImage(ctx context.Context, imageID string) error {
	if t.err != nil {
		return t.err
	}
	t.ids = append(t.ids, imageID)
	return nil
}

type serviceFixture struct {
	svc      *ImageService
	repo     *fakeRepo
	store    *fakeStore
	trigger  *fakeTrigger
	poller   *fakePoller
	vectors  *fakeVectors
	embedder *fakeEmbedder
	tags     *fakeTags
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		repo:     newFakeRepo(),
		store:    newFakeStore(),
		trigger:  &fakeTrigger{},
		poller:   &fakePoller{ready: true},
		vectors:  &fakeVectors{},
		embedder: &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}},
		tags:     &fakeTags{},
	}
	f.svc = New(Deps{
		Repo:     f.repo,
		Store:    f.store,
		Trigger:  f.trigger,
		Poller:   f.poller,
		Vectors:  f.vectors,
		Embedder: f.embedder,
		Tags:     f.tags,
		Log:      zap.NewNop(),
		PutTTL:   5 * time.Minute,
		GetTTL:   time.Hour,
	})
	f.svc.policy = f.store.policy
	return f
}
