package service

import (
	"context"

	"github.com/KubaBaniak/image-storage/internal/cursor"
	"github.com/KubaBaniak/image-storage/internal/model"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100

	// Neighbors scoring at or below this cosine similarity are discarded.
	similarityFloor = 0.15
)

// ListPreviews pages through accepted, previewed images newest first with id
// as the tie-break. When q is given the page is additionally filtered by
// caption similarity; the filter runs after pagination, so it is bounded by
// the current page's membership and reorders results by score.
func (s *ImageService) ListPreviews(ctx context.Context, q, after string, limit int) (*PreviewPage, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	var cur *cursor.Cursor
	if after != "" {
		decoded, err := cursor.Decode(after)
		if err != nil {
			return nil, err
		}
		cur = &decoded
	}

	// One extra row detects a further page without a count query.
	rows, err := s.repo.ListAccepted(ctx, cur, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	items := s.signPage(ctx, rows)

	var nextCursor *string
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		token := cursor.Encode(cursor.Cursor{CreatedAt: last.CreatedAt, ID: last.ID.String()})
		nextCursor = &token
	}

	if q == "" {
		return &PreviewPage{Items: items, NextCursor: nextCursor, Limit: limit}, nil
	}

	filtered, err := s.filterByCaption(ctx, q, items, limit)
	if err != nil {
		return nil, err
	}
	return &PreviewPage{Items: filtered, NextCursor: nextCursor, Limit: limit}, nil
}

// signPage exchanges each preview path for a time-limited read URL in one
// batched call. A failure to sign an individual path is carried per item.
func (s *ImageService) signPage(ctx context.Context, rows []model.Image) []PreviewItem {
	paths := make([]string, len(rows))
	for i, row := range rows {
		if row.PreviewPath != nil {
			paths[i] = *row.PreviewPath
		}
	}

	signed := s.store.PresignDownloadBatch(ctx, paths, s.getTTL)

	items := make([]PreviewItem, len(rows))
	for i, row := range rows {
		item := PreviewItem{
			ID:          row.ID.String(),
			CreatedAt:   row.CreatedAt,
			PreviewPath: paths[i],
		}
		if i < len(signed) {
			item.SignedURL = signed[i].URL
			if signed[i].Err != nil {
				item.SignError = signed[i].Err.Error()
			}
		}
		items[i] = item
	}
	return items
}

// filterByCaption intersects the vector index's nearest neighbors with the
// already-fetched page. Neighbor ids outside the page are dropped, as are
// page items that did not make the neighbor set.
func (s *ImageService) filterByCaption(ctx context.Context, q string, items []PreviewItem, limit int) ([]PreviewItem, error) {
	queryVector, err := s.embedder.Embed(ctx, q)
	if err != nil {
		return nil, err
	}

	matches, err := s.vectors.Query(ctx, queryVector, limit)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]PreviewItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	filtered := make([]PreviewItem, 0, len(matches))
	for _, match := range matches {
		if match.Score <= similarityFloor {
			continue
		}
		if item, ok := byID[match.ID]; ok {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}
