// Package vector provides the caption-embedding index used by semantic
// search, backed by pgvector.
package vector

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KubaBaniak/image-storage/internal/apperr"
)

// Dimensions of the caption embedding model (all-MiniLM-L6-v2).
const Dimensions = 384

type Point struct {
	ID      string
	Vector  []float32
	Caption string
}

// Match is one nearest neighbor with its cosine similarity score.
type Match struct {
	ID      string
	Caption string
	Score   float32
}

type Index interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, point Point) error
	Query(ctx context.Context, queryVector []float32, limit int) ([]Match, error)
}

type imageVector struct {
	ID        string          `gorm:"type:text;primaryKey"`
	Caption   string          `gorm:"type:text"`
	Embedding pgvector.Vector `gorm:"type:vector(384)"`
}

func (imageVector) TableName() string {
	return "image_vectors"
}

type pgvectorIndex struct {
	db *gorm.DB
}

func NewPgvectorIndex(db *gorm.DB) Index {
	return &pgvectorIndex{db: db}
}

func (x *pgvectorIndex) EnsureCollection(ctx context.Context) error {
	db := x.db.WithContext(ctx)
	if db.Migrator().HasTable(&imageVector{}) {
		return nil
	}
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "failed to enable pgvector extension", err)
	}
	if err := db.AutoMigrate(&imageVector{}); err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "failed to create vector collection", err)
	}
	return nil
}

func (x *pgvectorIndex) Upsert(ctx context.Context, point Point) error {
	row := imageVector{
		ID:        point.ID,
		Caption:   point.Caption,
		Embedding: pgvector.NewVector(point.Vector),
	}
	err := x.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"caption", "embedding"}),
		}).
		Create(&row).Error
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "failed to upsert embedding", err)
	}
	return nil
}

// Query returns the top-limit nearest neighbors by cosine similarity
// (1 - cosine distance), best first.
func (x *pgvectorIndex) Query(ctx context.Context, queryVector []float32, limit int) ([]Match, error) {
	vec := pgvector.NewVector(queryVector)

	var matches []Match
	err := x.db.WithContext(ctx).Raw(
		`SELECT id, caption, 1 - (embedding <=> ?) AS score
		 FROM image_vectors
		 ORDER BY embedding <=> ?
		 LIMIT ?`,
		vec, vec, limit,
	).Scan(&matches).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "failed to query vector index", err)
	}
	return matches, nil
}
