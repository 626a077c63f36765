package image

import (
	"context"

	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/domain"
	imgrepo "github.com/Photoroom/dataroom/internal/repository/image"
	"github.com/Photoroom/dataroom/internal/schema"
)

// Repository defines the storage contract for image documents.
//
//nolint:interfacebloat // the image service owns every document operation
type Repository interface {
	Get(ctx context.Context, id string) (*domain.Image, error)
	GetMultiple(ctx context.Context, ids []string, fieldList []string) ([]*domain.Image, error)
	GetByHash(ctx context.Context, imageHash string) (*domain.Image, error)
	GetMultipleByHash(ctx context.Context, hashes []string, fieldList []string, size int) ([]*domain.Image, error)
	GetByOriginalURL(ctx context.Context, originalURL string) (*domain.Image, error)
	Search(ctx context.Context, opts imgrepo.SearchOpts) (*imgrepo.Result, error)
	FindSimilar(ctx context.Context, vector []float32, k int, excludeID string, filter *db.BoolQuery, fieldList []string) ([]*domain.Image, error)
	Similarity(ctx context.Context, id string, vector []float32) (float64, error)
	Count(ctx context.Context, query *db.BoolQuery) (int64, error)
	CountsByField(ctx context.Context, field, order string, size int) (map[string]int64, error)
	Save(ctx context.Context, img *domain.Image, fieldList []string) error
	SoftDelete(ctx context.Context, id string) error
	DeletePermanently(ctx context.Context, id string) error
	Shards(ctx context.Context) (int, error)
}

// Filters compiles query parameters into index queries.
type Filters interface {
	Compile(ctx context.Context, params map[string][]string) (*db.BoolQuery, error)
}

// Blobs stores the binary payloads referenced by image documents.
type Blobs interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Embedder maps images and captions into the shared embedding space.
type Embedder interface {
	ForImage(ctx context.Context, filename string, data []byte) ([]float32, error)
	ForText(ctx context.Context, text string) ([]float32, error)
}

// Schemas serves catalog snapshots for latent validation.
type Schemas interface {
	Current(ctx context.Context) (*schema.Schema, error)
}

// Catalogs covers the relational side effects of image mutations.
type Catalogs interface {
	EnsureTags(ctx context.Context, names []string) error
	GetDataset(ctx context.Context, slug string, version int64) (domain.Dataset, error)
}
