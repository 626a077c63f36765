package worker

import (
	"context"

	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/domain"
	imgrepo "github.com/Photoroom/dataroom/internal/repository/image"
)

// Searcher finds sweep candidates in the image index (ISP).
type Searcher interface {
	Search(ctx context.Context, opts imgrepo.SearchOpts) (*imgrepo.Result, error)
	Count(ctx context.Context, query *db.BoolQuery) (int64, error)
	CountsByField(ctx context.Context, field, order string, size int) (map[string]int64, error)
	Mapping(ctx context.Context) (map[string]any, error)
}

// Lifecycle runs per-image maintenance operations.
type Lifecycle interface {
	UpdateThumbnail(ctx context.Context, id string) error
	UpdateEmbedding(ctx context.Context, id, author string) error
}

// Duplicates marks duplicate groups.
type Duplicates interface {
	MarkDuplicates(ctx context.Context, id string) error
}

// Catalogs reads catalog entries and writes back their index statistics.
//
//nolint:interfacebloat // the stats refresh touches every catalog kind
type Catalogs interface {
	Attributes(ctx context.Context) ([]domain.AttributeField, error)
	LatentTypes(ctx context.Context) ([]domain.LatentType, error)
	Tags(ctx context.Context) ([]domain.Tag, error)
	Datasets(ctx context.Context) ([]domain.Dataset, error)
	SetAttributeImageCount(ctx context.Context, name string, count int64) error
	SetLatentTypeImageCount(ctx context.Context, name string, count int64) error
	SetTagImageCount(ctx context.Context, name string, count int64) error
	SetDatasetImageCount(ctx context.Context, slug string, version int64, count int64) error
	MarkAttributeMapped(ctx context.Context, name string) error
	MarkLatentTypeMapped(ctx context.Context, name string) error
}
