// Package worker runs the periodic maintenance tasks: thumbnail and
// embedding backfills, the duplicate sweep and the catalog stats refresh.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/domain/fields"
	imgrepo "github.com/Photoroom/dataroom/internal/repository/image"
)

// DefaultBatchSize is how many candidates one sweep picks up.
const DefaultBatchSize = 500

// DefaultEmbeddingAuthor tags embeddings refreshed by the worker.
const DefaultEmbeddingAuthor = "coca-v2"

// Worker implements the periodic maintenance tasks.
type Worker struct {
	images     Searcher
	lifecycle  Lifecycle
	duplicates Duplicates
	catalogs   Catalogs
	logger     *zap.Logger

	batchSize       int
	embeddingAuthor string
	excludedSources []string
}

// New creates a worker.
func New(images Searcher, lifecycle Lifecycle, duplicates Duplicates, catalogs Catalogs, logger *zap.Logger) *Worker {
	return &Worker{
		images:          images,
		lifecycle:       lifecycle,
		duplicates:      duplicates,
		catalogs:        catalogs,
		logger:          logger,
		batchSize:       DefaultBatchSize,
		embeddingAuthor: DefaultEmbeddingAuthor,
	}
}

// WithBatchSize overrides the sweep batch size.
func (w *Worker) WithBatchSize(n int) *Worker {
	if n > 0 {
		w.batchSize = n
	}
	return w
}

// WithEmbeddingAuthor overrides the author tag on refreshed embeddings.
func (w *Worker) WithEmbeddingAuthor(author string) *Worker {
	if author != "" {
		w.embeddingAuthor = author
	}
	return w
}

// WithExcludedSources keeps the listed sources out of the duplicate sweep.
func (w *Worker) WithExcludedSources(sources []string) *Worker {
	w.excludedSources = sources
	return w
}

// Tasks returns the periodic task set, all on one interval.
func (w *Worker) Tasks(interval time.Duration) []Task {
	return []Task{
		{Name: "update_thumbnails", Interval: interval, Run: w.SweepThumbnails},
		{Name: "update_embeddings", Interval: interval, Run: w.SweepEmbeddings},
		{Name: "mark_duplicates", Interval: interval, Run: w.SweepDuplicates},
		{Name: "refresh_counts", Interval: interval, Run: w.RefreshCounts},
	}
}

// SweepThumbnails generates thumbnails for images that have none. Images
// whose generation already failed stay out of the sweep.
func (w *Worker) SweepThumbnails(ctx context.Context) (int, error) {
	q := db.NewBool().
		MustNot(db.Exists(imgrepo.FieldThumbnail)).
		MustNot(db.Term(imgrepo.FieldThumbnailError, true))

	res, err := w.images.Search(ctx, imgrepo.SearchOpts{
		Query:  q,
		Size:   w.batchSize,
		Sort:   []db.SortField{{Field: "_doc", Order: "asc"}},
		Fields: []string{imgrepo.FieldID, imgrepo.FieldImage, imgrepo.FieldThumbnail, imgrepo.FieldDateUpdated},
	})
	if err != nil {
		return 0, fmt.Errorf("find images without thumbnail: %w", err)
	}

	processed := 0
	for _, img := range res.Images {
		if err := w.lifecycle.UpdateThumbnail(ctx, img.ID); err != nil {
			w.logger.Warn("thumbnail update failed", zap.String("image_id", img.ID), zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// SweepEmbeddings backfills the embedding for images that have none.
func (w *Worker) SweepEmbeddings(ctx context.Context) (int, error) {
	q := db.NewBool().Filter(db.Term("coca_embedding_exists", false))

	res, err := w.images.Search(ctx, imgrepo.SearchOpts{
		Query:  q,
		Size:   w.batchSize,
		Sort:   []db.SortField{{Field: "_doc", Order: "asc"}},
		Fields: []string{imgrepo.FieldID, imgrepo.FieldImage, imgrepo.FieldEmbedding, imgrepo.FieldDateUpdated},
	})
	if err != nil {
		return 0, fmt.Errorf("find images without embedding: %w", err)
	}

	processed := 0
	for _, img := range res.Images {
		if err := w.lifecycle.UpdateEmbedding(ctx, img.ID, w.embeddingAuthor); err != nil {
			w.logger.Warn("embedding update failed", zap.String("image_id", img.ID), zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// SweepDuplicates marks duplicate groups for embedded images that have no
// duplicate state yet.
func (w *Worker) SweepDuplicates(ctx context.Context) (int, error) {
	q := db.NewBool().
		Must(db.Term("coca_embedding_exists", true)).
		MustNot(db.Exists(imgrepo.FieldDuplicateState))
	if len(w.excludedSources) > 0 {
		q = q.MustNot(db.Terms(imgrepo.FieldSource, toAny(w.excludedSources)))
	}

	res, err := w.images.Search(ctx, imgrepo.SearchOpts{
		Query: q,
		Size:  w.batchSize,
		Sort:  []db.SortField{{Field: "_doc", Order: "asc"}},
		Fields: []string{
			imgrepo.FieldID, imgrepo.FieldDuplicateState, imgrepo.FieldEmbedding,
			imgrepo.FieldWidth, imgrepo.FieldHeight,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("find images without duplicate state: %w", err)
	}

	processed := 0
	for _, img := range res.Images {
		if err := w.duplicates.MarkDuplicates(ctx, img.ID); err != nil {
			w.logger.Warn("duplicate marking failed", zap.String("image_id", img.ID), zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// RefreshCounts writes index statistics back into the catalog: per-entry
// image counts, and the mapped flag once the physical field appears in the
// index mapping.
func (w *Worker) RefreshCounts(ctx context.Context) (int, error) {
	refreshed := 0

	mapped, err := w.images.Mapping(ctx)
	if err != nil {
		return refreshed, fmt.Errorf("index mapping: %w", err)
	}

	attrs, err := w.catalogs.Attributes(ctx)
	if err != nil {
		return refreshed, fmt.Errorf("list attributes: %w", err)
	}
	for _, a := range attrs {
		t, err := a.ResolvedType()
		if err != nil {
			w.logger.Warn("skipping attribute with unresolvable type", zap.String("name", a.Name), zap.Error(err))
			continue
		}
		physical := fields.Attr(a.Name, t, a.IsIndexed)
		count, err := w.images.Count(ctx, db.NewBool().Filter(db.Exists(physical)))
		if err != nil {
			return refreshed, fmt.Errorf("count attribute %s: %w", a.Name, err)
		}
		if err := w.catalogs.SetAttributeImageCount(ctx, a.Name, count); err != nil {
			return refreshed, err
		}
		if _, ok := mapped[physical]; ok && !a.IsMapped {
			if err := w.catalogs.MarkAttributeMapped(ctx, a.Name); err != nil {
				return refreshed, err
			}
		}
		refreshed++
	}

	latents, err := w.catalogs.LatentTypes(ctx)
	if err != nil {
		return refreshed, fmt.Errorf("list latent types: %w", err)
	}
	for _, lt := range latents {
		physical := fields.Latent(lt.Name)
		count, err := w.images.Count(ctx, db.NewBool().Filter(db.Exists(physical)))
		if err != nil {
			return refreshed, fmt.Errorf("count latent type %s: %w", lt.Name, err)
		}
		if err := w.catalogs.SetLatentTypeImageCount(ctx, lt.Name, count); err != nil {
			return refreshed, err
		}
		if _, ok := mapped[physical]; ok && !lt.IsMapped {
			if err := w.catalogs.MarkLatentTypeMapped(ctx, lt.Name); err != nil {
				return refreshed, err
			}
		}
		refreshed++
	}

	tags, err := w.catalogs.Tags(ctx)
	if err != nil {
		return refreshed, fmt.Errorf("list tags: %w", err)
	}
	if len(tags) > 0 {
		counts, err := w.images.CountsByField(ctx, imgrepo.FieldTags, "desc", countBuckets(len(tags)))
		if err != nil {
			return refreshed, fmt.Errorf("count tags: %w", err)
		}
		for _, tag := range tags {
			if err := w.catalogs.SetTagImageCount(ctx, tag.Name, counts[tag.Name]); err != nil {
				return refreshed, err
			}
			refreshed++
		}
	}

	datasets, err := w.catalogs.Datasets(ctx)
	if err != nil {
		return refreshed, fmt.Errorf("list datasets: %w", err)
	}
	if len(datasets) > 0 {
		counts, err := w.images.CountsByField(ctx, imgrepo.FieldDatasets, "desc", countBuckets(len(datasets)))
		if err != nil {
			return refreshed, fmt.Errorf("count datasets: %w", err)
		}
		for _, d := range datasets {
			if err := w.catalogs.SetDatasetImageCount(ctx, d.Slug, int64(d.Version), counts[d.SlugVersion()]); err != nil {
				return refreshed, err
			}
			refreshed++
		}
	}

	return refreshed, nil
}

// countBuckets sizes a terms aggregation with room for stale values.
func countBuckets(n int) int {
	const minBuckets = 1000
	return max(minBuckets, n*2)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
