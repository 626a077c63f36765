// Package image persists image records as flat documents in the search
// index. Logical attributes, latents and the embedding map onto physical
// fields through the schema snapshot; everything else is a fixed builtin
// field.
package image

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/domain"
	"github.com/Photoroom/dataroom/internal/metrics"
	"github.com/Photoroom/dataroom/internal/schema"
)

// DefaultTimeout bounds every index query.
const DefaultTimeout = 55 * time.Second

// store is the consumer interface over the index (ISP).
//
//nolint:interfacebloat // image repo owns every document operation on its index
type store interface {
	Get(ctx context.Context, index, id string) (map[string]any, error)
	MGet(ctx context.Context, index string, ids []string) ([]db.Doc, error)
	Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResult, error)
	Count(ctx context.Context, index string, query db.Query) (int64, error)
	Update(ctx context.Context, index, id string, doc map[string]any, upsert bool) error
	Delete(ctx context.Context, index, id string) error
	Bulk(ctx context.Context, index string, ops []db.BulkOp) (*db.BulkResult, error)
	EnsureIndex(ctx context.Context, index string, body map[string]any) error
	Mapping(ctx context.Context, index string) (map[string]any, error)
	Shards(ctx context.Context, index string) (int, error)
	Refresh(ctx context.Context, index string) error
}

// schemas serves catalog snapshots for encoding and decoding.
type schemas interface {
	Current(ctx context.Context) (*schema.Schema, error)
}

// Repo implements the image repository over the search index.
type Repo struct {
	store          store
	schemas        schemas
	index          string
	includeDeleted bool
	timeout        time.Duration
}

// New creates an image repository.
func New(s store, sch schemas, index string) *Repo {
	return &Repo{store: s, schemas: sch, index: index, timeout: DefaultTimeout}
}

// WithTimeout overrides the per-query timeout.
func (r *Repo) WithTimeout(d time.Duration) *Repo {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// IncludingDeleted returns a view of the repository that does not filter out
// soft-deleted images.
func (r *Repo) IncludingDeleted() *Repo {
	clone := *r
	clone.includeDeleted = true
	return &clone
}

// Index returns the backing index name.
func (r *Repo) Index() string { return r.index }

// SearchOpts shape one query against the image index.
type SearchOpts struct {
	Query       *db.BoolQuery
	Fields      []string
	Sort        []db.SortField
	SearchAfter []any
	Size        int
	Preference  string
	Aggs        map[string]any
}

// Result is a page of images plus the total match count.
type Result struct {
	Images []*domain.Image
	Total  int64
	Aggs   map[string][]db.Bucket
}

// EnsureIndex creates the image index with its settings, builtin field
// mappings and dynamic attribute templates. Existing indices are left
// untouched.
func (r *Repo) EnsureIndex(ctx context.Context, shards int) error {
	if err := r.store.EnsureIndex(ctx, r.index, IndexBody(shards)); err != nil {
		return fmt.Errorf("ensure index %s: %w", r.index, err)
	}
	return nil
}

// Mapping returns the physical fields currently mapped on the index.
func (r *Repo) Mapping(ctx context.Context) (map[string]any, error) {
	props, err := r.store.Mapping(ctx, r.index)
	if err != nil {
		return nil, fmt.Errorf("index mapping: %w", err)
	}
	return props, nil
}

// Get fetches one image by id. Soft-deleted images come back as not found
// unless the repository includes deleted.
func (r *Repo) Get(ctx context.Context, id string) (*domain.Image, error) {
	src, err := r.store.Get(ctx, r.index, id)
	if err != nil {
		if errors.Is(err, db.ErrDocNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get image %s: %w", id, err)
	}

	s, err := r.schemas.Current(ctx)
	if err != nil {
		return nil, err
	}
	img := decodeDoc(id, src, s)
	if img.IsDeleted && !r.includeDeleted {
		return nil, domain.ErrNotFound
	}
	return img, nil
}

// GetMultiple fetches up to len(ids) images in one round trip. Missing and
// soft-deleted images are silently absent from the result. Full fetches go
// through mget; a field projection needs a search.
func (r *Repo) GetMultiple(ctx context.Context, ids []string, fieldList []string) ([]*domain.Image, error) {
	if len(fieldList) > 0 {
		res, err := r.Search(ctx, SearchOpts{
			Query:  db.NewBool().Filter(db.IDs(ids)),
			Fields: fieldList,
			Size:   len(ids),
		})
		if err != nil {
			return nil, err
		}
		return res.Images, nil
	}

	s, err := r.schemas.Current(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	docs, err := r.store.MGet(ctx, r.index, ids)
	observe("mget", start, err)
	if err != nil {
		return nil, fmt.Errorf("get images: %w", err)
	}
	images := make([]*domain.Image, 0, len(docs))
	for _, doc := range docs {
		if !doc.Found {
			continue
		}
		img := decodeDoc(doc.ID, doc.Source, s)
		if img.IsDeleted && !r.includeDeleted {
			continue
		}
		images = append(images, img)
	}
	return images, nil
}

// GetByHash fetches the image with the given pixel hash.
func (r *Repo) GetByHash(ctx context.Context, imageHash string) (*domain.Image, error) {
	return r.getByTerm(ctx, "image_hash", imageHash)
}

// GetByOriginalURL fetches the image crawled from the given URL.
func (r *Repo) GetByOriginalURL(ctx context.Context, originalURL string) (*domain.Image, error) {
	return r.getByTerm(ctx, "original_url", originalURL)
}

// GetMultipleByHash fetches images matching any of the given pixel hashes.
func (r *Repo) GetMultipleByHash(ctx context.Context, hashes []string, fieldList []string, size int) ([]*domain.Image, error) {
	res, err := r.Search(ctx, SearchOpts{
		Query:  db.NewBool().Filter(db.Terms("image_hash", toAny(hashes))),
		Fields: fieldList,
		Size:   size,
	})
	if err != nil {
		return nil, err
	}
	return res.Images, nil
}

func (r *Repo) getByTerm(ctx context.Context, field, value string) (*domain.Image, error) {
	res, err := r.Search(ctx, SearchOpts{
		Query: db.NewBool().Filter(db.Term(field, value)),
		Size:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Images) == 0 {
		return nil, domain.ErrNotFound
	}
	return res.Images[0], nil
}

// Search runs one query page. Sorting defaults to id ascending so that
// search_after cursors are stable; soft-deleted images are excluded unless
// the repository includes deleted.
func (r *Repo) Search(ctx context.Context, opts SearchOpts) (*Result, error) {
	s, err := r.schemas.Current(ctx)
	if err != nil {
		return nil, err
	}

	bq := opts.Query
	if bq == nil {
		bq = db.NewBool()
	}
	if !r.includeDeleted {
		bq = bq.Filter(db.Term("is_deleted", false))
	}

	req := &db.SearchRequest{
		Index:       r.index,
		Query:       bq.Build(),
		Size:        opts.Size,
		SearchAfter: opts.SearchAfter,
		Preference:  opts.Preference,
		Timeout:     r.timeout,
		Aggs:        opts.Aggs,
	}
	req.Sort = opts.Sort
	if len(req.Sort) == 0 {
		req.Sort = []db.SortField{{Field: "id", Order: "asc"}}
	}
	if len(opts.Fields) > 0 {
		includes, err := DocFields(opts.Fields)
		if err != nil {
			return nil, err
		}
		req.SourceIncludes = includes
	}

	start := time.Now()
	res, err := r.store.Search(ctx, req)
	observe("search", start, err)
	if err != nil {
		return nil, fmt.Errorf("search images: %w", err)
	}

	out := &Result{Total: res.Total, Aggs: res.Aggs, Images: make([]*domain.Image, 0, len(res.Hits))}
	for _, hit := range res.Hits {
		out.Images = append(out.Images, decodeHit(hit, s))
	}
	return out, nil
}

// FindSimilar runs a kNN query over the embedding field. An extra filter
// restricts matches; excludeID removes the query image itself.
func (r *Repo) FindSimilar(ctx context.Context, vector []float32, k int, excludeID string, filter *db.BoolQuery, fieldList []string) ([]*domain.Image, error) {
	s, err := r.schemas.Current(ctx)
	if err != nil {
		return nil, err
	}

	bq := filter
	if bq == nil {
		bq = db.NewBool()
	}
	bq = bq.Must(db.KNN("coca_embedding_vector", vector, k, nil))
	if excludeID != "" {
		bq = bq.MustNot(db.Match("id", excludeID))
	}
	if !r.includeDeleted {
		bq = bq.Filter(db.Term("is_deleted", false))
	}

	req := &db.SearchRequest{
		Index:   r.index,
		Query:   bq.Build(),
		Size:    k,
		Timeout: r.timeout,
	}
	if len(fieldList) > 0 {
		includes, err := DocFields(fieldList)
		if err != nil {
			return nil, err
		}
		req.SourceIncludes = includes
	}

	start := time.Now()
	res, err := r.store.Search(ctx, req)
	observe("knn", start, err)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	images := make([]*domain.Image, 0, len(res.Hits))
	for _, hit := range res.Hits {
		images = append(images, decodeHit(hit, s))
	}
	return images, nil
}

// Similarity scores one image against a vector, normalized to [0, 1).
func (r *Repo) Similarity(ctx context.Context, id string, vector []float32) (float64, error) {
	bq := db.NewBool().
		Must(db.KNN("coca_embedding_vector", vector, 1, nil)).
		Filter(db.Term("id", id))
	if !r.includeDeleted {
		bq = bq.Filter(db.Term("is_deleted", false))
	}

	res, err := r.store.Search(ctx, &db.SearchRequest{
		Index:   r.index,
		Query:   bq.Build(),
		Size:    1,
		Timeout: r.timeout,
	})
	if err != nil {
		return 0, fmt.Errorf("similarity: %w", err)
	}
	if len(res.Hits) == 0 {
		return 0, domain.ErrNotFound
	}
	return domain.NormalizeSimilarity(res.Hits[0].Score), nil
}

// Count returns how many images match the query.
func (r *Repo) Count(ctx context.Context, query *db.BoolQuery) (int64, error) {
	bq := query
	if bq == nil {
		bq = db.NewBool()
	}
	if !r.includeDeleted {
		bq = bq.Filter(db.Term("is_deleted", false))
	}
	start := time.Now()
	n, err := r.store.Count(ctx, r.index, bq.Build())
	observe("count", start, err)
	if err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return n, nil
}

// CountsByField buckets images by a physical field value.
func (r *Repo) CountsByField(ctx context.Context, field, order string, size int) (map[string]int64, error) {
	res, err := r.Search(ctx, SearchOpts{
		Size: 0,
		Aggs: map[string]any{"count": db.TermsAgg(field, order, size)},
	})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, b := range res.Aggs["count"] {
		counts[fmt.Sprint(b.Key)] = b.DocCount
	}
	return counts, nil
}

// Save writes the listed logical fields of an image as a partial update
// with upsert. Concurrent writers of the same document surface as a save
// conflict.
func (r *Repo) Save(ctx context.Context, img *domain.Image, fieldList []string) error {
	doc, err := encodeImage(img, fieldList)
	if err != nil {
		return err
	}
	start := time.Now()
	err = r.store.Update(ctx, r.index, img.ID, doc, true)
	observe("update", start, err)
	if err != nil {
		if errors.Is(err, db.ErrVersionConflict) {
			return domain.NewSaveConflict(img.ID)
		}
		return fmt.Errorf("save image %s: %w", img.ID, err)
	}
	return nil
}

// EncodeDoc exposes the codec for bulk staging.
func (r *Repo) EncodeDoc(img *domain.Image, fieldList []string) (map[string]any, error) {
	return encodeImage(img, fieldList)
}

// Bulk applies staged partial updates in one request, translating per-item
// version conflicts into save conflicts.
func (r *Repo) Bulk(ctx context.Context, ops []db.BulkOp) ([]error, error) {
	start := time.Now()
	res, err := r.store.Bulk(ctx, r.index, ops)
	observe("bulk", start, err)
	if err != nil {
		return nil, fmt.Errorf("bulk save: %w", err)
	}
	itemErrs := make([]error, len(res.Items))
	for i, item := range res.Items {
		if errors.Is(item.Err, db.ErrVersionConflict) {
			itemErrs[i] = domain.NewSaveConflict(item.ID)
			continue
		}
		itemErrs[i] = item.Err
	}
	return itemErrs, nil
}

// SoftDelete flags an image as deleted without removing the document.
func (r *Repo) SoftDelete(ctx context.Context, id string) error {
	if err := r.store.Update(ctx, r.index, id, map[string]any{FieldIsDeleted: true}, false); err != nil {
		if errors.Is(err, db.ErrDocNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("soft delete image %s: %w", id, err)
	}
	return nil
}

// DeletePermanently removes the document. Blob cleanup is the caller's job.
func (r *Repo) DeletePermanently(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, r.index, id); err != nil {
		if errors.Is(err, db.ErrDocNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete image %s: %w", id, err)
	}
	return nil
}

// Shards returns the primary shard count of the image index.
func (r *Repo) Shards(ctx context.Context) (int, error) {
	return r.store.Shards(ctx, r.index)
}

// Refresh makes recent writes visible to search.
func (r *Repo) Refresh(ctx context.Context) error {
	return r.store.Refresh(ctx, r.index)
}

// observe records one index request in the Prometheus metrics.
func observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.IndexRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.IndexRequestsTotal.WithLabelValues(op, status).Inc()
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
