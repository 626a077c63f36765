// Package bulk batches partial image saves into bulk index requests.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/domain"
	"github.com/Photoroom/dataroom/internal/metrics"
	imgrepo "github.com/Photoroom/dataroom/internal/repository/image"
)

// DefaultBatchSize is how many staged documents one flush carries.
const DefaultBatchSize = 100

// Repository encodes and writes image documents in bulk.
type Repository interface {
	EncodeDoc(img *domain.Image, fieldList []string) (map[string]any, error)
	Bulk(ctx context.Context, ops []db.BulkOp) ([]error, error)
}

// Tags upserts tag catalog rows for staged tag mutations.
type Tags interface {
	EnsureTags(ctx context.Context, names []string) error
}

// Pipeline accumulates partial saves and flushes them in batches. Every
// staged mutation names its fields explicitly; whole-document writes do not
// go through here.
type Pipeline struct {
	repo      Repository
	tags      Tags
	logger    *zap.Logger
	batchSize int

	mu  sync.Mutex
	ops []db.BulkOp
}

// New creates a bulk pipeline.
func New(repo Repository, tags Tags, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		repo:      repo,
		tags:      tags,
		logger:    logger,
		batchSize: DefaultBatchSize,
	}
}

// WithBatchSize overrides the flush threshold.
func (p *Pipeline) WithBatchSize(n int) *Pipeline {
	if n > 0 {
		p.batchSize = n
	}
	return p
}

// Stage encodes the listed fields of an image and queues the partial save.
// A full batch flushes immediately; flush errors surface on the staging call
// that triggered them.
func (p *Pipeline) Stage(ctx context.Context, img *domain.Image, fieldList []string) error {
	if len(fieldList) == 0 {
		return domain.NewValidationError("field list is required")
	}
	if slices.Contains(fieldList, imgrepo.FieldImage) {
		return domain.NewValidationError("the image field cannot be saved")
	}

	doc, err := p.repo.EncodeDoc(img, fieldList)
	if err != nil {
		return err
	}
	if slices.Contains(fieldList, imgrepo.FieldTags) && len(img.Tags) > 0 {
		if err := p.tags.EnsureTags(ctx, img.Tags); err != nil {
			return fmt.Errorf("ensure tags: %w", err)
		}
	}

	p.mu.Lock()
	p.ops = append(p.ops, db.BulkOp{ID: img.ID, Doc: doc, Upsert: true})
	full := len(p.ops) >= p.batchSize
	p.mu.Unlock()

	if full {
		return p.Flush(ctx)
	}
	return nil
}

// Flush writes every queued document. Per-document failures, including save
// conflicts, come back joined into one error; the queue empties either way.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.mu.Lock()
	ops := p.ops
	p.ops = nil
	p.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	flushID := uuid.NewString()
	itemErrs, err := p.repo.Bulk(ctx, ops)
	if err != nil {
		metrics.BulkFlushesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("bulk flush %s: %w", flushID, err)
	}

	var errs []error
	for _, itemErr := range itemErrs {
		if itemErr != nil {
			errs = append(errs, itemErr)
		}
	}
	metrics.BulkFlushesTotal.WithLabelValues("ok").Inc()
	metrics.BulkDocumentsTotal.WithLabelValues("ok").Add(float64(len(ops) - len(errs)))
	metrics.BulkDocumentsTotal.WithLabelValues("error").Add(float64(len(errs)))
	p.logger.Debug("bulk flush",
		zap.String("flush_id", flushID),
		zap.Int("staged", len(ops)),
		zap.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// Close flushes whatever is still queued.
func (p *Pipeline) Close(ctx context.Context) error {
	return p.Flush(ctx)
}

// Pending reports how many documents are queued.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ops)
}
