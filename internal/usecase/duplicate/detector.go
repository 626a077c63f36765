// Package duplicate resolves near-identical images into one original and
// its duplicates.
package duplicate

import (
	"context"
	"sort"

	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/domain"
	imgrepo "github.com/Photoroom/dataroom/internal/repository/image"
)

const (
	// DefaultThreshold is the minimum similarity for two images to count as
	// duplicates of each other.
	DefaultThreshold = 0.98
	// DefaultNeighbors is how many candidates one detection fetches.
	DefaultNeighbors = 30
)

// Repository reads images and their nearest neighbors.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.Image, error)
	FindSimilar(ctx context.Context, vector []float32, k int, excludeID string, filter *db.BoolQuery, fieldList []string) ([]*domain.Image, error)
}

// Staging batches the duplicate_state writes.
type Staging interface {
	Stage(ctx context.Context, img *domain.Image, fieldList []string) error
	Flush(ctx context.Context) error
}

// Detector runs duplicate detection per image.
type Detector struct {
	repo      Repository
	staging   Staging
	threshold float64
	neighbors int
}

// New creates a duplicate detector.
func New(repo Repository, staging Staging) *Detector {
	return &Detector{
		repo:      repo,
		staging:   staging,
		threshold: DefaultThreshold,
		neighbors: DefaultNeighbors,
	}
}

// WithThreshold overrides the similarity threshold.
func (d *Detector) WithThreshold(t float64) *Detector {
	d.threshold = t
	return d
}

// WithNeighbors overrides the candidate count.
func (d *Detector) WithNeighbors(n int) *Detector {
	if n > 0 {
		d.neighbors = n
	}
	return d
}

// candidateFields keeps the neighbor fetch small: ranking only needs the
// geometry and the current state.
var candidateFields = []string{
	imgrepo.FieldID,
	imgrepo.FieldDuplicateState,
	imgrepo.FieldEmbedding,
	imgrepo.FieldWidth,
	imgrepo.FieldHeight,
}

// MarkDuplicates resolves the duplicate group around one image: neighbors
// above the threshold rank by pixel area, the largest becomes the original
// and the rest duplicates. Images already resolved, or without an
// embedding, are skipped, which makes repeated runs idempotent.
func (d *Detector) MarkDuplicates(ctx context.Context, id string) error {
	img, err := d.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if img.DuplicateState != domain.DuplicateUnprocessed {
		return nil
	}
	if !img.Embedding.Exists {
		return nil
	}

	similars, err := d.repo.FindSimilar(ctx, img.Embedding.Vector, d.neighbors, id, nil, candidateFields)
	if err != nil {
		return err
	}

	group := []*domain.Image{img}
	for _, similar := range similars {
		if similar.Meta == nil {
			continue
		}
		if domain.NormalizeSimilarity(similar.Meta.Score) > d.threshold {
			group = append(group, similar)
		}
	}

	sort.SliceStable(group, func(i, j int) bool {
		return group[i].PixelArea() > group[j].PixelArea()
	})

	for i, member := range group {
		next := domain.DuplicateDuplicate
		if i == 0 {
			next = domain.DuplicateOriginal
		}
		// Neighbors resolved by an earlier run keep their state.
		if !member.DuplicateState.CanTransitionTo(next) {
			continue
		}
		member.DuplicateState = next
		if err := d.staging.Stage(ctx, member, []string{imgrepo.FieldDuplicateState}); err != nil {
			return err
		}
	}
	return d.staging.Flush(ctx)
}
