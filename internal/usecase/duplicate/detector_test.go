package duplicate

import (
	"context"
	"testing"

	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/domain"
)

type fakeRepo struct {
	images   map[string]*domain.Image
	similars []*domain.Image
	lastK    int
}

func (f *fakeRepo) Get(_ context.Context, id string) (*domain.Image, error) {
	img, ok := f.images[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return img, nil
}

func (f *fakeRepo) FindSimilar(_ context.Context, _ []float32, k int, _ string, _ *db.BoolQuery, _ []string) ([]*domain.Image, error) {
	f.lastK = k
	return f.similars, nil
}

type fakeStaging struct {
	staged  []*domain.Image
	fields  [][]string
	flushed int
}

func (f *fakeStaging) Stage(_ context.Context, img *domain.Image, fieldList []string) error {
	f.staged = append(f.staged, img)
	f.fields = append(f.fields, fieldList)
	return nil
}

func (f *fakeStaging) Flush(_ context.Context) error {
	f.flushed++
	return nil
}

// score producing a given cosine similarity under inner-product scoring
func scoreFor(similarity float64) float64 {
	return similarity + 1
}

func embedded(id string, w, h int64) *domain.Image {
	return &domain.Image{
		ID:        id,
		Width:     w,
		Height:    h,
		Embedding: domain.Embedding{Exists: true, Vector: []float32{1}},
	}
}

func similar(id string, w, h int64, similarity float64) *domain.Image {
	img := embedded(id, w, h)
	img.Meta = &domain.Meta{Score: scoreFor(similarity)}
	return img
}

func TestMarkDuplicates_LargestBecomesOriginal(t *testing.T) {
	repo := &fakeRepo{
		images: map[string]*domain.Image{"a": embedded("a", 100, 100)},
		similars: []*domain.Image{
			similar("b", 200, 200, 0.99),
			similar("c", 50, 50, 0.985),
		},
	}
	staging := &fakeStaging{}

	if err := New(repo, staging).MarkDuplicates(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}

	if len(staging.staged) != 3 {
		t.Fatalf("staged %d images", len(staging.staged))
	}
	// ranked by pixel area: b (200x200), a (100x100), c (50x50)
	if staging.staged[0].ID != "b" || staging.staged[0].DuplicateState != domain.DuplicateOriginal {
		t.Errorf("first = %s state %d", staging.staged[0].ID, staging.staged[0].DuplicateState)
	}
	for _, img := range staging.staged[1:] {
		if img.DuplicateState != domain.DuplicateDuplicate {
			t.Errorf("%s state = %d, want duplicate", img.ID, img.DuplicateState)
		}
	}
	for _, fields := range staging.fields {
		if len(fields) != 1 || fields[0] != "duplicate_state" {
			t.Errorf("fields = %v", fields)
		}
	}
	if staging.flushed != 1 {
		t.Errorf("flushed %d times", staging.flushed)
	}
	if repo.lastK != DefaultNeighbors {
		t.Errorf("k = %d, want %d", repo.lastK, DefaultNeighbors)
	}
}

func TestMarkDuplicates_ThresholdExcludes(t *testing.T) {
	repo := &fakeRepo{
		images: map[string]*domain.Image{"a": embedded("a", 100, 100)},
		similars: []*domain.Image{
			similar("b", 200, 200, 0.97), // below threshold
		},
	}
	staging := &fakeStaging{}

	if err := New(repo, staging).MarkDuplicates(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if len(staging.staged) != 1 || staging.staged[0].ID != "a" {
		t.Fatalf("staged = %v", staging.staged)
	}
	if staging.staged[0].DuplicateState != domain.DuplicateOriginal {
		t.Error("lone image should become its own original")
	}
}

func TestMarkDuplicates_ResolvedNeighborsKeepState(t *testing.T) {
	// b was resolved as an original by an earlier run; ranking second here
	// must not demote it to a duplicate.
	resolved := similar("b", 200, 200, 0.99)
	resolved.DuplicateState = domain.DuplicateOriginal
	repo := &fakeRepo{
		images:   map[string]*domain.Image{"a": embedded("a", 300, 300)},
		similars: []*domain.Image{resolved},
	}
	staging := &fakeStaging{}

	if err := New(repo, staging).MarkDuplicates(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if len(staging.staged) != 1 {
		t.Fatalf("staged %d images, want 1", len(staging.staged))
	}
	if staging.staged[0].ID != "a" || staging.staged[0].DuplicateState != domain.DuplicateOriginal {
		t.Errorf("staged = %s state %d", staging.staged[0].ID, staging.staged[0].DuplicateState)
	}
	if resolved.DuplicateState != domain.DuplicateOriginal {
		t.Errorf("resolved neighbor state = %d, want original", resolved.DuplicateState)
	}
}

func TestMarkDuplicates_SkipsProcessed(t *testing.T) {
	img := embedded("a", 100, 100)
	img.DuplicateState = domain.DuplicateDuplicate
	repo := &fakeRepo{images: map[string]*domain.Image{"a": img}}
	staging := &fakeStaging{}

	if err := New(repo, staging).MarkDuplicates(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if len(staging.staged) != 0 || staging.flushed != 0 {
		t.Error("processed image should be skipped")
	}
}

func TestMarkDuplicates_SkipsMissingEmbedding(t *testing.T) {
	repo := &fakeRepo{images: map[string]*domain.Image{"a": {ID: "a"}}}
	staging := &fakeStaging{}

	if err := New(repo, staging).MarkDuplicates(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if len(staging.staged) != 0 {
		t.Error("image without embedding should be skipped")
	}
}

func TestMarkDuplicates_CustomThreshold(t *testing.T) {
	repo := &fakeRepo{
		images:   map[string]*domain.Image{"a": embedded("a", 100, 100)},
		similars: []*domain.Image{similar("b", 10, 10, 0.9)},
	}
	staging := &fakeStaging{}

	if err := New(repo, staging).WithThreshold(0.85).MarkDuplicates(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if len(staging.staged) != 2 {
		t.Fatalf("staged %d, want the looser threshold to include b", len(staging.staged))
	}
}
