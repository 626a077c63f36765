package image

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Photoroom/dataroom/internal/blob"
	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/domain"
	imgrepo "github.com/Photoroom/dataroom/internal/repository/image"
	"github.com/Photoroom/dataroom/internal/schema"
)

// fakeRepo records calls and serves canned results.
type fakeRepo struct {
	mu     sync.Mutex
	images map[string]*domain.Image

	searchRes  *imgrepo.Result
	searchErr  error
	similarRes []*domain.Image
	simScore   float64
	countRes   int64
	countsRes  map[string]int64
	shards     int

	lastSearch    *imgrepo.SearchOpts
	searchCalls   []imgrepo.SearchOpts
	lastSaved     *domain.Image
	lastFields    []string
	lastKNN       []float32
	lastK         int
	lastExclude   string
	softDeleted   string
	hardDeleted   string
	similarityID  string
	similarityVec []float32
}

func (f *fakeRepo) Get(_ context.Context, id string) (*domain.Image, error) {
	img, ok := f.images[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return img, nil
}

func (f *fakeRepo) GetMultiple(_ context.Context, ids []string, _ []string) ([]*domain.Image, error) {
	var out []*domain.Image
	for _, id := range ids {
		if img, ok := f.images[id]; ok {
			out = append(out, img)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetByHash(_ context.Context, hash string) (*domain.Image, error) {
	for _, img := range f.images {
		if img.ImageHash == hash {
			return img, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRepo) GetMultipleByHash(_ context.Context, hashes []string, _ []string, _ int) ([]*domain.Image, error) {
	var out []*domain.Image
	for _, img := range f.images {
		for _, h := range hashes {
			if img.ImageHash == h {
				out = append(out, img)
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) GetByOriginalURL(_ context.Context, u string) (*domain.Image, error) {
	for _, img := range f.images {
		if img.OriginalURL == u {
			return img, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRepo) Search(_ context.Context, opts imgrepo.SearchOpts) (*imgrepo.Result, error) {
	f.mu.Lock()
	f.lastSearch = &opts
	f.searchCalls = append(f.searchCalls, opts)
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchRes != nil {
		return f.searchRes, nil
	}
	return &imgrepo.Result{}, nil
}

func (f *fakeRepo) FindSimilar(_ context.Context, vector []float32, k int, excludeID string, _ *db.BoolQuery, _ []string) ([]*domain.Image, error) {
	f.lastKNN = vector
	f.lastK = k
	f.lastExclude = excludeID
	return f.similarRes, nil
}

func (f *fakeRepo) Similarity(_ context.Context, id string, vector []float32) (float64, error) {
	f.similarityID = id
	f.similarityVec = vector
	return f.simScore, nil
}

func (f *fakeRepo) Count(_ context.Context, _ *db.BoolQuery) (int64, error) {
	return f.countRes, nil
}

func (f *fakeRepo) CountsByField(_ context.Context, _, _ string, _ int) (map[string]int64, error) {
	return f.countsRes, nil
}

func (f *fakeRepo) Save(_ context.Context, img *domain.Image, fieldList []string) error {
	f.lastSaved = img
	f.lastFields = fieldList
	if f.images == nil {
		f.images = make(map[string]*domain.Image)
	}
	f.images[img.ID] = img
	return nil
}

func (f *fakeRepo) SoftDelete(_ context.Context, id string) error {
	f.softDeleted = id
	return nil
}

func (f *fakeRepo) DeletePermanently(_ context.Context, id string) error {
	f.hardDeleted = id
	return nil
}

func (f *fakeRepo) Shards(_ context.Context) (int, error) {
	if f.shards == 0 {
		return 48, nil
	}
	return f.shards, nil
}

// fakeEmbedder serves a fixed vector.
type fakeEmbedder struct {
	vector   []float32
	lastText string
}

func (f *fakeEmbedder) ForImage(_ context.Context, _ string, _ []byte) ([]float32, error) {
	return f.vector, nil
}

func (f *fakeEmbedder) ForText(_ context.Context, text string) ([]float32, error) {
	f.lastText = text
	return f.vector, nil
}

// fakeCatalogs records tag and dataset lookups.
type fakeCatalogs struct {
	ensuredTags []string
	dataset     domain.Dataset
	datasetErr  error
}

func (f *fakeCatalogs) EnsureTags(_ context.Context, names []string) error {
	f.ensuredTags = append(f.ensuredTags, names...)
	return nil
}

func (f *fakeCatalogs) GetDataset(_ context.Context, _ string, _ int64) (domain.Dataset, error) {
	return f.dataset, f.datasetErr
}

// passFilters compiles everything to an empty query.
type passFilters struct {
	lastParams map[string][]string
	err        error
}

func (f *passFilters) Compile(_ context.Context, params map[string][]string) (*db.BoolQuery, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return db.NewBool(), nil
}

type fixedSchemas struct{ s *schema.Schema }

func (f *fixedSchemas) Current(_ context.Context) (*schema.Schema, error) { return f.s, nil }

func testSchema() *schema.Schema {
	return schema.NewSchema(
		[]domain.AttributeField{
			{Name: "quality", FieldType: domain.FieldNumber, IsEnabled: true, IsIndexed: true},
		},
		[]domain.LatentType{
			{Name: "depth", IsEnabled: true},
			{Name: "seg", IsMask: true, IsEnabled: true},
		},
	)
}

func testVector() []float32 {
	v := make([]float32, domain.EmbeddingDim)
	v[0] = 1
	return v
}

func testTime() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

type fixture struct {
	repo     *fakeRepo
	blobs    *blob.Memory
	embedder *fakeEmbedder
	catalogs *fakeCatalogs
	filters  *passFilters
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:     &fakeRepo{images: make(map[string]*domain.Image)},
		blobs:    blob.NewMemory(),
		embedder: &fakeEmbedder{vector: testVector()},
		catalogs: &fakeCatalogs{},
		filters:  &passFilters{},
	}
	f.svc = New(f.repo, f.blobs, f.embedder, &fixedSchemas{s: testSchema()}, f.catalogs, f.filters, zap.NewNop()).
		WithClock(testTime)
	return f
}
