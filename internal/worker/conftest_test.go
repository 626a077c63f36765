package worker

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/domain"
	imgrepo "github.com/Photoroom/dataroom/internal/repository/image"
)

type fakeSearcher struct {
	searchRes  *imgrepo.Result
	searchErr  error
	lastSearch imgrepo.SearchOpts

	// countFor maps a JSON fragment of the count query to its result.
	countFor     map[string]int64
	countQueries []string

	countsByField map[string]map[string]int64
	lastAggSize   int

	// mapping lists the physical fields present in the index mapping.
	mapping map[string]any
}

func (f *fakeSearcher) Search(_ context.Context, opts imgrepo.SearchOpts) (*imgrepo.Result, error) {
	f.lastSearch = opts
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchRes == nil {
		return &imgrepo.Result{}, nil
	}
	return f.searchRes, nil
}

func (f *fakeSearcher) Count(_ context.Context, query *db.BoolQuery) (int64, error) {
	raw, _ := json.Marshal(query.Build())
	js := string(raw)
	f.countQueries = append(f.countQueries, js)
	for fragment, n := range f.countFor {
		if strings.Contains(js, fragment) {
			return n, nil
		}
	}
	return 0, nil
}

func (f *fakeSearcher) CountsByField(_ context.Context, field, _ string, size int) (map[string]int64, error) {
	f.lastAggSize = size
	return f.countsByField[field], nil
}

func (f *fakeSearcher) Mapping(context.Context) (map[string]any, error) {
	return f.mapping, nil
}

type fakeLifecycle struct {
	thumbnails []string
	embeddings []string
	lastAuthor string
	errOn      map[string]error
}

func (f *fakeLifecycle) UpdateThumbnail(_ context.Context, id string) error {
	if err := f.errOn[id]; err != nil {
		return err
	}
	f.thumbnails = append(f.thumbnails, id)
	return nil
}

func (f *fakeLifecycle) UpdateEmbedding(_ context.Context, id, author string) error {
	if err := f.errOn[id]; err != nil {
		return err
	}
	f.embeddings = append(f.embeddings, id)
	f.lastAuthor = author
	return nil
}

type fakeDuplicates struct {
	marked []string
	errOn  map[string]error
}

func (f *fakeDuplicates) MarkDuplicates(_ context.Context, id string) error {
	if err := f.errOn[id]; err != nil {
		return err
	}
	f.marked = append(f.marked, id)
	return nil
}

type fakeCatalogs struct {
	attrs    []domain.AttributeField
	latents  []domain.LatentType
	tags     []domain.Tag
	datasets []domain.Dataset

	attrCounts    map[string]int64
	latentCounts  map[string]int64
	tagCounts     map[string]int64
	datasetCounts map[string]int64
	attrMapped    []string
	latentMapped  []string
}

func (f *fakeCatalogs) Attributes(context.Context) ([]domain.AttributeField, error) {
	return f.attrs, nil
}

func (f *fakeCatalogs) LatentTypes(context.Context) ([]domain.LatentType, error) {
	return f.latents, nil
}

func (f *fakeCatalogs) Tags(context.Context) ([]domain.Tag, error) { return f.tags, nil }

func (f *fakeCatalogs) Datasets(context.Context) ([]domain.Dataset, error) {
	return f.datasets, nil
}

func (f *fakeCatalogs) SetAttributeImageCount(_ context.Context, name string, count int64) error {
	if f.attrCounts == nil {
		f.attrCounts = make(map[string]int64)
	}
	f.attrCounts[name] = count
	return nil
}

func (f *fakeCatalogs) SetLatentTypeImageCount(_ context.Context, name string, count int64) error {
	if f.latentCounts == nil {
		f.latentCounts = make(map[string]int64)
	}
	f.latentCounts[name] = count
	return nil
}

func (f *fakeCatalogs) SetTagImageCount(_ context.Context, name string, count int64) error {
	if f.tagCounts == nil {
		f.tagCounts = make(map[string]int64)
	}
	f.tagCounts[name] = count
	return nil
}

func (f *fakeCatalogs) SetDatasetImageCount(_ context.Context, slug string, version, count int64) error {
	if f.datasetCounts == nil {
		f.datasetCounts = make(map[string]int64)
	}
	f.datasetCounts[domain.Dataset{Slug: slug, Version: int(version)}.SlugVersion()] = count
	return nil
}

func (f *fakeCatalogs) MarkAttributeMapped(_ context.Context, name string) error {
	f.attrMapped = append(f.attrMapped, name)
	return nil
}

func (f *fakeCatalogs) MarkLatentTypeMapped(_ context.Context, name string) error {
	f.latentMapped = append(f.latentMapped, name)
	return nil
}

type fixture struct {
	searcher   *fakeSearcher
	lifecycle  *fakeLifecycle
	duplicates *fakeDuplicates
	catalogs   *fakeCatalogs
	worker     *Worker
}

func newFixture() *fixture {
	f := &fixture{
		searcher:   &fakeSearcher{},
		lifecycle:  &fakeLifecycle{},
		duplicates: &fakeDuplicates{},
		catalogs:   &fakeCatalogs{},
	}
	f.worker = New(f.searcher, f.lifecycle, f.duplicates, f.catalogs, zap.NewNop())
	return f
}

func resultOf(ids ...string) *imgrepo.Result {
	res := &imgrepo.Result{}
	for _, id := range ids {
		res.Images = append(res.Images, &domain.Image{ID: id})
	}
	return res
}

func queryJSON(opts imgrepo.SearchOpts) string {
	raw, _ := json.Marshal(opts.Query.Build())
	return string(raw)
}
