package image

import (
	"context"

	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/schema"
)

// fakeStore is a hand-rolled store mock recording the last request.
type fakeStore struct {
	getDoc     map[string]any
	getErr     error
	searchRes  *db.SearchResult
	searchErr  error
	lastSearch *db.SearchRequest

	updateErr  error
	lastUpdate map[string]any
	lastUpsert bool
	deleteErr  error
	bulkRes    *db.BulkResult
	bulkOps    []db.BulkOp
	countRes   int64
	shards     int
	refreshed  bool
	deletedID  string
	updatedID  string
	mgetDocs   []db.Doc
	mgetIDs    []string
	mapping    map[string]any
	ensured    string
	ensureBody map[string]any
}

func (f *fakeStore) Get(_ context.Context, _, _ string) (map[string]any, error) {
	return f.getDoc, f.getErr
}

func (f *fakeStore) MGet(_ context.Context, _ string, ids []string) ([]db.Doc, error) {
	f.mgetIDs = ids
	return f.mgetDocs, nil
}

func (f *fakeStore) EnsureIndex(_ context.Context, index string, body map[string]any) error {
	f.ensured = index
	f.ensureBody = body
	return nil
}

func (f *fakeStore) Mapping(_ context.Context, _ string) (map[string]any, error) {
	return f.mapping, nil
}

func (f *fakeStore) Search(_ context.Context, req *db.SearchRequest) (*db.SearchResult, error) {
	f.lastSearch = req
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchRes == nil {
		return &db.SearchResult{}, nil
	}
	return f.searchRes, nil
}

func (f *fakeStore) Count(_ context.Context, _ string, _ db.Query) (int64, error) {
	return f.countRes, nil
}

func (f *fakeStore) Update(_ context.Context, _, id string, doc map[string]any, upsert bool) error {
	f.updatedID = id
	f.lastUpdate = doc
	f.lastUpsert = upsert
	return f.updateErr
}

func (f *fakeStore) Delete(_ context.Context, _, id string) error {
	f.deletedID = id
	return f.deleteErr
}

func (f *fakeStore) Bulk(_ context.Context, _ string, ops []db.BulkOp) (*db.BulkResult, error) {
	f.bulkOps = ops
	if f.bulkRes == nil {
		items := make([]db.BulkItem, len(ops))
		for i, op := range ops {
			items[i] = db.BulkItem{ID: op.ID, Status: 200}
		}
		return &db.BulkResult{Items: items}, nil
	}
	return f.bulkRes, nil
}

func (f *fakeStore) Shards(_ context.Context, _ string) (int, error) {
	return f.shards, nil
}

func (f *fakeStore) Refresh(_ context.Context, _ string) error {
	f.refreshed = true
	return nil
}

// fixedSchemas serves one static snapshot.
type fixedSchemas struct {
	s *schema.Schema
}

func (f *fixedSchemas) Current(_ context.Context) (*schema.Schema, error) {
	return f.s, nil
}

func newTestRepo(store *fakeStore) *Repo {
	return New(store, &fixedSchemas{s: testSchema()}, "images")
}
