package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/Photoroom/dataroom/internal/db"
)

// Get fetches one document's source. Missing documents return db.ErrDocNotFound.
func (s *Store) Get(ctx context.Context, index, id string) (map[string]any, error) {
	res, err := opensearchapi.GetRequest{Index: index, DocumentID: id}.Do(ctx, s.client)
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	if res.StatusCode == http.StatusNotFound {
		closeBody(res)
		return nil, db.ErrDocNotFound
	}

	var body struct {
		Found  bool           `json:"found"`
		Source map[string]any `json:"_source"`
	}
	if err := decode(res, db.OpGet, &body); err != nil {
		return nil, err
	}
	if !body.Found {
		return nil, db.ErrDocNotFound
	}
	return body.Source, nil
}

// MGet fetches multiple documents in one round trip. Results are in
// request order; missing documents come back with Found unset.
func (s *Store) MGet(ctx context.Context, index string, ids []string) ([]db.Doc, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(map[string]any{"ids": ids})
	if err != nil {
		return nil, &db.Error{Op: db.OpMGet, Err: err}
	}

	res, err := opensearchapi.MgetRequest{Index: index, Body: bytes.NewReader(reqBody)}.Do(ctx, s.client)
	if err != nil {
		return nil, &db.Error{Op: db.OpMGet, Err: err}
	}

	var body struct {
		Docs []struct {
			ID     string         `json:"_id"`
			Found  bool           `json:"found"`
			Source map[string]any `json:"_source"`
		} `json:"docs"`
	}
	if err := decode(res, db.OpMGet, &body); err != nil {
		return nil, err
	}

	docs := make([]db.Doc, 0, len(body.Docs))
	for _, d := range body.Docs {
		docs = append(docs, db.Doc{ID: d.ID, Found: d.Found, Source: d.Source})
	}
	return docs, nil
}

// Index writes a full document, replacing any existing one.
func (s *Store) Index(ctx context.Context, index, id string, doc map[string]any) error {
	reqBody, err := json.Marshal(doc)
	if err != nil {
		return &db.Error{Op: db.OpIndex, Err: err}
	}

	res, err := opensearchapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(reqBody),
	}.Do(ctx, s.client)
	if err != nil {
		return &db.Error{Op: db.OpIndex, Err: err}
	}
	defer closeBody(res)
	if res.IsError() {
		return &db.Error{Op: db.OpIndex, Err: statusError(res)}
	}
	return nil
}

// Update applies a partial document. With upsert the partial document
// becomes the initial document when none exists. Concurrent writes to the
// same document surface as db.ErrVersionConflict.
func (s *Store) Update(ctx context.Context, index, id string, doc map[string]any, upsert bool) error {
	payload := map[string]any{"doc": doc}
	if upsert {
		payload["doc_as_upsert"] = true
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return &db.Error{Op: db.OpUpdate, Err: err}
	}

	res, err := opensearchapi.UpdateRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(reqBody),
	}.Do(ctx, s.client)
	if err != nil {
		return &db.Error{Op: db.OpUpdate, Err: err}
	}
	defer closeBody(res)
	switch {
	case res.StatusCode == http.StatusConflict:
		return db.ErrVersionConflict
	case res.StatusCode == http.StatusNotFound:
		return db.ErrDocNotFound
	case res.IsError():
		return &db.Error{Op: db.OpUpdate, Err: statusError(res)}
	}
	return nil
}

// Delete removes a document. Missing documents return db.ErrDocNotFound.
func (s *Store) Delete(ctx context.Context, index, id string) error {
	res, err := opensearchapi.DeleteRequest{Index: index, DocumentID: id}.Do(ctx, s.client)
	if err != nil {
		return &db.Error{Op: db.OpDelete, Err: err}
	}
	defer closeBody(res)
	switch {
	case res.StatusCode == http.StatusNotFound:
		return db.ErrDocNotFound
	case res.IsError():
		return &db.Error{Op: db.OpDelete, Err: statusError(res)}
	}
	return nil
}
