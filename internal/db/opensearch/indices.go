package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/Photoroom/dataroom/internal/db"
)

// Mapping returns the field mappings of an index as the raw properties map.
func (s *Store) Mapping(ctx context.Context, index string) (map[string]any, error) {
	res, err := opensearchapi.IndicesGetMappingRequest{Index: []string{index}}.Do(ctx, s.client)
	if err != nil {
		return nil, &db.Error{Op: db.OpMapping, Err: err}
	}
	if res.StatusCode == http.StatusNotFound {
		closeBody(res)
		return nil, db.ErrIndexNotFound
	}

	var body map[string]struct {
		Mappings struct {
			Properties map[string]any `json:"properties"`
		} `json:"mappings"`
	}
	if err := decode(res, db.OpMapping, &body); err != nil {
		return nil, err
	}
	for _, idx := range body {
		return idx.Mappings.Properties, nil
	}
	return nil, db.ErrIndexNotFound
}

// Shards returns the number of primary shards of an index.
func (s *Store) Shards(ctx context.Context, index string) (int, error) {
	res, err := opensearchapi.IndicesGetSettingsRequest{Index: []string{index}}.Do(ctx, s.client)
	if err != nil {
		return 0, &db.Error{Op: db.OpSettings, Err: err}
	}
	if res.StatusCode == http.StatusNotFound {
		closeBody(res)
		return 0, db.ErrIndexNotFound
	}

	var body map[string]struct {
		Settings struct {
			Index struct {
				NumberOfShards string `json:"number_of_shards"`
			} `json:"index"`
		} `json:"settings"`
	}
	if err := decode(res, db.OpSettings, &body); err != nil {
		return 0, err
	}
	for _, idx := range body {
		n, err := strconv.Atoi(idx.Settings.Index.NumberOfShards)
		if err != nil {
			return 0, &db.Error{Op: db.OpSettings, Err: err}
		}
		return n, nil
	}
	return 0, db.ErrIndexNotFound
}

// Refresh makes recent writes visible to search.
func (s *Store) Refresh(ctx context.Context, index string) error {
	res, err := opensearchapi.IndicesRefreshRequest{Index: []string{index}}.Do(ctx, s.client)
	if err != nil {
		return &db.Error{Op: db.OpRefresh, Err: err}
	}
	defer closeBody(res)
	if res.IsError() {
		return &db.Error{Op: db.OpRefresh, Err: statusError(res)}
	}
	return nil
}

// EnsureIndex creates the index with the given settings and mappings body
// if it does not already exist.
func (s *Store) EnsureIndex(ctx context.Context, index string, body map[string]any) error {
	res, err := opensearchapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, s.client)
	if err != nil {
		return &db.Error{Op: db.OpCreate, Err: err}
	}
	exists := res.StatusCode == http.StatusOK
	closeBody(res)
	if exists {
		return nil
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return &db.Error{Op: db.OpCreate, Err: err}
	}
	res, err = opensearchapi.IndicesCreateRequest{Index: index, Body: bytes.NewReader(reqBody)}.Do(ctx, s.client)
	if err != nil {
		return &db.Error{Op: db.OpCreate, Err: err}
	}
	defer closeBody(res)
	if res.IsError() {
		return &db.Error{Op: db.OpCreate, Err: statusError(res)}
	}
	return nil
}
