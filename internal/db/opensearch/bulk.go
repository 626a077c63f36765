package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/Photoroom/dataroom/internal/db"
)

// Bulk applies partial-document updates in a single request. The returned
// result has one item per op, in request order; item errors do not fail the
// whole call.
func (s *Store) Bulk(ctx context.Context, index string, ops []db.BulkOp) (*db.BulkResult, error) {
	if len(ops) == 0 {
		return &db.BulkResult{}, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, op := range ops {
		action := map[string]any{"update": map[string]any{"_id": op.ID}}
		if err := enc.Encode(action); err != nil {
			return nil, &db.Error{Op: db.OpBulk, Err: err}
		}
		payload := map[string]any{"doc": op.Doc}
		if op.Upsert {
			payload["doc_as_upsert"] = true
		}
		if err := enc.Encode(payload); err != nil {
			return nil, &db.Error{Op: db.OpBulk, Err: err}
		}
	}

	res, err := opensearchapi.BulkRequest{Index: index, Body: &buf}.Do(ctx, s.client)
	if err != nil {
		return nil, &db.Error{Op: db.OpBulk, Err: err}
	}

	var body struct {
		Items []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := decode(res, db.OpBulk, &body); err != nil {
		return nil, err
	}

	result := &db.BulkResult{Items: make([]db.BulkItem, 0, len(body.Items))}
	for _, entry := range body.Items {
		for _, it := range entry {
			item := db.BulkItem{ID: it.ID, Status: it.Status}
			switch {
			case it.Status == http.StatusConflict:
				item.Err = db.ErrVersionConflict
			case it.Error != nil:
				item.Err = fmt.Errorf("%s: %s", it.Error.Type, it.Error.Reason)
			}
			result.Items = append(result.Items, item)
		}
	}
	return result, nil
}
