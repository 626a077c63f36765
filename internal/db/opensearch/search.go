package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/Photoroom/dataroom/internal/db"
)

// Search runs one query and returns the matching hits with their sort values.
func (s *Store) Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResult, error) {
	if req.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}

	reqBody, err := req.Body()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	res, err := opensearchapi.SearchRequest{
		Index:      []string{req.Index},
		Body:       bytes.NewReader(reqBody),
		Preference: req.Preference,
	}.Do(ctx, s.client)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	var body struct {
		TimedOut bool `json:"timed_out"`
		Aggs     map[string]struct {
			Buckets []struct {
				Key      any   `json:"key"`
				DocCount int64 `json:"doc_count"`
			} `json:"buckets"`
		} `json:"aggregations"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string          `json:"_id"`
				Score  *float64        `json:"_score"`
				Sort   []any           `json:"sort"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := decode(res, db.OpSearch, &body); err != nil {
		return nil, err
	}

	result := &db.SearchResult{
		Total:    body.Hits.Total.Value,
		TimedOut: body.TimedOut,
		Hits:     make([]db.Hit, 0, len(body.Hits.Hits)),
	}
	for _, h := range body.Hits.Hits {
		hit := db.Hit{ID: h.ID, Sort: h.Sort}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		if len(h.Source) > 0 {
			if err := json.Unmarshal(h.Source, &hit.Source); err != nil {
				return nil, &db.Error{Op: db.OpSearch, Err: err}
			}
		}
		result.Hits = append(result.Hits, hit)
	}
	if len(body.Aggs) > 0 {
		result.Aggs = make(map[string][]db.Bucket, len(body.Aggs))
		for name, agg := range body.Aggs {
			buckets := make([]db.Bucket, 0, len(agg.Buckets))
			for _, b := range agg.Buckets {
				buckets = append(buckets, db.Bucket{Key: b.Key, DocCount: b.DocCount})
			}
			result.Aggs[name] = buckets
		}
	}
	return result, nil
}

// Count returns how many documents match query. A nil query counts everything.
func (s *Store) Count(ctx context.Context, index string, query db.Query) (int64, error) {
	var reqBody []byte
	if query != nil {
		var err error
		reqBody, err = json.Marshal(map[string]any{"query": query})
		if err != nil {
			return 0, &db.Error{Op: db.OpCount, Err: err}
		}
	}

	req := opensearchapi.CountRequest{Index: []string{index}}
	if reqBody != nil {
		req.Body = bytes.NewReader(reqBody)
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}

	var body struct {
		Count int64 `json:"count"`
	}
	if err := decode(res, db.OpCount, &body); err != nil {
		return 0, err
	}
	return body.Count, nil
}
