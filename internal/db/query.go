package db

import (
	"encoding/json"
	"time"
)

// Query is a single query DSL clause, marshaled verbatim into the request body.
type Query map[string]any

// MatchAll matches every document.
func MatchAll() Query {
	return Query{"match_all": map[string]any{}}
}

// Term matches documents whose field holds exactly value.
func Term(field string, value any) Query {
	return Query{"term": map[string]any{field: value}}
}

// Terms matches documents whose field holds any of values.
func Terms(field string, values []any) Query {
	return Query{"terms": map[string]any{field: values}}
}

// Range matches documents whose field satisfies the given bounds,
// e.g. Range("attr_score_double", map[string]any{"gte": 0.5}).
func Range(field string, bounds map[string]any) Query {
	return Query{"range": map[string]any{field: bounds}}
}

// Match runs full-text matching against an analyzed field.
func Match(field string, value any) Query {
	return Query{"match": map[string]any{field: value}}
}

// MatchPhrase runs phrase matching against an analyzed field.
func MatchPhrase(field string, value any) Query {
	return Query{"match_phrase": map[string]any{field: value}}
}

// Prefix matches documents whose field starts with value.
func Prefix(field string, value string) Query {
	return Query{"prefix": map[string]any{field: value}}
}

// Exists matches documents that have any value for field.
func Exists(field string) Query {
	return Query{"exists": map[string]any{"field": field}}
}

// IDs matches documents by their identifiers.
func IDs(ids []string) Query {
	return Query{"ids": map[string]any{"values": ids}}
}

// KNN is an approximate nearest-neighbour clause over a vector field.
// A non-nil filter restricts the candidate set before the search.
func KNN(field string, vector []float32, k int, filter Query) Query {
	inner := map[string]any{
		"vector": vector,
		"k":      k,
	}
	if filter != nil {
		inner["filter"] = filter
	}
	return Query{"knn": map[string]any{field: inner}}
}

// BoolQuery accumulates clauses for a compound bool query.
type BoolQuery struct {
	must               []Query
	filter             []Query
	should             []Query
	mustNot            []Query
	minimumShouldMatch int
}

// NewBool starts an empty bool query.
func NewBool() *BoolQuery {
	return &BoolQuery{}
}

// Must adds clauses that every document must satisfy.
func (b *BoolQuery) Must(qs ...Query) *BoolQuery {
	b.must = append(b.must, qs...)
	return b
}

// Filter adds non-scoring clauses that every document must satisfy.
func (b *BoolQuery) Filter(qs ...Query) *BoolQuery {
	b.filter = append(b.filter, qs...)
	return b
}

// Should adds optional clauses.
func (b *BoolQuery) Should(qs ...Query) *BoolQuery {
	b.should = append(b.should, qs...)
	return b
}

// MustNot adds clauses that no document may satisfy.
func (b *BoolQuery) MustNot(qs ...Query) *BoolQuery {
	b.mustNot = append(b.mustNot, qs...)
	return b
}

// MinimumShouldMatch sets how many should clauses must hold.
func (b *BoolQuery) MinimumShouldMatch(n int) *BoolQuery {
	b.minimumShouldMatch = n
	return b
}

// Empty reports whether no clause has been added.
func (b *BoolQuery) Empty() bool {
	return len(b.must) == 0 && len(b.filter) == 0 && len(b.should) == 0 && len(b.mustNot) == 0
}

// Build renders the accumulated clauses. An empty builder renders match_all.
func (b *BoolQuery) Build() Query {
	if b.Empty() {
		return MatchAll()
	}
	inner := map[string]any{}
	if len(b.must) > 0 {
		inner["must"] = b.must
	}
	if len(b.filter) > 0 {
		inner["filter"] = b.filter
	}
	if len(b.should) > 0 {
		inner["should"] = b.should
	}
	if len(b.mustNot) > 0 {
		inner["must_not"] = b.mustNot
	}
	if b.minimumShouldMatch > 0 {
		inner["minimum_should_match"] = b.minimumShouldMatch
	}
	return Query{"bool": inner}
}

// SortField is a single sort directive, e.g. {Field: "id", Order: "asc"}.
type SortField struct {
	Field string
	Order string
}

// SearchRequest describes one query against an index.
type SearchRequest struct {
	Index          string
	Query          Query
	Size           int
	Sort           []SortField
	SearchAfter    []any
	SourceIncludes []string
	SourceExcludes []string
	Preference     string
	MinScore       float64
	TrackTotalHits bool
	Timeout        time.Duration
	Aggs           map[string]any
}

// TermsAgg is a terms aggregation body, counting documents per field value.
func TermsAgg(field, order string, size int) map[string]any {
	return map[string]any{
		"terms": map[string]any{
			"field": field,
			"order": map[string]any{"_count": order},
			"size":  size,
		},
	}
}

// Body renders the request body as JSON.
func (r *SearchRequest) Body() ([]byte, error) {
	body := map[string]any{}
	if r.Query != nil {
		body["query"] = r.Query
	}
	switch {
	case r.Size > 0:
		body["size"] = r.Size
	case len(r.Aggs) > 0:
		// Aggregation-only request; suppress the index's default hit page.
		body["size"] = 0
	}
	if len(r.Sort) > 0 {
		sorts := make([]map[string]any, 0, len(r.Sort))
		for _, s := range r.Sort {
			sorts = append(sorts, map[string]any{s.Field: map[string]any{"order": s.Order}})
		}
		body["sort"] = sorts
	}
	if len(r.SearchAfter) > 0 {
		body["search_after"] = r.SearchAfter
	}
	if len(r.SourceIncludes) > 0 || len(r.SourceExcludes) > 0 {
		src := map[string]any{}
		if len(r.SourceIncludes) > 0 {
			src["includes"] = r.SourceIncludes
		}
		if len(r.SourceExcludes) > 0 {
			src["excludes"] = r.SourceExcludes
		}
		body["_source"] = src
	}
	if r.MinScore > 0 {
		body["min_score"] = r.MinScore
	}
	if r.TrackTotalHits {
		body["track_total_hits"] = true
	}
	if r.Timeout > 0 {
		body["timeout"] = r.Timeout.String()
	}
	if len(r.Aggs) > 0 {
		body["aggs"] = r.Aggs
	}
	return json.Marshal(body)
}

// Hit is a single document returned by a search.
type Hit struct {
	ID     string
	Score  float64
	Sort   []any
	Source map[string]any
}

// Bucket is one terms-aggregation bucket.
type Bucket struct {
	Key      any
	DocCount int64
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total    int64
	TimedOut bool
	Hits     []Hit
	Aggs     map[string][]Bucket
}
