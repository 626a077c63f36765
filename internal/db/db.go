package db

import (
	"context"
	"time"
)

// Store is the main index facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade -- consumers depend on narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	DocumentReader
	DocumentWriter
	BulkWriter
	Searcher
	IndexManager
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks cluster connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Doc is a stored document with its identity and source fields.
type Doc struct {
	ID     string
	Found  bool
	Source map[string]any
}

// DocumentReader provides single and multi document reads.
type DocumentReader interface {
	Get(ctx context.Context, index, id string) (map[string]any, error)
	MGet(ctx context.Context, index string, ids []string) ([]Doc, error)
}

// DocumentWriter provides single document writes.
type DocumentWriter interface {
	Index(ctx context.Context, index, id string, doc map[string]any) error
	Update(ctx context.Context, index, id string, doc map[string]any, upsert bool) error
	Delete(ctx context.Context, index, id string) error
}

// BulkOp is a single partial-document update within a bulk request.
// When Upsert is set the document is created from Doc if it does not exist.
type BulkOp struct {
	ID     string
	Doc    map[string]any
	Upsert bool
}

// BulkItem is the per-document outcome of a bulk request.
type BulkItem struct {
	ID     string
	Status int
	Err    error
}

// BulkResult holds per-item outcomes in request order.
type BulkResult struct {
	Items []BulkItem
}

// BulkWriter provides batched partial-update writes.
type BulkWriter interface {
	Bulk(ctx context.Context, index string, ops []BulkOp) (*BulkResult, error)
}

// Searcher provides query and count operations.
type Searcher interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	Count(ctx context.Context, index string, query Query) (int64, error)
}

// IndexManager provides index metadata and lifecycle operations.
type IndexManager interface {
	Mapping(ctx context.Context, index string) (map[string]any, error)
	Shards(ctx context.Context, index string) (int, error)
	Refresh(ctx context.Context, index string) error
	EnsureIndex(ctx context.Context, index string, body map[string]any) error
}
