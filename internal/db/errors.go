package db

import "errors"

// Sentinel errors for index operations.
var (
	ErrDocNotFound     = errors.New("db: document not found")
	ErrVersionConflict = errors.New("db: version conflict")
	ErrIndexNotFound   = errors.New("db: index not found")
)

// Op constants name the index API call for error context.
const (
	OpGet      = "get"
	OpMGet     = "mget"
	OpIndex    = "index"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpBulk     = "bulk"
	OpSearch   = "search"
	OpCount    = "count"
	OpMapping  = "mapping"
	OpSettings = "settings"
	OpRefresh  = "refresh"
	OpCreate   = "create"
	OpPing     = "ping"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
