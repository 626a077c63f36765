package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals a missing image document.
	ErrNotFound = errors.New("not found")
	// ErrFieldNotFound signals an attribute name unknown to the catalog.
	ErrFieldNotFound = errors.New("field not found")
	// ErrInvalidFilter signals a malformed or illegal filter expression.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrSaveConflict signals a concurrent-writer version conflict.
	ErrSaveConflict = errors.New("save conflict")
	// ErrLatentType signals an invalid latent type reference.
	ErrLatentType = errors.New("invalid latent type")
	// ErrMissingEmbedding signals a similarity operation on an image without
	// an embedding.
	ErrMissingEmbedding = errors.New("missing embedding")
	// ErrFrozenDataset signals a membership change on a frozen dataset.
	ErrFrozenDataset = errors.New("dataset is frozen")
	// ErrValidation signals a schema or catalog validation failure.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyExists signals a create colliding with stored images by id
	// or pixel hash.
	ErrAlreadyExists = errors.New("already exists")
)

// FieldNotFoundError wraps ErrFieldNotFound with the offending name(s).
type FieldNotFoundError struct {
	Names []string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %s not found in schema", quoteJoin(e.Names))
}

func (e *FieldNotFoundError) Unwrap() error { return ErrFieldNotFound }

// NewFieldNotFound creates a field-not-found error for one or more names.
func NewFieldNotFound(names ...string) error {
	return &FieldNotFoundError{Names: names}
}

// InvalidFilterError wraps ErrInvalidFilter with a description.
type InvalidFilterError struct {
	Reason string
}

func (e *InvalidFilterError) Error() string { return e.Reason }

func (e *InvalidFilterError) Unwrap() error { return ErrInvalidFilter }

// NewInvalidFilter creates an invalid-filter error.
func NewInvalidFilter(format string, args ...any) error {
	return &InvalidFilterError{Reason: fmt.Sprintf(format, args...)}
}

// SaveConflictError wraps ErrSaveConflict with the document id.
type SaveConflictError struct {
	ID string
}

func (e *SaveConflictError) Error() string {
	return fmt.Sprintf("save conflict on image %q", e.ID)
}

func (e *SaveConflictError) Unwrap() error { return ErrSaveConflict }

// NewSaveConflict creates a save-conflict error for a document.
func NewSaveConflict(id string) error {
	return &SaveConflictError{ID: id}
}

// LatentTypeError wraps ErrLatentType with a message.
type LatentTypeError struct {
	Message string
}

func (e *LatentTypeError) Error() string { return e.Message }

func (e *LatentTypeError) Unwrap() error { return ErrLatentType }

// NewLatentTypeError creates a latent-type validation error.
func NewLatentTypeError(format string, args ...any) error {
	return &LatentTypeError{Message: fmt.Sprintf(format, args...)}
}

// MissingEmbeddingError wraps ErrMissingEmbedding with the image id.
type MissingEmbeddingError struct {
	ID string
}

func (e *MissingEmbeddingError) Error() string {
	return fmt.Sprintf("image %q has no embedding", e.ID)
}

func (e *MissingEmbeddingError) Unwrap() error { return ErrMissingEmbedding }

// NewMissingEmbedding creates a missing-embedding error.
func NewMissingEmbedding(id string) error {
	return &MissingEmbeddingError{ID: id}
}

// ValidationError wraps ErrValidation with one message per offending value,
// collected as completely as practical rather than failing on the first.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error from messages.
func NewValidationError(messages ...string) error {
	return &ValidationError{Messages: messages}
}

// AlreadyExistsError wraps ErrAlreadyExists with the colliding image ids.
type AlreadyExistsError struct {
	IDs []string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("images %s already exist", quoteJoin(e.IDs))
}

func (e *AlreadyExistsError) Unwrap() error { return ErrAlreadyExists }

// NewAlreadyExists creates an already-exists error from the colliding ids.
func NewAlreadyExists(ids ...string) error {
	return &AlreadyExistsError{IDs: ids}
}

func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}
