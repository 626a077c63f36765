// Package domain holds the core dataroom types: the image record, the
// relational catalog rows that govern its dynamic fields, and the error
// kinds surfaced to callers.
package domain

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/Photoroom/dataroom/internal/domain/attr"
)

const (
	// IDMinLength and IDMaxLength bound image ids.
	IDMinLength = 1
	IDMaxLength = 512
	// LatentTypeMinLength and LatentTypeMaxLength bound latent type names.
	LatentTypeMinLength = 1
	LatentTypeMaxLength = 128
	// RelatedImageKeyMaxLength bounds related-image relation names.
	RelatedImageKeyMaxLength = 128
	// EmbeddingDim is the dimensionality of image embeddings.
	EmbeddingDim = 768
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID checks the id character set and length rules.
func ValidateID(id string) error {
	if len(id) < IDMinLength || len(id) > IDMaxLength {
		return fmt.Errorf("id must have between %d and %d characters", IDMinLength, IDMaxLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("id can only contain alphanumeric characters, dashes, and underscores")
	}
	return nil
}

// DuplicateState is the duplicate-resolution state of an image.
// It only ever moves forward: unprocessed to original or duplicate.
type DuplicateState int

const (
	// DuplicateUnprocessed means the image has not been through duplicate
	// detection. Stored as a null/absent field.
	DuplicateUnprocessed DuplicateState = 0
	// DuplicateOriginal marks the largest image of a duplicate group.
	DuplicateOriginal DuplicateState = 1
	// DuplicateDuplicate marks a non-original member of a duplicate group.
	DuplicateDuplicate DuplicateState = 2
)

// Valid reports whether s is a known state.
func (s DuplicateState) Valid() bool {
	return s == DuplicateUnprocessed || s == DuplicateOriginal || s == DuplicateDuplicate
}

// CanTransitionTo reports whether moving to next is allowed. Resolved states
// never transition backward.
func (s DuplicateState) CanTransitionTo(next DuplicateState) bool {
	if !next.Valid() {
		return false
	}
	if s == DuplicateUnprocessed {
		return true
	}
	return s == next
}

// Embedding is the image's vector embedding sub-object.
type Embedding struct {
	Exists bool
	Vector []float32
	Author string
}

// Latent is a named binary attachment on an image.
type Latent struct {
	Type    string
	File    string // blob store path, empty when removed
	IsMask  bool
	Removed bool
}

// Meta carries per-hit search metadata.
type Meta struct {
	Score float64
	Sort  []any
}

// Image is the central record. Its canonical storage is one document in the
// search index; relational catalogs only govern which dynamic fields it may
// carry.
type Image struct {
	ID                  string
	Source              string
	Image               string // blob store path of the original file
	ImageHash           string // content hash with algorithm prefix
	Width               int64
	Height              int64
	ShortEdge           int64
	PixelCount          int64
	AspectRatio         float64
	AspectRatioFraction string
	Thumbnail           string
	ThumbnailError      bool
	OriginalURL         string
	Author              string
	Tags                []string
	Embedding           Embedding
	Attributes          map[string]attr.Value
	Latents             map[string]Latent
	RelatedImages       map[string]string
	Datasets            []string
	DuplicateState      DuplicateState
	IsDeleted           bool
	DateCreated         time.Time
	DateUpdated         time.Time

	Meta *Meta
}

// PixelArea returns width*height, the ranking key for duplicate resolution.
func (im *Image) PixelArea() int64 {
	return im.Width * im.Height
}

// HasDataset reports dataset membership.
func (im *Image) HasDataset(slugVersion string) bool {
	for _, ds := range im.Datasets {
		if ds == slugVersion {
			return true
		}
	}
	return false
}

// AddDataset adds a dataset membership, ignoring duplicates.
func (im *Image) AddDataset(slugVersion string) {
	if !im.HasDataset(slugVersion) {
		im.Datasets = append(im.Datasets, slugVersion)
	}
}

// RemoveDataset removes a dataset membership if present.
func (im *Image) RemoveDataset(slugVersion string) {
	for i, ds := range im.Datasets {
		if ds == slugVersion {
			im.Datasets = append(im.Datasets[:i], im.Datasets[i+1:]...)
			return
		}
	}
}

// NormalizeSimilarity converts an inner-product search score to cosine
// similarity.
func NormalizeSimilarity(score float64) float64 {
	if score >= 1 {
		return score - 1
	}
	if score != 0 {
		return 1 - (1 / score)
	}
	return 0
}

// NormalizeVector scales a vector to unit L2 norm. Zero vectors come back
// unchanged.
func NormalizeVector(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vector
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// SortedDatasets returns a sorted, deduplicated copy of the memberships.
// Documents always store datasets in this canonical order.
func (im *Image) SortedDatasets() []string {
	seen := make(map[string]struct{}, len(im.Datasets))
	out := make([]string, 0, len(im.Datasets))
	for _, ds := range im.Datasets {
		if _, ok := seen[ds]; ok {
			continue
		}
		seen[ds] = struct{}{}
		out = append(out, ds)
	}
	sort.Strings(out)
	return out
}

// RequiredFields lists fields that must be set before a create.
var RequiredFields = []string{
	"id", "source", "image", "image_hash",
	"width", "height", "short_edge", "pixel_count",
	"aspect_ratio", "aspect_ratio_fraction",
}

// ValidateRequired checks the required fields, restricted to the given field
// list when non-empty.
func (im *Image) ValidateRequired(fieldList []string) error {
	selected := RequiredFields
	if len(fieldList) > 0 {
		selected = selected[:0:0]
		for _, f := range fieldList {
			for _, req := range RequiredFields {
				if f == req {
					selected = append(selected, f)
				}
			}
		}
	}
	for _, f := range selected {
		if !im.fieldSet(f) {
			return fmt.Errorf("image field %q is required", f)
		}
	}
	return nil
}

func (im *Image) fieldSet(field string) bool {
	switch field {
	case "id":
		return im.ID != ""
	case "source":
		return im.Source != ""
	case "image":
		return im.Image != ""
	case "image_hash":
		return im.ImageHash != ""
	case "width":
		return im.Width != 0
	case "height":
		return im.Height != 0
	case "short_edge":
		return im.ShortEdge != 0
	case "pixel_count":
		return im.PixelCount != 0
	case "aspect_ratio":
		return im.AspectRatio != 0
	case "aspect_ratio_fraction":
		return im.AspectRatioFraction != ""
	}
	return true
}

var relatedKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateRelatedImages checks relation names and referenced ids against the
// character and length rules. Referenced ids are not checked for existence.
func ValidateRelatedImages(images map[string]string) error {
	for key, value := range images {
		if len(key) < 1 || len(key) > RelatedImageKeyMaxLength {
			return fmt.Errorf("key in related_images can only be %d characters long", RelatedImageKeyMaxLength)
		}
		if !relatedKeyPattern.MatchString(key) {
			return fmt.Errorf("key in related_images can only contain alphanumeric characters, dashes, and underscores")
		}
		if err := ValidateID(value); err != nil {
			return fmt.Errorf("value in related_images: %w", err)
		}
	}
	return nil
}
