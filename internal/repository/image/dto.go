package image

import (
	"fmt"
	"time"

	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/domain"
	"github.com/Photoroom/dataroom/internal/domain/attr"
	"github.com/Photoroom/dataroom/internal/domain/fields"
	"github.com/Photoroom/dataroom/internal/schema"
)

// Logical field names addressable in save field lists and projections.
const (
	FieldID                  = "id"
	FieldSource              = "source"
	FieldImage               = "image"
	FieldDateCreated         = "date_created"
	FieldDateUpdated         = "date_updated"
	FieldIsDeleted           = "is_deleted"
	FieldAuthor              = "author"
	FieldImageHash           = "image_hash"
	FieldWidth               = "width"
	FieldHeight              = "height"
	FieldShortEdge           = "short_edge"
	FieldPixelCount          = "pixel_count"
	FieldAspectRatio         = "aspect_ratio"
	FieldAspectRatioFraction = "aspect_ratio_fraction"
	FieldThumbnail           = "thumbnail"
	FieldThumbnailError      = "thumbnail_error"
	FieldOriginalURL         = "original_url"
	FieldTags                = "tags"
	FieldEmbedding           = "coca_embedding"
	FieldLatents             = "latents"
	FieldAttributes          = "attributes"
	FieldDuplicateState      = "duplicate_state"
	FieldRelatedImages       = "related_images"
	FieldDatasets            = "datasets"
)

// AllFields lists every logical field, in document order.
var AllFields = []string{
	FieldID, FieldSource, FieldImage, FieldDateCreated, FieldDateUpdated,
	FieldIsDeleted, FieldAuthor, FieldImageHash, FieldWidth, FieldHeight,
	FieldShortEdge, FieldPixelCount, FieldAspectRatio, FieldAspectRatioFraction,
	FieldThumbnail, FieldThumbnailError, FieldOriginalURL, FieldTags,
	FieldEmbedding, FieldLatents, FieldAttributes, FieldDuplicateState,
	FieldRelatedImages, FieldDatasets,
}

// projections maps logical fields to the physical fields backing them, for
// _source includes. Latents and attributes expand to wildcards handled by
// the index.
var projections = map[string][]string{
	FieldEmbedding:  {"coca_embedding_exists", "coca_embedding_vector", "coca_embedding_author"},
	FieldLatents:    {"latent_*"},
	FieldAttributes: {"attr_*"},
}

// DocFields expands logical field names to physical _source includes.
// The id and is_deleted fields are always included.
func DocFields(logical []string) ([]string, error) {
	known := make(map[string]struct{}, len(AllFields))
	for _, f := range AllFields {
		known[f] = struct{}{}
	}

	out := []string{FieldID, FieldIsDeleted}
	for _, f := range logical {
		if _, ok := known[f]; !ok {
			return nil, domain.NewValidationError(fmt.Sprintf("invalid field: %s", f))
		}
		if phys, ok := projections[f]; ok {
			out = append(out, phys...)
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// encodeImage converts an image into a flat index document. A non-empty
// field list restricts the output to those logical fields; unknown names
// fail.
func encodeImage(img *domain.Image, fieldList []string) (map[string]any, error) {
	selected := fieldList
	if len(selected) == 0 {
		selected = AllFields
	}

	doc := make(map[string]any, len(selected))
	for _, field := range selected {
		switch field {
		case FieldID:
			doc[FieldID] = img.ID
		case FieldSource:
			doc[FieldSource] = emptyAsNil(img.Source)
		case FieldImage:
			doc[FieldImage] = emptyAsNil(img.Image)
		case FieldDateCreated:
			doc[FieldDateCreated] = encodeTime(img.DateCreated)
		case FieldDateUpdated:
			doc[FieldDateUpdated] = encodeTime(img.DateUpdated)
		case FieldIsDeleted:
			doc[FieldIsDeleted] = img.IsDeleted
		case FieldAuthor:
			doc[FieldAuthor] = emptyAsNil(img.Author)
		case FieldImageHash:
			doc[FieldImageHash] = emptyAsNil(img.ImageHash)
		case FieldWidth:
			doc[FieldWidth] = img.Width
		case FieldHeight:
			doc[FieldHeight] = img.Height
		case FieldShortEdge:
			doc[FieldShortEdge] = img.ShortEdge
		case FieldPixelCount:
			doc[FieldPixelCount] = img.PixelCount
		case FieldAspectRatio:
			doc[FieldAspectRatio] = img.AspectRatio
		case FieldAspectRatioFraction:
			doc[FieldAspectRatioFraction] = emptyAsNil(img.AspectRatioFraction)
		case FieldThumbnail:
			doc[FieldThumbnail] = emptyAsNil(img.Thumbnail)
		case FieldThumbnailError:
			doc[FieldThumbnailError] = img.ThumbnailError
		case FieldOriginalURL:
			doc[FieldOriginalURL] = emptyAsNil(img.OriginalURL)
		case FieldTags:
			doc[FieldTags] = img.Tags
		case FieldEmbedding:
			doc["coca_embedding_exists"] = img.Embedding.Exists
			if img.Embedding.Exists {
				doc["coca_embedding_vector"] = img.Embedding.Vector
				doc["coca_embedding_author"] = emptyAsNil(img.Embedding.Author)
			} else {
				doc["coca_embedding_vector"] = nil
				doc["coca_embedding_author"] = nil
			}
		case FieldLatents:
			for _, latent := range img.Latents {
				if latent.Removed {
					doc[fields.Latent(latent.Type)] = nil
					continue
				}
				doc[fields.Latent(latent.Type)] = latent.File
			}
		case FieldAttributes:
			for _, v := range img.Attributes {
				doc[v.PhysicalName()] = v.Any()
			}
		case FieldDuplicateState:
			if img.DuplicateState == domain.DuplicateUnprocessed {
				doc[FieldDuplicateState] = nil
			} else {
				doc[FieldDuplicateState] = int64(img.DuplicateState)
			}
		case FieldRelatedImages:
			doc[FieldRelatedImages] = img.RelatedImages
		case FieldDatasets:
			doc[FieldDatasets] = img.SortedDatasets()
		default:
			return nil, domain.NewValidationError(fmt.Sprintf("invalid field: %s", field))
		}
	}
	return doc, nil
}

// decodeHit converts a search hit back into an image. Attribute fields whose
// physical type no longer matches the catalog are dropped, as are latents of
// unknown types; old documents must stay readable after schema changes.
func decodeHit(hit db.Hit, s *schema.Schema) *domain.Image {
	img := decodeDoc(hit.ID, hit.Source, s)
	if hit.Score != 0 || len(hit.Sort) > 0 {
		img.Meta = &domain.Meta{Score: hit.Score, Sort: hit.Sort}
	}
	return img
}

func decodeDoc(id string, src map[string]any, s *schema.Schema) *domain.Image {
	img := &domain.Image{
		ID:            id,
		Tags:          []string{},
		Attributes:    map[string]attr.Value{},
		Latents:       map[string]domain.Latent{},
		RelatedImages: map[string]string{},
		Datasets:      []string{},
	}

	for key, raw := range src {
		switch key {
		case FieldID:
			// identity comes from the hit
		case FieldSource:
			img.Source = asString(raw)
		case FieldImage:
			img.Image = asString(raw)
		case FieldDateCreated:
			img.DateCreated = decodeTime(raw)
		case FieldDateUpdated:
			img.DateUpdated = decodeTime(raw)
		case FieldIsDeleted:
			img.IsDeleted = asBool(raw)
		case FieldAuthor:
			img.Author = asString(raw)
		case FieldImageHash:
			img.ImageHash = asString(raw)
		case FieldWidth:
			img.Width = asInt64(raw)
		case FieldHeight:
			img.Height = asInt64(raw)
		case FieldShortEdge:
			img.ShortEdge = asInt64(raw)
		case FieldPixelCount:
			img.PixelCount = asInt64(raw)
		case FieldAspectRatio:
			img.AspectRatio = asFloat64(raw)
		case FieldAspectRatioFraction:
			img.AspectRatioFraction = asString(raw)
		case FieldThumbnail:
			img.Thumbnail = asString(raw)
		case FieldThumbnailError:
			img.ThumbnailError = asBool(raw)
		case FieldOriginalURL:
			img.OriginalURL = asString(raw)
		case FieldTags:
			img.Tags = asStringSlice(raw)
		case "coca_embedding_exists":
			img.Embedding.Exists = asBool(raw)
		case "coca_embedding_vector":
			img.Embedding.Vector = asVector(raw)
		case "coca_embedding_author":
			img.Embedding.Author = asString(raw)
		case FieldDuplicateState:
			img.DuplicateState = domain.DuplicateState(asInt64(raw))
		case FieldRelatedImages:
			if m, ok := raw.(map[string]any); ok {
				for k, v := range m {
					img.RelatedImages[k] = asString(v)
				}
			}
		case FieldDatasets:
			img.Datasets = asStringSlice(raw)
		default:
			decodeDynamicField(img, key, raw, s)
		}
	}
	return img
}

// decodeDynamicField handles attr_* and latent_* keys.
func decodeDynamicField(img *domain.Image, key string, raw any, s *schema.Schema) {
	if latentType, ok := fields.ParseLatent(key); ok {
		file := asString(raw)
		lt, known := s.Latent(latentType)
		if file == "" || !known {
			return
		}
		img.Latents[latentType] = domain.Latent{Type: latentType, File: file, IsMask: lt.IsMask}
		return
	}

	parsed, ok := fields.ParseAttr(key)
	if !ok {
		return
	}
	def, known := s.Attribute(parsed.Name)
	if !known {
		return
	}
	expected, err := def.ResolvedType()
	if err != nil || expected != parsed.Type {
		return
	}
	v, err := attr.NewValue(parsed.Name, parsed.Type, parsed.Indexed, raw)
	if err != nil {
		return
	}
	img.Attributes[parsed.Name] = v
}

func encodeTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(raw any) time.Time {
	s, ok := raw.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func emptyAsNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func asString(raw any) string {
	s, _ := raw.(string)
	return s
}

func asBool(raw any) bool {
	b, _ := raw.(bool)
	return b
}

func asInt64(raw any) int64 {
	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func asFloat64(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func asStringSlice(raw any) []string {
	arr, ok := raw.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asVector(raw any) []float32 {
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(arr))
	for _, item := range arr {
		out = append(out, float32(asFloat64(item)))
	}
	return out
}
