package image

// DefaultShards is sized for the 70-170 million image range at 20-50gb per
// shard.
const DefaultShards = 48

// EmbeddingDimension is the width of the embedding vector field.
const EmbeddingDimension = 768

// keyword returns a non-scoring exact-match field mapping.
func keyword() map[string]any {
	return map[string]any{"type": "keyword", "norms": false}
}

// noidxAttr returns a stored, aggregatable but non-searchable field mapping
// for unindexed attributes.
func noidxAttr(osType string) map[string]any {
	return map[string]any{"type": osType, "index": false, "doc_values": true}
}

// attrTemplate pairs a dynamic template name with a physical-name regex and
// the mapping applied to matching fields.
func attrTemplate(name, pattern string, mapping map[string]any) map[string]any {
	return map[string]any{
		name: map[string]any{
			"match_pattern": "regex",
			"match":         pattern,
			"mapping":       mapping,
		},
	}
}

// IndexBody builds the settings and mappings of the image index. Builtin
// fields are mapped explicitly; attribute and latent fields arrive through
// dynamic templates keyed on the physical naming scheme, with the resolved
// type in the name so a catalog type change never overwrites existing data.
func IndexBody(shards int) map[string]any {
	if shards <= 0 {
		shards = DefaultShards
	}
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"number_of_shards":         shards,
				"number_of_replicas":       0,
				"knn":                      true,
				"knn.algo_param.ef_search": 100,
				"mapping": map[string]any{
					"total_fields": map[string]any{"limit": "2000"},
				},
			},
		},
		"mappings": map[string]any{
			// Norms are disabled on every keyword field; they only feed
			// relevance scoring, which nothing here uses.
			"properties": map[string]any{
				FieldID:          keyword(),
				FieldDateCreated: map[string]any{"type": "date"},
				FieldDateUpdated: map[string]any{"type": "date"},
				FieldIsDeleted:   map[string]any{"type": "boolean"},
				FieldAuthor:      keyword(),
				FieldImage:       keyword(),
				FieldImageHash:   keyword(),
				FieldWidth:       map[string]any{"type": "long"},
				FieldHeight:      map[string]any{"type": "long"},
				FieldShortEdge:   map[string]any{"type": "long"},
				FieldPixelCount:  map[string]any{"type": "long"},
				FieldAspectRatio: map[string]any{"type": "double"},

				FieldAspectRatioFraction: keyword(),
				FieldThumbnail:           keyword(),
				FieldThumbnailError:      map[string]any{"type": "boolean"},
				FieldSource:              keyword(),
				FieldOriginalURL:         keyword(),
				FieldTags:                keyword(),

				"coca_embedding_exists": map[string]any{"type": "boolean"},
				"coca_embedding_vector": map[string]any{
					"type":      "knn_vector",
					"dimension": EmbeddingDimension,
					"method": map[string]any{
						"name":       "hnsw",
						"engine":     "faiss",
						"space_type": "innerproduct",
						"parameters": map[string]any{
							"encoder": map[string]any{
								"name":       "sq",
								"parameters": map[string]any{"type": "fp16"},
							},
							"ef_construction": 64,
							"m":               16,
						},
					},
				},
				"coca_embedding_author": keyword(),

				FieldDuplicateState: keyword(),
				FieldRelatedImages: map[string]any{
					"type":    "object",
					"dynamic": false,
					"enabled": false,
				},
				FieldDatasets: keyword(),
			},
			"dynamic_templates": []map[string]any{
				attrTemplate("latent_files", `latent_.*_file`, keyword()),

				// Non-indexed attributes: stored and aggregatable, not
				// searchable. Text attributes fall back to keyword storage
				// since an unanalyzed string is all aggregation needs.
				attrTemplate("attr_noidx_texts", `attr_noidx_.*_text`, map[string]any{
					"type": "keyword", "index": false, "doc_values": true, "norms": false,
				}),
				attrTemplate("attr_noidx_doubles", `attr_noidx_.*_double`, noidxAttr("double")),
				attrTemplate("attr_noidx_longs", `attr_noidx_.*_long`, noidxAttr("long")),
				attrTemplate("attr_noidx_dates", `attr_noidx_.*_date`, noidxAttr("date")),
				attrTemplate("attr_noidx_booleans", `attr_noidx_.*_boolean`, noidxAttr("boolean")),
				attrTemplate("attr_noidx_objects", `attr_noidx_.*_object`, map[string]any{
					"type": "object", "index": false, "dynamic": false, "enabled": false,
				}),

				// Indexed attributes. Text fields carry a keyword subfield
				// for exact matches and prefix filters.
				attrTemplate("attr_texts", `attr_.*_text`, map[string]any{
					"type": "text",
					"fields": map[string]any{
						"keyword": map[string]any{
							"type": "keyword", "ignore_above": 256, "norms": false,
						},
					},
				}),
				attrTemplate("attr_doubles", `attr_.*_double`, map[string]any{"type": "double"}),
				attrTemplate("attr_longs", `attr_.*_long`, map[string]any{"type": "long"}),
				attrTemplate("attr_dates", `attr_.*_date`, map[string]any{"type": "date"}),
				attrTemplate("attr_booleans", `attr_.*_boolean`, map[string]any{"type": "boolean"}),
			},
		},
	}
}
