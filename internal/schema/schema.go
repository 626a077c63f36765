// Package schema resolves logical attribute and latent names to physical
// index fields. The resolution rules come from the relational catalog and
// are cached with a short TTL, so new fields become visible without a
// restart while the hot path stays off the database.
package schema

import (
	"fmt"
	"sort"

	"github.com/Photoroom/dataroom/internal/domain"
	"github.com/Photoroom/dataroom/internal/domain/attr"
	"github.com/Photoroom/dataroom/internal/domain/fields"
)

// Schema is one immutable snapshot of the catalog. Lookups never touch the
// database; a snapshot stays valid for the lifetime of the request that
// obtained it.
type Schema struct {
	attrs   map[string]domain.AttributeField
	latents map[string]domain.LatentType
}

// NewSchema builds a snapshot from catalog rows.
func NewSchema(attrs []domain.AttributeField, latents []domain.LatentType) *Schema {
	s := &Schema{
		attrs:   make(map[string]domain.AttributeField, len(attrs)),
		latents: make(map[string]domain.LatentType, len(latents)),
	}
	for _, a := range attrs {
		s.attrs[a.Name] = a
	}
	for _, lt := range latents {
		s.latents[lt.Name] = lt
	}
	return s
}

// Attribute returns the definition for a logical name, including disabled
// ones. Disabled definitions still matter for decoding old documents.
func (s *Schema) Attribute(name string) (domain.AttributeField, bool) {
	a, ok := s.attrs[name]
	return a, ok
}

// Latent returns the latent type definition for a name.
func (s *Schema) Latent(name string) (domain.LatentType, bool) {
	lt, ok := s.latents[name]
	return lt, ok
}

// Attributes returns every known definition, in no particular order.
func (s *Schema) Attributes() []domain.AttributeField {
	out := make([]domain.AttributeField, 0, len(s.attrs))
	for _, a := range s.attrs {
		out = append(out, a)
	}
	return out
}

// Latents returns every known latent type, in no particular order.
func (s *Schema) Latents() []domain.LatentType {
	out := make([]domain.LatentType, 0, len(s.latents))
	for _, lt := range s.latents {
		out = append(out, lt)
	}
	return out
}

// ResolveAttr resolves a logical attribute name for writing. Unknown and
// disabled names fail with FieldNotFound; writes are strict even though
// reads are tolerant.
func (s *Schema) ResolveAttr(name string) (fields.Type, bool, error) {
	a, ok := s.attrs[name]
	if !ok || !a.IsEnabled {
		return "", false, domain.NewFieldNotFound(name)
	}
	t, err := a.ResolvedType()
	if err != nil {
		return "", false, err
	}
	return t, a.IsIndexed, nil
}

// ResolveLatent resolves a latent type name for writing.
func (s *Schema) ResolveLatent(name string) (domain.LatentType, error) {
	lt, ok := s.latents[name]
	if !ok || !lt.IsEnabled {
		return domain.LatentType{}, domain.NewLatentTypeError("unknown latent type %q", name)
	}
	return lt, nil
}

// ValidateAttr resolves and validates one logical attribute value for
// writing, returning the typed value ready for encoding.
func (s *Schema) ValidateAttr(name string, raw any) (attr.Value, error) {
	a, ok := s.attrs[name]
	if !ok || !a.IsEnabled {
		return attr.Value{}, domain.NewFieldNotFound(name)
	}
	t, err := a.ResolvedType()
	if err != nil {
		return attr.Value{}, err
	}
	if err := checkFormat(a, raw); err != nil {
		return attr.Value{}, err
	}
	if err := checkEnum(a, raw); err != nil {
		return attr.Value{}, err
	}
	return attr.NewValue(name, t, a.IsIndexed, raw)
}

// ValidateAttrs validates a set of logical attributes, collecting every
// unknown name into a single FieldNotFound error instead of stopping at the
// first. Full validation also requires every required enabled attribute to
// be present; partial validation relaxes only that constraint, for updates
// that touch a subset of attributes.
func (s *Schema) ValidateAttrs(raw map[string]any, partial bool) (map[string]attr.Value, error) {
	var missing []string
	out := make(map[string]attr.Value, len(raw))
	var firstErr error
	for name, v := range raw {
		a, ok := s.attrs[name]
		if !ok || !a.IsEnabled {
			missing = append(missing, name)
			continue
		}
		val, err := s.ValidateAttr(name, v)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out[name] = val
	}
	if len(missing) > 0 {
		return nil, domain.NewFieldNotFound(missing...)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if !partial {
		if err := s.checkRequired(raw); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// checkRequired rejects a value map that omits a required enabled attribute.
func (s *Schema) checkRequired(raw map[string]any) error {
	var absent []string
	for name, a := range s.attrs {
		if !a.IsEnabled || !a.IsRequired {
			continue
		}
		if _, ok := raw[name]; !ok {
			absent = append(absent, name)
		}
	}
	if len(absent) == 0 {
		return nil
	}
	sort.Strings(absent)
	msgs := make([]string, len(absent))
	for i, name := range absent {
		msgs[i] = fmt.Sprintf("attribute %s is required", name)
	}
	return domain.NewValidationError(msgs...)
}

// checkEnum rejects values outside the declared choice list.
func checkEnum(a domain.AttributeField, raw any) error {
	if len(a.EnumChoices) == 0 {
		return nil
	}
	items := []any{raw}
	if arr, ok := raw.([]any); ok && a.FieldType == domain.FieldArray {
		items = arr
	}
	for _, item := range items {
		found := false
		for _, choice := range a.EnumChoices {
			if item == choice {
				found = true
				break
			}
		}
		if !found {
			return domain.NewValidationError(fmt.Sprintf("attribute %s: value %v is not a valid choice", a.Name, item))
		}
	}
	return nil
}
