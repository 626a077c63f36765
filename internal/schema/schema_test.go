package schema

import (
	"errors"
	"testing"

	"github.com/Photoroom/dataroom/internal/domain"
	"github.com/Photoroom/dataroom/internal/domain/fields"
)

func testSchema() *Schema {
	return NewSchema(
		[]domain.AttributeField{
			{Name: "source", FieldType: domain.FieldString, IsEnabled: true, IsIndexed: true},
			{Name: "score", FieldType: domain.FieldNumber, IsEnabled: true, IsIndexed: true},
			{Name: "shot_at", FieldType: domain.FieldString, StringFormat: domain.FormatDateTime, IsEnabled: true, IsIndexed: true},
			{Name: "notes", FieldType: domain.FieldString, IsEnabled: true, IsIndexed: false},
			{Name: "legacy", FieldType: domain.FieldString, IsEnabled: false, IsIndexed: true},
			{Name: "grade", FieldType: domain.FieldString, EnumChoices: []any{"a", "b"}, IsEnabled: true, IsIndexed: true},
		},
		[]domain.LatentType{
			{Name: "depth", IsEnabled: true},
			{Name: "seg_mask", IsMask: true, IsEnabled: true},
			{Name: "retired", IsEnabled: false},
		},
	)
}

func TestSchema_ResolveAttr(t *testing.T) {
	s := testSchema()

	typ, indexed, err := s.ResolveAttr("score")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typ != fields.TypeDouble || !indexed {
		t.Errorf("score = (%s, %v), want (double, true)", typ, indexed)
	}

	typ, _, err = s.ResolveAttr("shot_at")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typ != fields.TypeDate {
		t.Errorf("shot_at type = %s, want date", typ)
	}

	_, indexed, err = s.ResolveAttr("notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexed {
		t.Error("notes should be unindexed")
	}
}

func TestSchema_ResolveAttr_UnknownAndDisabled(t *testing.T) {
	s := testSchema()
	for _, name := range []string{"missing", "legacy"} {
		_, _, err := s.ResolveAttr(name)
		if !errors.Is(err, domain.ErrFieldNotFound) {
			t.Errorf("ResolveAttr(%s) err = %v, want ErrFieldNotFound", name, err)
		}
	}
	// decoding can still see disabled definitions
	if _, ok := s.Attribute("legacy"); !ok {
		t.Error("disabled attribute should stay visible for decoding")
	}
}

func TestSchema_ResolveLatent(t *testing.T) {
	s := testSchema()
	lt, err := s.ResolveLatent("seg_mask")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !lt.IsMask {
		t.Error("seg_mask should be a mask")
	}
	if _, err := s.ResolveLatent("retired"); !errors.Is(err, domain.ErrLatentType) {
		t.Errorf("disabled latent err = %v, want ErrLatentType", err)
	}
}

func TestSchema_ValidateAttrs_CollectsAllMissing(t *testing.T) {
	s := testSchema()
	_, err := s.ValidateAttrs(map[string]any{
		"source": "crawler",
		"nope1":  1,
		"nope2":  2,
	}, true)
	var fnf *domain.FieldNotFoundError
	if !errors.As(err, &fnf) {
		t.Fatalf("err = %v, want FieldNotFoundError", err)
	}
	if len(fnf.Names) != 2 {
		t.Errorf("missing = %v, want both unknown names", fnf.Names)
	}
}

func TestSchema_ValidateAttrs_RequiredEnforced(t *testing.T) {
	s := NewSchema([]domain.AttributeField{
		{Name: "caption", FieldType: domain.FieldString, IsRequired: true, IsEnabled: true, IsIndexed: true},
		{Name: "origin", FieldType: domain.FieldString, IsRequired: true, IsEnabled: true, IsIndexed: true},
		{Name: "score", FieldType: domain.FieldNumber, IsEnabled: true, IsIndexed: true},
	}, nil)

	_, err := s.ValidateAttrs(map[string]any{"score": 0.5}, false)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(verr.Messages) != 2 {
		t.Errorf("messages = %v, want one per absent required attribute", verr.Messages)
	}
	if verr.Messages[0] != "attribute caption is required" {
		t.Errorf("first message = %q", verr.Messages[0])
	}

	out, err := s.ValidateAttrs(map[string]any{
		"caption": "a dog",
		"origin":  "crawler",
	}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("validated = %d values, want 2", len(out))
	}
}

func TestSchema_ValidateAttrs_PartialSkipsRequired(t *testing.T) {
	s := NewSchema([]domain.AttributeField{
		{Name: "caption", FieldType: domain.FieldString, IsRequired: true, IsEnabled: true, IsIndexed: true},
		{Name: "score", FieldType: domain.FieldNumber, IsEnabled: true, IsIndexed: true},
		// a disabled required row must not be demanded in either mode
		{Name: "legacy", FieldType: domain.FieldString, IsRequired: true, IsEnabled: false, IsIndexed: true},
	}, nil)

	out, err := s.ValidateAttrs(map[string]any{"score": 0.5}, true)
	if err != nil {
		t.Fatalf("partial validation rejected a subset: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("validated = %d values, want 1", len(out))
	}

	if _, err := s.ValidateAttrs(map[string]any{"caption": "a dog"}, false); err != nil {
		t.Errorf("disabled required attribute demanded: %v", err)
	}
}

func TestSchema_ValidateAttr_Format(t *testing.T) {
	s := testSchema()
	if _, err := s.ValidateAttr("shot_at", "2024-01-01T10:30:00Z"); err != nil {
		t.Errorf("valid date-time rejected: %v", err)
	}
	if _, err := s.ValidateAttr("shot_at", "not a date"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("invalid date-time err = %v, want ErrValidation", err)
	}
}

func TestSchema_ValidateAttr_Enum(t *testing.T) {
	s := testSchema()
	if _, err := s.ValidateAttr("grade", "a"); err != nil {
		t.Errorf("valid choice rejected: %v", err)
	}
	if _, err := s.ValidateAttr("grade", "z"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("invalid choice err = %v, want ErrValidation", err)
	}
}

func TestSchema_ValidateAttr_Coercion(t *testing.T) {
	s := testSchema()
	v, err := s.ValidateAttr("score", "0.75")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Any() != 0.75 {
		t.Errorf("coerced value = %v, want 0.75", v.Any())
	}
	if v.PhysicalName() != "attr_score_double" {
		t.Errorf("physical name = %s", v.PhysicalName())
	}
}
