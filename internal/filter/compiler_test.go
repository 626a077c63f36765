package filter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Photoroom/dataroom/internal/domain"
	"github.com/Photoroom/dataroom/internal/schema"
)

type fixedSchemas struct{ s *schema.Schema }

func (f *fixedSchemas) Current(_ context.Context) (*schema.Schema, error) { return f.s, nil }

type fakeCatalogs struct {
	tags     []domain.Tag
	datasets []domain.Dataset
}

func (f *fakeCatalogs) Tags(_ context.Context) ([]domain.Tag, error)        { return f.tags, nil }
func (f *fakeCatalogs) Datasets(_ context.Context) ([]domain.Dataset, error) { return f.datasets, nil }

func testCompiler() *Compiler {
	s := schema.NewSchema(
		[]domain.AttributeField{
			{Name: "quality", FieldType: domain.FieldNumber, IsEnabled: true, IsIndexed: true},
			{Name: "caption", FieldType: domain.FieldString, IsEnabled: true, IsIndexed: true},
			{Name: "reviewed", FieldType: domain.FieldBoolean, IsEnabled: true, IsIndexed: true},
		},
		[]domain.LatentType{
			{Name: "depth", IsEnabled: true},
			{Name: "seg", IsMask: true, IsEnabled: true},
		},
	)
	return New(&fixedSchemas{s: s}, &fakeCatalogs{
		tags:     []domain.Tag{{Name: "indoor"}, {Name: "outdoor"}},
		datasets: []domain.Dataset{{Slug: "train", Version: 1}, {Slug: "eval", Version: 2}},
	})
}

func compileJSON(t *testing.T, params map[string][]string) string {
	t.Helper()
	bq, err := testCompiler().Compile(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := json.Marshal(bq.Build())
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func TestCompile_BuiltinRanges(t *testing.T) {
	got := compileJSON(t, map[string][]string{
		"short_edge__gte": {"512"},
		"aspect_ratio":    {"1.5"},
	})
	if !strings.Contains(got, `"range":{"short_edge":{"gte":512}}`) {
		t.Errorf("query = %s", got)
	}
	if !strings.Contains(got, `"term":{"aspect_ratio":1.5}`) {
		t.Errorf("query = %s", got)
	}
}

func TestCompile_InvalidNumber(t *testing.T) {
	_, err := testCompiler().Compile(context.Background(), map[string][]string{
		"short_edge__gte": {"tall"},
	})
	if !errors.Is(err, domain.ErrInvalidFilter) {
		t.Errorf("err = %v, want ErrInvalidFilter", err)
	}
}

func TestCompile_AttributePairs(t *testing.T) {
	got := compileJSON(t, map[string][]string{
		"attributes": {"quality__gte:0.5,caption:hello"},
	})
	if !strings.Contains(got, `"range":{"attr_quality_double":{"gte":0.5}}`) {
		t.Errorf("query = %s", got)
	}
	if !strings.Contains(got, `"term":{"attr_caption_text.keyword":"hello"}`) {
		t.Errorf("query = %s", got)
	}
}

func TestCompile_AttributeComparatorLegality(t *testing.T) {
	cases := map[string]string{
		"match on number":   "quality__match:0.5",
		"gte on text":       "caption__gte:a",
		"prefix on boolean": "reviewed__prefix:t",
	}
	for name, val := range cases {
		_, err := testCompiler().Compile(context.Background(), map[string][]string{
			"attributes": {val},
		})
		if !errors.Is(err, domain.ErrInvalidFilter) {
			t.Errorf("%s: err = %v, want ErrInvalidFilter", name, err)
		}
	}
}

func TestCompile_AttributeTextComparators(t *testing.T) {
	got := compileJSON(t, map[string][]string{
		"attributes": {"caption__match:studio shot,caption__not_prefix:bad"},
	})
	if !strings.Contains(got, `"match":{"attr_caption_text":"studio shot"}`) {
		t.Errorf("query = %s", got)
	}
	if !strings.Contains(got, `"must_not":[{"prefix":{"attr_caption_text.keyword":"bad"}}]`) {
		t.Errorf("query = %s", got)
	}
}

func TestCompile_NegatedTextComparators(t *testing.T) {
	got := compileJSON(t, map[string][]string{
		"attributes": {"caption__not_match:blurry"},
	})
	if !strings.Contains(got, `"must_not":[{"match":{"attr_caption_text":"blurry"}}]`) {
		t.Errorf("query = %s", got)
	}
	if strings.Contains(got, `"filter":[{"match"`) {
		t.Errorf("negated match must not land in filter: %s", got)
	}
}

func TestCompile_UnknownAttribute(t *testing.T) {
	_, err := testCompiler().Compile(context.Background(), map[string][]string{
		"attributes": {"ghost:1"},
	})
	if !errors.Is(err, domain.ErrFieldNotFound) {
		t.Errorf("err = %v, want ErrFieldNotFound", err)
	}
}

func TestCompile_CollectsAllErrors(t *testing.T) {
	_, err := testCompiler().Compile(context.Background(), map[string][]string{
		"attributes":      {"ghost:1"},
		"short_edge__gte": {"tall"},
	})
	if !errors.Is(err, domain.ErrFieldNotFound) || !errors.Is(err, domain.ErrInvalidFilter) {
		t.Errorf("err = %v, want both error kinds collected", err)
	}
}

func TestCompile_HasLacksAttributes(t *testing.T) {
	got := compileJSON(t, map[string][]string{
		"has_attributes":   {"quality"},
		"lacks_attributes": {"caption"},
	})
	if !strings.Contains(got, `"exists":{"field":"attr_quality_double"}`) {
		t.Errorf("query = %s", got)
	}
	if !strings.Contains(got, `"must_not":[{"exists":{"field":"attr_caption_text"}}]`) {
		t.Errorf("query = %s", got)
	}
}

func TestCompile_HasAttributes_AllMissingReported(t *testing.T) {
	_, err := testCompiler().Compile(context.Background(), map[string][]string{
		"has_attributes": {"ghost1,ghost2"},
	})
	var fnf *domain.FieldNotFoundError
	if !errors.As(err, &fnf) || len(fnf.Names) != 2 {
		t.Errorf("err = %v, want both missing names", err)
	}
}

func TestCompile_Latents(t *testing.T) {
	got := compileJSON(t, map[string][]string{
		"has_latents": {"depth"},
		"lacks_masks": {"seg"},
	})
	if !strings.Contains(got, `"exists":{"field":"latent_depth_file"}`) {
		t.Errorf("query = %s", got)
	}
	if !strings.Contains(got, `"must_not":[{"exists":{"field":"latent_seg_file"}}]`) {
		t.Errorf("query = %s", got)
	}

	_, err := testCompiler().Compile(context.Background(), map[string][]string{
		"has_latents": {"ghost"},
	})
	if !errors.Is(err, domain.ErrLatentType) {
		t.Errorf("err = %v, want ErrLatentType", err)
	}
}

func TestCompile_TagsValidation(t *testing.T) {
	got := compileJSON(t, map[string][]string{"tags": {"indoor,outdoor"}})
	if !strings.Contains(got, `"terms":{"tags":["indoor","outdoor"]}`) {
		t.Errorf("query = %s", got)
	}

	_, err := testCompiler().Compile(context.Background(), map[string][]string{
		"tags": {"indoor,ghost1,ghost2"},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), "ghost1") || !strings.Contains(err.Error(), "ghost2") {
		t.Errorf("err %q should list every missing tag", err)
	}
}

func TestCompile_TagsAllModes(t *testing.T) {
	got := compileJSON(t, map[string][]string{"tags__all": {"indoor,outdoor"}})
	if !strings.Contains(got, `"term":{"tags":"indoor"}`) || !strings.Contains(got, `"term":{"tags":"outdoor"}`) {
		t.Errorf("query = %s", got)
	}

	got = compileJSON(t, map[string][]string{"tags__ne_all": {"indoor,outdoor"}})
	if !strings.Contains(got, `"must_not":[{"bool":{"must":[`) {
		t.Errorf("query = %s", got)
	}
}

func TestCompile_Datasets(t *testing.T) {
	got := compileJSON(t, map[string][]string{"datasets": {"train/1,eval/2"}})
	if !strings.Contains(got, `"terms":{"datasets":["train/1","eval/2"]}`) {
		t.Errorf("query = %s", got)
	}

	_, err := testCompiler().Compile(context.Background(), map[string][]string{
		"datasets": {"train/9"},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestCompile_DuplicateState(t *testing.T) {
	got := compileJSON(t, map[string][]string{"duplicate_state": {"None"}})
	if !strings.Contains(got, `"must_not":[{"exists":{"field":"duplicate_state"}}]`) {
		t.Errorf("query = %s", got)
	}

	got = compileJSON(t, map[string][]string{"duplicate_state": {"2"}})
	if !strings.Contains(got, `"term":{"duplicate_state":2}`) {
		t.Errorf("query = %s", got)
	}

	for _, bad := range []string{"0", "3", "x"} {
		_, err := testCompiler().Compile(context.Background(), map[string][]string{
			"duplicate_state": {bad},
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("duplicate_state=%s: err = %v, want ErrValidation", bad, err)
		}
	}
}

func TestCompile_EmptyFlags(t *testing.T) {
	got := compileJSON(t, map[string][]string{
		"source__empty":         {"true"},
		"tags__empty":           {"false"},
		"coca_embedding__empty": {"true"},
	})
	if !strings.Contains(got, `"term":{"source":""}`) {
		t.Errorf("query = %s", got)
	}
	if !strings.Contains(got, `"exists":{"field":"tags"}`) {
		t.Errorf("query = %s", got)
	}
	if !strings.Contains(got, `"term":{"coca_embedding_exists":false}`) {
		t.Errorf("query = %s", got)
	}
}

func TestCompile_IgnoresUnknownParams(t *testing.T) {
	bq, err := testCompiler().Compile(context.Background(), map[string][]string{
		"cursor":           {"img-42"},
		"partitions_count": {"4"},
		"page_size":        {"100"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bq.Empty() {
		t.Errorf("query should be empty, got %v", bq.Build())
	}
}
