// Package filter compiles query parameters into index bool queries.
// Parameter names follow the field__comparator convention; attribute
// filters resolve logical names through the schema and every invalid
// parameter is reported, not just the first.
package filter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/domain"
	"github.com/Photoroom/dataroom/internal/domain/attr"
	"github.com/Photoroom/dataroom/internal/domain/fields"
	"github.com/Photoroom/dataroom/internal/schema"
)

// schemas serves catalog snapshots for attribute resolution.
type schemas interface {
	Current(ctx context.Context) (*schema.Schema, error)
}

// catalogs validates tag and dataset references.
type catalogs interface {
	Tags(ctx context.Context) ([]domain.Tag, error)
	Datasets(ctx context.Context) ([]domain.Dataset, error)
}

// Compiler turns url.Values-shaped parameter maps into bool queries.
type Compiler struct {
	schemas  schemas
	catalogs catalogs
}

// New creates a filter compiler.
func New(s schemas, c catalogs) *Compiler {
	return &Compiler{schemas: s, catalogs: c}
}

// rangeFields are builtin fields that accept gt/gte/lt/lte suffixes.
var rangeFields = map[string]fields.Type{
	"short_edge":   fields.TypeLong,
	"pixel_count":  fields.TypeLong,
	"aspect_ratio": fields.TypeDouble,
	"date_created": fields.TypeDate,
	"date_updated": fields.TypeDate,
}

// Compile builds a bool query from query parameters. Unknown parameter
// names are ignored (pagination and partition parameters travel in the same
// map); every invalid value contributes to the returned error.
func (c *Compiler) Compile(ctx context.Context, params map[string][]string) (*db.BoolQuery, error) {
	s, err := c.schemas.Current(ctx)
	if err != nil {
		return nil, err
	}

	bq := db.NewBool()
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	// process in stable order so collected errors are deterministic
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if len(params[key]) == 0 {
			continue
		}
		value := params[key][0]
		if value == "" {
			continue
		}

		switch key {
		case "source":
			bq.Filter(db.Term("source", value))
		case "sources":
			bq.Filter(db.Terms("source", splitAny(value)))
		case "sources__ne":
			bq.MustNot(db.Terms("source", splitAny(value)))
		case "source__empty":
			add(c.emptyString(bq, "source", key, value))
		case "aspect_ratio_fraction":
			bq.Filter(db.Term("aspect_ratio_fraction", value))
		case "aspect_ratio_fraction__empty":
			add(c.emptyString(bq, "aspect_ratio_fraction", key, value))
		case "attributes":
			add(c.attributes(bq, s, value))
		case "has_attributes":
			add(c.attrExists(bq, s, value, false))
		case "lacks_attributes":
			add(c.attrExists(bq, s, value, true))
		case "has_latents", "has_masks":
			add(c.latentExists(bq, s, value, false))
		case "lacks_latents", "lacks_masks":
			add(c.latentExists(bq, s, value, true))
		case "tags":
			add(c.tagFamily(ctx, bq, value, termsAny))
		case "tags__ne":
			add(c.tagFamily(ctx, bq, value, termsNone))
		case "tags__all":
			add(c.tagFamily(ctx, bq, value, termsAll))
		case "tags__ne_all":
			add(c.tagFamily(ctx, bq, value, termsNotAll))
		case "tags__empty":
			add(c.existsFlag(bq, "tags", key, value))
		case "datasets":
			add(c.datasetFamily(ctx, bq, value, termsAny))
		case "datasets__ne":
			add(c.datasetFamily(ctx, bq, value, termsNone))
		case "datasets__all":
			add(c.datasetFamily(ctx, bq, value, termsAll))
		case "datasets__ne_all":
			add(c.datasetFamily(ctx, bq, value, termsNotAll))
		case "datasets__empty":
			add(c.existsFlag(bq, "datasets", key, value))
		case "coca_embedding__empty":
			empty, err := parseBool(key, value)
			if err != nil {
				add(err)
				continue
			}
			bq.Filter(db.Term("coca_embedding_exists", !empty))
		case "duplicate_state":
			add(c.duplicateState(bq, value))
		default:
			add(c.rangeOrEq(bq, key, value))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return bq, nil
}

// rangeOrEq handles the numeric and date builtins with their comparator
// suffixes. Unrecognized keys are ignored.
func (c *Compiler) rangeOrEq(bq *db.BoolQuery, key, value string) error {
	base, comp := attr.SplitComparator(key)
	typ, ok := rangeFields[base]
	if !ok {
		return nil
	}
	if !comp.AllowedFor(typ) {
		return domain.NewInvalidFilter("invalid comparator %q for field %q", comp, base)
	}

	parsed, err := parseTyped(typ, base, value)
	if err != nil {
		return err
	}
	switch comp {
	case attr.Eq:
		bq.Filter(db.Term(base, parsed))
	case attr.Ne:
		bq.MustNot(db.Term(base, parsed))
	default:
		bq.Filter(db.Range(base, map[string]any{string(comp): parsed}))
	}
	return nil
}

// attributes handles attributes=name[__cmp]:value,... pairs.
func (c *Compiler) attributes(bq *db.BoolQuery, s *schema.Schema, value string) error {
	var errs []error
	for _, pair := range strings.Split(value, ",") {
		name, rawVal, ok := strings.Cut(pair, ":")
		if !ok {
			errs = append(errs, domain.NewInvalidFilter("invalid attribute filter %q, want name:value", pair))
			continue
		}
		baseName, comp := attr.SplitComparator(name)

		typ, indexed, err := s.ResolveAttr(baseName)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !comp.AllowedFor(typ) {
			errs = append(errs, domain.NewInvalidFilter("invalid comparator %q for attribute %q of type %q", comp, baseName, typ))
			continue
		}
		v, err := attr.NewValue(baseName, typ, indexed, rawVal)
		if err != nil {
			errs = append(errs, domain.NewInvalidFilter("invalid filter value %q for attribute %q", rawVal, baseName))
			continue
		}

		name, keyword := v.PhysicalName(), v.KeywordName()
		switch comp {
		case attr.Eq:
			bq.Filter(db.Term(keyword, v.Any()))
		case attr.Ne:
			bq.MustNot(db.Term(keyword, v.Any()))
		case attr.Match, attr.MatchPhrase, attr.Prefix:
			bq.Filter(textClause(comp, name, keyword, v.Any(), rawVal))
		case attr.NotMatch, attr.NotMatchPhrase, attr.NotPrefix:
			bq.MustNot(textClause(comp.Negated(), name, keyword, v.Any(), rawVal))
		case attr.Lt, attr.Lte, attr.Gt, attr.Gte:
			bq.Filter(db.Range(name, map[string]any{string(comp): v.Any()}))
		}
	}
	return errors.Join(errs...)
}

// textClause builds the positive clause for a text comparator. Negated
// comparators reuse it through Comparator.Negated and land in must_not.
func textClause(comp attr.Comparator, physical, keyword string, value any, raw string) db.Query {
	switch comp {
	case attr.MatchPhrase:
		return db.MatchPhrase(physical, value)
	case attr.Prefix:
		return db.Prefix(keyword, raw)
	default:
		return db.Match(physical, value)
	}
}

// attrExists handles has_attributes and lacks_attributes, collecting every
// unknown name.
func (c *Compiler) attrExists(bq *db.BoolQuery, s *schema.Schema, value string, negate bool) error {
	var missing []string
	for _, name := range strings.Split(value, ",") {
		typ, indexed, err := s.ResolveAttr(name)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		clause := db.Exists(fields.Attr(name, typ, indexed))
		if negate {
			bq.MustNot(clause)
		} else {
			bq.Filter(clause)
		}
	}
	if len(missing) > 0 {
		return domain.NewFieldNotFound(missing...)
	}
	return nil
}

// latentExists handles has/lacks_latents and has/lacks_masks.
func (c *Compiler) latentExists(bq *db.BoolQuery, s *schema.Schema, value string, negate bool) error {
	for _, name := range strings.Split(value, ",") {
		if _, err := s.ResolveLatent(name); err != nil {
			return err
		}
		clause := db.Exists(fields.Latent(name))
		if negate {
			bq.MustNot(clause)
		} else {
			bq.Filter(clause)
		}
	}
	return nil
}

// termsMode selects how a validated name list becomes clauses.
type termsMode int

const (
	termsAny termsMode = iota
	termsNone
	termsAll
	termsNotAll
)

func applyTerms(bq *db.BoolQuery, field string, names []string, mode termsMode) {
	switch mode {
	case termsAny:
		bq.Filter(db.Terms(field, toAny(names)))
	case termsNone:
		bq.MustNot(db.Terms(field, toAny(names)))
	case termsAll:
		for _, n := range names {
			bq.Filter(db.Term(field, n))
		}
	case termsNotAll:
		all := db.NewBool()
		for _, n := range names {
			all.Must(db.Term(field, n))
		}
		bq.MustNot(all.Build())
	}
}

// tagFamily validates tag names against the catalog, reporting every
// missing name at once.
func (c *Compiler) tagFamily(ctx context.Context, bq *db.BoolQuery, value string, mode termsMode) error {
	names := strings.Split(value, ",")
	known, err := c.catalogs.Tags(ctx)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	existing := make(map[string]struct{}, len(known))
	for _, t := range known {
		existing[t.Name] = struct{}{}
	}
	if err := checkMissing("tags", names, existing); err != nil {
		return err
	}
	applyTerms(bq, "tags", names, mode)
	return nil
}

// datasetFamily validates slug/version references against the catalog.
func (c *Compiler) datasetFamily(ctx context.Context, bq *db.BoolQuery, value string, mode termsMode) error {
	names := strings.Split(value, ",")
	known, err := c.catalogs.Datasets(ctx)
	if err != nil {
		return fmt.Errorf("load datasets: %w", err)
	}
	existing := make(map[string]struct{}, len(known))
	for _, d := range known {
		existing[d.SlugVersion()] = struct{}{}
	}
	if err := checkMissing("datasets", names, existing); err != nil {
		return err
	}
	applyTerms(bq, "datasets", names, mode)
	return nil
}

func checkMissing(what string, names []string, existing map[string]struct{}) error {
	var missing []string
	for _, n := range names {
		if _, ok := existing[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return domain.NewValidationError(fmt.Sprintf("one or more %s do not exist: %s", what, strings.Join(missing, ",")))
	}
	return nil
}

// duplicateState handles the three-valued duplicate filter. "None" selects
// unprocessed images, which have no stored value at all.
func (c *Compiler) duplicateState(bq *db.BoolQuery, value string) error {
	if value == "None" {
		bq.MustNot(db.Exists("duplicate_state"))
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || !domain.DuplicateState(n).Valid() || domain.DuplicateState(n) == domain.DuplicateUnprocessed {
		return domain.NewValidationError(fmt.Sprintf("invalid value for duplicate_state: %s", value))
	}
	bq.Filter(db.Term("duplicate_state", n))
	return nil
}

// emptyString filters on empty-string builtins.
func (c *Compiler) emptyString(bq *db.BoolQuery, field, key, value string) error {
	empty, err := parseBool(key, value)
	if err != nil {
		return err
	}
	if empty {
		bq.Filter(db.Term(field, ""))
	} else {
		bq.MustNot(db.Term(field, ""))
	}
	return nil
}

// existsFlag filters on presence of array builtins.
func (c *Compiler) existsFlag(bq *db.BoolQuery, field, key, value string) error {
	empty, err := parseBool(key, value)
	if err != nil {
		return err
	}
	if empty {
		bq.MustNot(db.Exists(field))
	} else {
		bq.Filter(db.Exists(field))
	}
	return nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(strings.ToLower(value))
	if err != nil {
		return false, domain.NewInvalidFilter("invalid boolean for %q: %s", key, value)
	}
	return b, nil
}

func parseTyped(typ fields.Type, field, value string) (any, error) {
	switch typ {
	case fields.TypeLong:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, domain.NewInvalidFilter("invalid integer for %q: %s", field, value)
		}
		return n, nil
	case fields.TypeDouble:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, domain.NewInvalidFilter("invalid number for %q: %s", field, value)
		}
		return f, nil
	case fields.TypeDate:
		if _, err := time.Parse(time.RFC3339Nano, value); err != nil {
			return nil, domain.NewInvalidFilter("invalid datetime for %q: %s", field, value)
		}
		return value, nil
	}
	return value, nil
}

func splitAny(value string) []any {
	return toAny(strings.Split(value, ","))
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
