package attr

import (
	"strings"

	"github.com/Photoroom/dataroom/internal/domain/fields"
)

// Comparator is a filter comparison operator, carried as a __<token> suffix
// on filter keys.
type Comparator string

const (
	Eq             Comparator = "eq"
	Ne             Comparator = "ne"
	Lt             Comparator = "lt"
	Lte            Comparator = "lte"
	Gt             Comparator = "gt"
	Gte            Comparator = "gte"
	Match          Comparator = "match"
	MatchPhrase    Comparator = "match_phrase"
	Prefix         Comparator = "prefix"
	NotMatch       Comparator = "not_match"
	NotMatchPhrase Comparator = "not_match_phrase"
	NotPrefix      Comparator = "not_prefix"
)

// Comparators lists every known comparator token.
var Comparators = []Comparator{
	Eq, Ne, Lt, Lte, Gt, Gte,
	Match, MatchPhrase, Prefix,
	NotMatch, NotMatchPhrase, NotPrefix,
}

// SplitComparator splits a filter key into its base name and comparator.
// Only a trailing __<token> matching a known comparator is split off;
// anything else is an equality filter on the whole key.
func SplitComparator(key string) (string, Comparator) {
	for _, c := range Comparators {
		suffix := "__" + string(c)
		if strings.HasSuffix(key, suffix) {
			return key[:len(key)-len(suffix)], c
		}
	}
	return key, Eq
}

// Negated returns the positive counterpart of a not_* comparator, or the
// comparator itself.
func (c Comparator) Negated() Comparator {
	switch c {
	case NotMatch:
		return Match
	case NotMatchPhrase:
		return MatchPhrase
	case NotPrefix:
		return Prefix
	}
	return c
}

// AllowedFor reports whether the comparator is legal for a resolved scalar
// type: range comparators only for numeric and date types, match/prefix and
// their negations only for text, eq/ne only for boolean and object.
func (c Comparator) AllowedFor(t fields.Type) bool {
	switch t {
	case fields.TypeDouble, fields.TypeLong, fields.TypeDate:
		switch c {
		case Eq, Ne, Lt, Lte, Gt, Gte:
			return true
		}
		return false
	case fields.TypeBoolean, fields.TypeObject:
		return c == Eq || c == Ne
	case fields.TypeText:
		switch c {
		case Eq, Ne, Match, MatchPhrase, Prefix, NotMatch, NotMatchPhrase, NotPrefix:
			return true
		}
		return false
	}
	return false
}
