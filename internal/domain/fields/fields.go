// Package fields implements the physical field naming strategy for the image
// index. Attribute and latent names are encoded into index keys by pure,
// invertible functions so the codec and the filter compiler always agree on
// the same physical names.
package fields

import "strings"

// Type is the resolved scalar backing type of a physical field.
type Type string

const (
	// TypeText is a full-text field with a .keyword exact-match sibling.
	TypeText Type = "text"
	// TypeDouble is a floating point field.
	TypeDouble Type = "double"
	// TypeLong is an integer field.
	TypeLong Type = "long"
	// TypeDate is a date field.
	TypeDate Type = "date"
	// TypeBoolean is a boolean field.
	TypeBoolean Type = "boolean"
	// TypeObject is an opaque nested object. Object fields are never indexed.
	TypeObject Type = "object"
)

// Types lists every scalar type, in the order used for suffix matching.
var Types = []Type{TypeText, TypeDouble, TypeLong, TypeDate, TypeBoolean, TypeObject}

// Valid reports whether t is a known scalar type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Numeric reports whether t orders like a number (range comparators apply).
func (t Type) Numeric() bool {
	return t == TypeDouble || t == TypeLong || t == TypeDate
}

const (
	attrPrefix      = "attr_"
	attrNoidxPrefix = "attr_noidx_"
	latentPrefix    = "latent_"
	latentSuffix    = "_file"
	keywordSuffix   = ".keyword"
)

// Attr returns the physical key for an attribute: attr_<name>_<type> when
// indexed, attr_noidx_<name>_<type> otherwise. The resolved type is part of
// the key so that a catalog type change never overwrites existing data.
func Attr(name string, t Type, indexed bool) string {
	prefix := attrNoidxPrefix
	if indexed {
		prefix = attrPrefix
	}
	return prefix + name + "_" + string(t)
}

// AttrKeyword returns the exact-match key for an attribute. Indexed text
// fields carry a .keyword sibling; every other field matches exactly on its
// own key.
func AttrKeyword(name string, t Type, indexed bool) string {
	physical := Attr(name, t, indexed)
	if indexed && t == TypeText {
		return physical + keywordSuffix
	}
	return physical
}

// Latent returns the physical key holding a latent's blob pointer.
func Latent(latentType string) string {
	return latentPrefix + latentType + latentSuffix
}

// ParsedAttr is the result of inverting Attr.
type ParsedAttr struct {
	Name    string
	Type    Type
	Indexed bool
}

// ParseAttr inverts Attr. It reports false for keys that do not follow the
// attribute naming scheme.
func ParseAttr(physical string) (ParsedAttr, bool) {
	var rest string
	var indexed bool
	switch {
	case strings.HasPrefix(physical, attrNoidxPrefix):
		rest = physical[len(attrNoidxPrefix):]
	case strings.HasPrefix(physical, attrPrefix):
		rest = physical[len(attrPrefix):]
		indexed = true
	default:
		return ParsedAttr{}, false
	}
	for _, t := range Types {
		suffix := "_" + string(t)
		if strings.HasSuffix(rest, suffix) && len(rest) > len(suffix) {
			return ParsedAttr{
				Name:    rest[:len(rest)-len(suffix)],
				Type:    t,
				Indexed: indexed,
			}, true
		}
	}
	return ParsedAttr{}, false
}

// ParseLatent inverts Latent, returning the latent type name.
func ParseLatent(physical string) (string, bool) {
	if !strings.HasPrefix(physical, latentPrefix) || !strings.HasSuffix(physical, latentSuffix) {
		return "", false
	}
	name := physical[len(latentPrefix) : len(physical)-len(latentSuffix)]
	if name == "" {
		return "", false
	}
	return name, true
}
