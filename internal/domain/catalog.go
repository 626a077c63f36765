package domain

import (
	"fmt"

	"github.com/Photoroom/dataroom/internal/domain/fields"
)

// FieldType is the declared (schema-level) type of a catalog attribute.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldInteger FieldType = "integer"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

// StringFormat is an optional format constraint on string attributes.
type StringFormat string

const (
	FormatDateTime StringFormat = "date-time"
	FormatTime     StringFormat = "time"
	FormatDate     StringFormat = "date"
	FormatDuration StringFormat = "duration"
	FormatEmail    StringFormat = "email"
	FormatHostname StringFormat = "hostname"
	FormatIPv4     StringFormat = "ipv4"
	FormatIPv6     StringFormat = "ipv6"
	FormatUUID     StringFormat = "uuid"
	FormatURI      StringFormat = "uri"
)

// AttributeField is one relational catalog row governing a custom attribute.
// Rows are never deleted, only disabled, so previously written physical
// fields stay decodable.
type AttributeField struct {
	Name         string
	Description  string
	FieldType    FieldType
	StringFormat StringFormat
	ArrayType    FieldType
	EnumChoices  []any
	IsRequired   bool
	IsEnabled    bool
	IsIndexed    bool
	IsMapped     bool
	ImageCount   int64
}

// ResolvedType maps the declared type to the scalar type backing the
// physical field. Arrays resolve to their item type; date-formatted strings
// resolve to date.
func (f AttributeField) ResolvedType() (fields.Type, error) {
	return ResolveFieldType(f.FieldType, f.StringFormat, f.ArrayType)
}

// ResolveFieldType converts a declared type (plus string format and array
// item type) into the physical scalar type.
func ResolveFieldType(ft FieldType, format StringFormat, arrayType FieldType) (fields.Type, error) {
	if ft == FieldArray {
		if arrayType == "" || arrayType == FieldArray {
			return "", fmt.Errorf("array attribute requires a scalar item type")
		}
		ft = arrayType
	}
	switch ft {
	case FieldString:
		if format == FormatDate || format == FormatDateTime {
			return fields.TypeDate, nil
		}
		return fields.TypeText, nil
	case FieldNumber:
		return fields.TypeDouble, nil
	case FieldInteger:
		return fields.TypeLong, nil
	case FieldBoolean:
		return fields.TypeBoolean, nil
	case FieldObject:
		return fields.TypeObject, nil
	}
	return "", fmt.Errorf("unsupported field type %q", ft)
}

// LatentType is one relational catalog row governing a latent attachment
// kind. Like attributes, latent types are disabled rather than deleted.
type LatentType struct {
	Name       string
	IsMask     bool
	IsEnabled  bool
	IsMapped   bool
	ImageCount int64
}

// ValidateLatentTypeName checks the latent type name rules.
func ValidateLatentTypeName(name string) error {
	if len(name) < LatentTypeMinLength || len(name) > LatentTypeMaxLength {
		return fmt.Errorf("latent type must have between %d and %d characters", LatentTypeMinLength, LatentTypeMaxLength)
	}
	if !idPattern.MatchString(name) {
		return fmt.Errorf("latent type can only contain alphanumeric characters, dashes, and underscores")
	}
	return nil
}

// Tag is one relational catalog row for an image tag. Unknown tags are
// created on write as a side effect of saving tagged images.
type Tag struct {
	Name        string
	Description string
	ImageCount  int64
}

// Dataset is a versioned collection of images. Membership can only change
// while the dataset is not frozen.
type Dataset struct {
	Name        string
	Slug        string
	Version     int
	Author      string
	Description string
	ImageCount  int64
	IsFrozen    bool
}

// SlugVersion returns the dataset's membership identifier, "<slug>/<version>".
func (d Dataset) SlugVersion() string {
	return fmt.Sprintf("%s/%d", d.Slug, d.Version)
}
