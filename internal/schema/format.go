package schema

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Photoroom/dataroom/internal/domain"
)

// validate holds the format validators. Struct tags are not used; formats
// are checked one value at a time via Var.
var validate = validator.New()

// formatTags maps catalog string formats to validator tags.
var formatTags = map[domain.StringFormat]string{
	domain.FormatDateTime: "datetime=" + time.RFC3339,
	domain.FormatTime:     "datetime=15:04:05",
	domain.FormatDate:     "datetime=2006-01-02",
	domain.FormatEmail:    "email",
	domain.FormatHostname: "hostname_rfc1123",
	domain.FormatIPv4:     "ipv4",
	domain.FormatIPv6:     "ipv6",
	domain.FormatUUID:     "uuid",
	domain.FormatURI:      "uri",
}

// checkFormat validates string values against the attribute's declared
// format. Non-string declared types and unformatted strings pass through.
func checkFormat(a domain.AttributeField, raw any) error {
	if a.StringFormat == "" {
		return nil
	}
	items := []any{raw}
	if arr, ok := raw.([]any); ok && a.FieldType == domain.FieldArray {
		items = arr
	}
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return domain.NewValidationError(fmt.Sprintf("attribute %s: format %s requires a string, got %T", a.Name, a.StringFormat, item))
		}
		if err := checkStringFormat(a.StringFormat, s); err != nil {
			return domain.NewValidationError(fmt.Sprintf("attribute %s: %q is not a valid %s", a.Name, s, a.StringFormat))
		}
	}
	return nil
}

func checkStringFormat(format domain.StringFormat, s string) error {
	if format == domain.FormatDuration {
		_, err := time.ParseDuration(s)
		return err
	}
	tag, ok := formatTags[format]
	if !ok {
		return nil
	}
	return validate.Var(s, tag)
}
