package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Photoroom/dataroom/internal/domain"
)

const attributeColumns = `name, description, field_type, string_format, array_type,
	enum_choices, is_required, is_enabled, is_indexed, is_mapped, image_count`

// Attributes returns every attribute definition, enabled or not.
func (r *Repo) Attributes(ctx context.Context) ([]domain.AttributeField, error) {
	rows, err := r.db.Query(ctx, `SELECT `+attributeColumns+` FROM attribute_fields ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select attributes: %w", err)
	}
	defer rows.Close()

	var out []domain.AttributeField
	for rows.Next() {
		f, err := scanAttribute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetAttribute returns one attribute definition by name.
func (r *Repo) GetAttribute(ctx context.Context, name string) (domain.AttributeField, error) {
	row := r.db.QueryRow(ctx, `SELECT `+attributeColumns+` FROM attribute_fields WHERE name = $1`, name)
	f, err := scanAttribute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AttributeField{}, domain.ErrNotFound
	}
	return f, err
}

// CreateAttribute inserts a new attribute definition.
func (r *Repo) CreateAttribute(ctx context.Context, f domain.AttributeField) error {
	if _, err := f.ResolvedType(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO attribute_fields
			(name, description, field_type, string_format, array_type, enum_choices,
			 is_required, is_enabled, is_indexed, is_mapped, image_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, 0)`,
		f.Name, f.Description, f.FieldType, f.StringFormat, f.ArrayType,
		f.EnumChoices, f.IsRequired, f.IsEnabled, f.IsIndexed)
	if err != nil {
		return fmt.Errorf("insert attribute %s: %w", f.Name, err)
	}
	return nil
}

// SetAttributeEnabled flips the enabled flag. Disabled attributes keep their
// rows so existing documents stay decodable.
func (r *Repo) SetAttributeEnabled(ctx context.Context, name string, enabled bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE attribute_fields SET is_enabled = $2 WHERE name = $1`, name, enabled)
	if err != nil {
		return fmt.Errorf("update attribute %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkAttributeMapped records that the physical field has been added to the
// index mapping.
func (r *Repo) MarkAttributeMapped(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE attribute_fields SET is_mapped = TRUE WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("update attribute %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetAttributeImageCount stores an image count computed by the stats worker.
func (r *Repo) SetAttributeImageCount(ctx context.Context, name string, count int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE attribute_fields SET image_count = $2 WHERE name = $1`, name, count)
	if err != nil {
		return fmt.Errorf("update attribute %s: %w", name, err)
	}
	return nil
}

func scanAttribute(row pgx.Row) (domain.AttributeField, error) {
	var f domain.AttributeField
	err := row.Scan(&f.Name, &f.Description, &f.FieldType, &f.StringFormat, &f.ArrayType,
		&f.EnumChoices, &f.IsRequired, &f.IsEnabled, &f.IsIndexed, &f.IsMapped, &f.ImageCount)
	if err != nil {
		return domain.AttributeField{}, err
	}
	return f, nil
}
