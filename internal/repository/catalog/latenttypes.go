package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Photoroom/dataroom/internal/domain"
)

// LatentTypes returns every latent type definition.
func (r *Repo) LatentTypes(ctx context.Context) ([]domain.LatentType, error) {
	rows, err := r.db.Query(ctx,
		`SELECT name, is_mask, is_enabled, is_mapped, image_count FROM latent_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select latent types: %w", err)
	}
	defer rows.Close()

	var out []domain.LatentType
	for rows.Next() {
		var lt domain.LatentType
		if err := rows.Scan(&lt.Name, &lt.IsMask, &lt.IsEnabled, &lt.IsMapped, &lt.ImageCount); err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

// GetLatentType returns one latent type definition by name.
func (r *Repo) GetLatentType(ctx context.Context, name string) (domain.LatentType, error) {
	var lt domain.LatentType
	err := r.db.QueryRow(ctx,
		`SELECT name, is_mask, is_enabled, is_mapped, image_count FROM latent_types WHERE name = $1`, name).
		Scan(&lt.Name, &lt.IsMask, &lt.IsEnabled, &lt.IsMapped, &lt.ImageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LatentType{}, domain.ErrNotFound
	}
	return lt, err
}

// CreateLatentType inserts a new latent type definition.
func (r *Repo) CreateLatentType(ctx context.Context, lt domain.LatentType) error {
	if err := domain.ValidateLatentTypeName(lt.Name); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO latent_types (name, is_mask, is_enabled, is_mapped, image_count)
		VALUES ($1, $2, $3, FALSE, 0)`,
		lt.Name, lt.IsMask, lt.IsEnabled)
	if err != nil {
		return fmt.Errorf("insert latent type %s: %w", lt.Name, err)
	}
	return nil
}

// MarkLatentTypeMapped records that the latent file field has been added to
// the index mapping.
func (r *Repo) MarkLatentTypeMapped(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE latent_types SET is_mapped = TRUE WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("update latent type %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetLatentTypeImageCount stores an image count computed by the stats worker.
func (r *Repo) SetLatentTypeImageCount(ctx context.Context, name string, count int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE latent_types SET image_count = $2 WHERE name = $1`, name, count)
	if err != nil {
		return fmt.Errorf("update latent type %s: %w", name, err)
	}
	return nil
}
