package catalog

import (
	"context"
	"fmt"

	"github.com/Photoroom/dataroom/internal/domain"
)

// Tags returns every known tag.
func (r *Repo) Tags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := r.db.Query(ctx,
		`SELECT name, description, image_count FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select tags: %w", err)
	}
	defer rows.Close()

	var out []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.Name, &t.Description, &t.ImageCount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// EnsureTags upserts tag rows for every name, so saving an image can
// reference tags that were never declared up front.
func (r *Repo) EnsureTags(ctx context.Context, names []string) error {
	for _, name := range names {
		_, err := r.db.Exec(ctx, `
			INSERT INTO tags (name, description, image_count)
			VALUES ($1, '', 0)
			ON CONFLICT (name) DO NOTHING`, name)
		if err != nil {
			return fmt.Errorf("upsert tag %s: %w", name, err)
		}
	}
	return nil
}

// SetTagImageCount stores an image count computed by the stats worker.
func (r *Repo) SetTagImageCount(ctx context.Context, name string, count int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE tags SET image_count = $2 WHERE name = $1`, name, count)
	if err != nil {
		return fmt.Errorf("update tag %s: %w", name, err)
	}
	return nil
}
