package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Photoroom/dataroom/internal/domain"
)

const datasetColumns = `slug, version, name, author, description, image_count, is_frozen`

// Datasets returns every dataset version.
func (r *Repo) Datasets(ctx context.Context) ([]domain.Dataset, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+datasetColumns+` FROM datasets ORDER BY slug, version`)
	if err != nil {
		return nil, fmt.Errorf("select datasets: %w", err)
	}
	defer rows.Close()

	var out []domain.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDataset returns one dataset by slug and version.
func (r *Repo) GetDataset(ctx context.Context, slug string, version int64) (domain.Dataset, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE slug = $1 AND version = $2`, slug, version)
	d, err := scanDataset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Dataset{}, domain.ErrNotFound
	}
	return d, err
}

// CreateDataset inserts a new dataset version, allocating the next version
// number for the slug.
func (r *Repo) CreateDataset(ctx context.Context, d domain.Dataset) (domain.Dataset, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO datasets (slug, version, name, author, description, image_count, is_frozen)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3, $4, 0, FALSE
		FROM datasets WHERE slug = $1
		RETURNING `+datasetColumns,
		d.Slug, d.Name, d.Author, d.Description)
	created, err := scanDataset(row)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("insert dataset %s: %w", d.Slug, err)
	}
	return created, nil
}

// SetDatasetFrozen flips the frozen flag. Frozen datasets reject membership
// changes.
func (r *Repo) SetDatasetFrozen(ctx context.Context, slug string, version int64, frozen bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE datasets SET is_frozen = $3 WHERE slug = $1 AND version = $2`, slug, version, frozen)
	if err != nil {
		return fmt.Errorf("update dataset %s/%d: %w", slug, version, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetDatasetImageCount stores an image count computed by the stats worker.
func (r *Repo) SetDatasetImageCount(ctx context.Context, slug string, version int64, count int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE datasets SET image_count = $3 WHERE slug = $1 AND version = $2`, slug, version, count)
	if err != nil {
		return fmt.Errorf("update dataset %s/%d: %w", slug, version, err)
	}
	return nil
}

func scanDataset(row pgx.Row) (domain.Dataset, error) {
	var d domain.Dataset
	err := row.Scan(&d.Slug, &d.Version, &d.Name, &d.Author, &d.Description, &d.ImageCount, &d.IsFrozen)
	if err != nil {
		return domain.Dataset{}, err
	}
	return d, nil
}
