// Package image is the application service over image records: creation
// with derived geometry, partial saves, latent and dataset membership
// mutations, deletion, and the paginated, partitionable query surface.
package image

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/Photoroom/dataroom/internal/blob"
	"github.com/Photoroom/dataroom/internal/domain"
	"github.com/Photoroom/dataroom/internal/imagemeta"
	imgrepo "github.com/Photoroom/dataroom/internal/repository/image"
)

// Service handles the image record lifecycle.
type Service struct {
	repo     Repository
	blobs    Blobs
	embedder Embedder
	schemas  Schemas
	catalogs Catalogs
	filters  Filters
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an image service.
func New(repo Repository, blobs Blobs, embedder Embedder, schemas Schemas, catalogs Catalogs, filters Filters, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		blobs:    blobs,
		embedder: embedder,
		schemas:  schemas,
		catalogs: catalogs,
		filters:  filters,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateRequest carries a new image and its original file.
type CreateRequest struct {
	ID          string
	Source      string
	Author      string
	OriginalURL string
	Filename    string
	Data        []byte
	Tags        []string
}

// validate checks the request fields that do not need the decoded file.
func (req CreateRequest) validate() error {
	if err := domain.ValidateID(req.ID); err != nil {
		return domain.NewValidationError(err.Error())
	}
	if req.Source == "" {
		return domain.NewValidationError("source is required")
	}
	if len(req.Data) == 0 {
		return domain.NewValidationError("image file is required")
	}
	return nil
}

// Create stores the original file and indexes the image with its derived
// geometry fields and pixel hash. Creates collide with stored images on
// both id and pixel hash.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Image, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	meta, err := imagemeta.Read(req.Data)
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("unreadable image file: %v", err))
	}

	if _, err := s.repo.Get(ctx, req.ID); err == nil {
		return nil, domain.NewAlreadyExists(req.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing, err := s.repo.GetByHash(ctx, meta.PixelHash); err == nil {
		return nil, domain.NewAlreadyExists(existing.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	return s.create(ctx, req, meta)
}

// create runs the collision-free part of a creation: store the original
// file, derive the document and index it.
func (s *Service) create(ctx context.Context, req CreateRequest, meta *imagemeta.Meta) (*domain.Image, error) {
	blobPath := blob.OriginalPath(req.ID, path.Ext(req.Filename))
	if err := s.blobs.Put(ctx, blobPath, req.Data); err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	now := s.now().UTC()
	img := &domain.Image{
		ID:                  req.ID,
		Source:              req.Source,
		Author:              req.Author,
		OriginalURL:         req.OriginalURL,
		Image:               blobPath,
		ImageHash:           meta.PixelHash,
		Width:               meta.Width,
		Height:              meta.Height,
		ShortEdge:           meta.ShortEdge,
		PixelCount:          meta.PixelCount,
		AspectRatio:         meta.AspectRatio,
		AspectRatioFraction: meta.AspectRatioFraction,
		Tags:                req.Tags,
		DateCreated:         now,
		DateUpdated:         now,
	}
	if err := img.ValidateRequired(nil); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	if len(img.Tags) > 0 {
		if err := s.catalogs.EnsureTags(ctx, img.Tags); err != nil {
			return nil, fmt.Errorf("ensure tags: %w", err)
		}
	}
	if err := s.repo.Save(ctx, img, nil); err != nil {
		return nil, err
	}
	return img, nil
}

// BulkCreateLimit caps the number of images accepted by one CreateMany call.
const BulkCreateLimit = 50

// CreateMany creates a batch of images. The whole batch is rejected up
// front when any id or pixel hash collides, within the batch or with stored
// images, so a clean batch never half-lands on a conflict.
func (s *Service) CreateMany(ctx context.Context, reqs []CreateRequest) ([]*domain.Image, error) {
	if len(reqs) == 0 {
		return nil, domain.NewValidationError("no images in bulk create")
	}
	if len(reqs) > BulkCreateLimit {
		return nil, domain.NewValidationError(fmt.Sprintf("bulk create accepts up to %d images, got %d", BulkCreateLimit, len(reqs)))
	}

	ids := make([]string, 0, len(reqs))
	hashes := make([]string, 0, len(reqs))
	metas := make([]*imagemeta.Meta, 0, len(reqs))
	seenID := make(map[string]bool, len(reqs))
	seenHash := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if err := req.validate(); err != nil {
			return nil, err
		}
		meta, err := imagemeta.Read(req.Data)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("unreadable image file for %q: %v", req.ID, err))
		}
		if seenID[req.ID] {
			return nil, domain.NewValidationError(fmt.Sprintf("image id %q appears multiple times in bulk", req.ID))
		}
		if seenHash[meta.PixelHash] {
			return nil, domain.NewValidationError(fmt.Sprintf("image %q duplicates another file in bulk", req.ID))
		}
		seenID[req.ID] = true
		seenHash[meta.PixelHash] = true
		ids = append(ids, req.ID)
		hashes = append(hashes, meta.PixelHash)
		metas = append(metas, meta)
	}

	existing, err := s.repo.GetMultiple(ctx, ids, []string{imgrepo.FieldID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, domain.NewAlreadyExists(imageIDs(existing)...)
	}
	existing, err = s.repo.GetMultipleByHash(ctx, hashes, []string{imgrepo.FieldID}, BulkCreateLimit)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, domain.NewAlreadyExists(imageIDs(existing)...)
	}

	out := make([]*domain.Image, 0, len(reqs))
	for i, req := range reqs {
		img, err := s.create(ctx, req, metas[i])
		if err != nil {
			return nil, fmt.Errorf("bulk create %s: %w", req.ID, err)
		}
		out = append(out, img)
	}
	return out, nil
}

func imageIDs(images []*domain.Image) []string {
	ids := make([]string, len(images))
	for i, img := range images {
		ids[i] = img.ID
	}
	return ids
}

// Save writes the listed logical fields of an image. The stored original
// file never changes through this path, and every save refreshes
// date_updated.
func (s *Service) Save(ctx context.Context, img *domain.Image, fieldList []string) error {
	if len(fieldList) == 0 {
		return domain.NewValidationError("field list is required")
	}
	if slices.Contains(fieldList, imgrepo.FieldImage) {
		return domain.NewValidationError("the image field cannot be saved")
	}
	if err := img.ValidateRequired(fieldList); err != nil {
		return domain.NewValidationError(err.Error())
	}
	if err := domain.ValidateRelatedImages(img.RelatedImages); err != nil {
		return domain.NewValidationError(err.Error())
	}

	img.DateUpdated = s.now().UTC()
	if !slices.Contains(fieldList, imgrepo.FieldDateUpdated) {
		fieldList = append(fieldList, imgrepo.FieldDateUpdated)
	}

	if slices.Contains(fieldList, imgrepo.FieldTags) && len(img.Tags) > 0 {
		if err := s.catalogs.EnsureTags(ctx, img.Tags); err != nil {
			return fmt.Errorf("ensure tags: %w", err)
		}
	}
	return s.repo.Save(ctx, img, fieldList)
}

// AddLatent attaches a latent file to an image. The type must exist in the
// catalog and must not already carry a file on this image.
func (s *Service) AddLatent(ctx context.Context, id, latentType, ext string, data []byte) error {
	sch, err := s.schemas.Current(ctx)
	if err != nil {
		return err
	}
	lt, err := sch.ResolveLatent(latentType)
	if err != nil {
		return err
	}

	img, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing, ok := img.Latents[latentType]; ok && existing.File != "" {
		return domain.NewLatentTypeError("latent type %q already exists on image %q", latentType, id)
	}

	blobPath := blob.LatentPath(id, latentType, ext)
	if err := s.blobs.Put(ctx, blobPath, data); err != nil {
		return fmt.Errorf("store latent: %w", err)
	}

	if img.Latents == nil {
		img.Latents = make(map[string]domain.Latent)
	}
	img.Latents[latentType] = domain.Latent{Type: latentType, File: blobPath, IsMask: lt.IsMask}
	return s.Save(ctx, img, []string{imgrepo.FieldLatents})
}

// RemoveLatent deletes the latent file and marks the slot as removed on the
// document, so the removal survives partial saves.
func (s *Service) RemoveLatent(ctx context.Context, id, latentType string) error {
	img, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	existing, ok := img.Latents[latentType]
	if !ok || existing.File == "" {
		return domain.NewLatentTypeError("latent type %q not found on image %q", latentType, id)
	}

	if err := s.blobs.Delete(ctx, existing.File); err != nil {
		return fmt.Errorf("delete latent blob: %w", err)
	}
	existing.File = ""
	existing.Removed = true
	img.Latents[latentType] = existing
	return s.Save(ctx, img, []string{imgrepo.FieldLatents})
}

// UpdateThumbnail renders and stores the thumbnail. Failures are recorded on
// the document instead of propagating, so backfill sweeps skip the image
// next time.
func (s *Service) UpdateThumbnail(ctx context.Context, id string) error {
	img, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	original, err := s.blobs.Get(ctx, img.Image)
	if err != nil {
		return fmt.Errorf("read original: %w", err)
	}

	thumb, err := imagemeta.Thumbnail(original)
	if err != nil {
		s.logger.Error("thumbnail generation failed", zap.String("image_id", id), zap.Error(err))
		img.ThumbnailError = true
		return s.Save(ctx, img, []string{imgrepo.FieldThumbnailError})
	}

	blobPath := blob.ThumbnailPath(id)
	if err := s.blobs.Put(ctx, blobPath, thumb); err != nil {
		return fmt.Errorf("store thumbnail: %w", err)
	}
	img.Thumbnail = blobPath
	return s.Save(ctx, img, []string{imgrepo.FieldThumbnail})
}

// UpdateEmbedding fetches and stores the image embedding, normalized to
// unit length.
func (s *Service) UpdateEmbedding(ctx context.Context, id, author string) error {
	img, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	original, err := s.blobs.Get(ctx, img.Image)
	if err != nil {
		return fmt.Errorf("read original: %w", err)
	}

	vector, err := s.embedder.ForImage(ctx, path.Base(img.Image), original)
	if err != nil {
		return fmt.Errorf("embed image %s: %w", id, err)
	}
	img.Embedding = domain.Embedding{
		Exists: true,
		Vector: domain.NormalizeVector(vector),
		Author: author,
	}
	return s.Save(ctx, img, []string{imgrepo.FieldEmbedding})
}

// SoftDelete hides an image from queries without removing anything.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	return s.repo.SoftDelete(ctx, id)
}

// DeletePermanently removes the document and every blob belonging to the
// image.
func (s *Service) DeletePermanently(ctx context.Context, id string) error {
	if err := blob.DeleteAll(ctx, s.blobs, id); err != nil {
		return err
	}
	return s.repo.DeletePermanently(ctx, id)
}

// AddToDataset adds an image to a dataset version. Frozen datasets reject
// membership changes.
func (s *Service) AddToDataset(ctx context.Context, id, slug string, version int64) error {
	ds, err := s.catalogs.GetDataset(ctx, slug, version)
	if err != nil {
		return err
	}
	if ds.IsFrozen {
		return domain.ErrFrozenDataset
	}

	img, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	img.AddDataset(ds.SlugVersion())
	return s.Save(ctx, img, []string{imgrepo.FieldDatasets})
}

// RemoveFromDataset removes an image from a dataset version. Frozen datasets
// reject membership changes.
func (s *Service) RemoveFromDataset(ctx context.Context, id, slug string, version int64) error {
	ds, err := s.catalogs.GetDataset(ctx, slug, version)
	if err != nil {
		return err
	}
	if ds.IsFrozen {
		return domain.ErrFrozenDataset
	}

	img, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	img.RemoveDataset(ds.SlugVersion())
	return s.Save(ctx, img, []string{imgrepo.FieldDatasets})
}
