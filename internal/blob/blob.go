// Package blob stores the binary payloads attached to image records: the
// original file, its thumbnail, and latent files. Documents in the search
// index only hold blob paths; the bytes live here.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrBlobNotFound is returned when a path has no stored object.
var ErrBlobNotFound = errors.New("blob not found")

// Store is the consumer interface over object storage.
type Store interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// OriginalPath is where an image's original file lives.
func OriginalPath(id, ext string) string {
	return path.Join("images", id, "original"+normalizeExt(ext))
}

// ThumbnailPath is where an image's thumbnail lives.
func ThumbnailPath(id string) string {
	return path.Join("images", id, "thumbnail.jpg")
}

// LatentPath is where one latent file of an image lives.
func LatentPath(id, latentType, ext string) string {
	return path.Join("images", id, fmt.Sprintf("latent_%s%s", latentType, normalizeExt(ext)))
}

// ImagePrefix covers every blob belonging to one image.
func ImagePrefix(id string) string {
	return path.Join("images", id) + "/"
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}

// DeleteAll removes every blob under an image's prefix. Missing objects are
// not an error.
func DeleteAll(ctx context.Context, s Store, id string) error {
	paths, err := s.List(ctx, ImagePrefix(id))
	if err != nil {
		return fmt.Errorf("list blobs for %s: %w", id, err)
	}
	for _, p := range paths {
		if err := s.Delete(ctx, p); err != nil && !errors.Is(err, ErrBlobNotFound) {
			return fmt.Errorf("delete blob %s: %w", p, err)
		}
	}
	return nil
}
