package image

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Photoroom/dataroom/internal/db"
	"github.com/Photoroom/dataroom/internal/domain"
	"github.com/Photoroom/dataroom/internal/imagemeta"
	imgrepo "github.com/Photoroom/dataroom/internal/repository/image"
)

const (
	// DefaultPageSize and MaxPageSize bound one result page.
	DefaultPageSize = 100
	MaxPageSize     = 2000

	// DefaultSimilarCount is how many neighbors a similarity query returns.
	DefaultSimilarCount = 30

	cursorParam          = "cursor"
	pageSizeParam        = "page_size"
	fieldsParam          = "fields"
	partitionParam       = "partition"
	partitionsCountParam = "partitions_count"
)

// Page is one result page plus the query string that resumes after it.
type Page struct {
	Images []*domain.Image
	Next   string
}

// List runs a filtered, paginated query. The returned page carries a
// resumable query string when more results may follow.
func (s *Service) List(ctx context.Context, params url.Values) (*Page, error) {
	query, err := s.filters.Compile(ctx, params)
	if err != nil {
		return nil, err
	}

	size, err := pageSize(params)
	if err != nil {
		return nil, err
	}
	preference, err := s.partitionPreference(ctx, params)
	if err != nil {
		return nil, err
	}

	opts := imgrepo.SearchOpts{
		Query:      query,
		Fields:     fieldList(params),
		Size:       size,
		Preference: preference,
	}
	if cursor := params.Get(cursorParam); cursor != "" {
		opts.SearchAfter = []any{cursor}
	}

	res, err := s.repo.Search(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Page{Images: res.Images, Next: nextQuery(params, res.Images)}, nil
}

// Count returns how many images match the filters.
func (s *Service) Count(ctx context.Context, params url.Values) (int64, error) {
	query, err := s.filters.Compile(ctx, params)
	if err != nil {
		return 0, err
	}
	return s.repo.Count(ctx, query)
}

// CountsByField buckets matching images by one physical field.
func (s *Service) CountsByField(ctx context.Context, field string) (map[string]int64, error) {
	return s.repo.CountsByField(ctx, field, "desc", 1000)
}

// Random samples images by matching random pixel-hash prefixes, which are
// uniformly distributed. Shorter prefixes match more images at the cost of
// less randomness.
func (s *Service) Random(ctx context.Context, params url.Values, prefixLength, numPrefixes int) ([]*domain.Image, error) {
	if prefixLength <= 0 {
		prefixLength = 5
	}
	if numPrefixes <= 0 {
		numPrefixes = 100
	}

	query, err := s.filters.Compile(ctx, params)
	if err != nil {
		return nil, err
	}
	size, err := pageSize(params)
	if err != nil {
		return nil, err
	}

	const hexChars = "0123456789abcdef"
	prefixes := db.NewBool()
	for i := 0; i < numPrefixes; i++ {
		var sb strings.Builder
		sb.WriteString(imagemeta.HashPrefix + ":")
		for j := 0; j < prefixLength; j++ {
			sb.WriteByte(hexChars[rand.Intn(len(hexChars))])
		}
		prefixes.Should(db.Prefix("image_hash", sb.String()))
	}
	query = query.Must(prefixes.MinimumShouldMatch(1).Build())

	res, err := s.repo.Search(ctx, imgrepo.SearchOpts{
		Query:  query,
		Fields: fieldList(params),
		Sort:   []db.SortField{{Field: "_doc", Order: "asc"}},
		Size:   size,
	})
	if err != nil {
		return nil, err
	}
	return res.Images, nil
}

// SimilarToImage returns the k nearest neighbors of an image, excluding the
// image itself. Extra filters restrict candidates.
func (s *Service) SimilarToImage(ctx context.Context, id string, k int, params url.Values) ([]*domain.Image, error) {
	img, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !img.Embedding.Exists {
		return nil, domain.NewMissingEmbedding(id)
	}
	return s.similar(ctx, img.Embedding.Vector, k, id, params)
}

// SimilarToText embeds a caption and returns its nearest image neighbors.
func (s *Service) SimilarToText(ctx context.Context, text string, k int, params url.Values) ([]*domain.Image, error) {
	vector, err := s.embedder.ForText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	return s.similar(ctx, domain.NormalizeVector(vector), k, "", params)
}

// SimilarToVector returns the nearest image neighbors of a raw vector.
func (s *Service) SimilarToVector(ctx context.Context, vector []float32, k int, params url.Values) ([]*domain.Image, error) {
	if len(vector) != domain.EmbeddingDim {
		return nil, domain.NewValidationError(fmt.Sprintf("vector has %d dimensions, want %d", len(vector), domain.EmbeddingDim))
	}
	return s.similar(ctx, domain.NormalizeVector(vector), k, "", params)
}

func (s *Service) similar(ctx context.Context, vector []float32, k int, excludeID string, params url.Values) ([]*domain.Image, error) {
	filter, err := s.filters.Compile(ctx, params)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultSimilarCount
	}
	return s.repo.FindSimilar(ctx, vector, k, excludeID, filter, fieldList(params))
}

// Similarity scores one image against another image's embedding.
func (s *Service) Similarity(ctx context.Context, id, otherID string) (float64, error) {
	other, err := s.repo.Get(ctx, otherID)
	if err != nil {
		return 0, err
	}
	if !other.Embedding.Exists {
		return 0, domain.NewMissingEmbedding(otherID)
	}
	return s.repo.Similarity(ctx, id, other.Embedding.Vector)
}

// ScanPartitions walks every matching image across partitions in parallel,
// calling fn once per page. fn runs concurrently across partitions and must
// be safe for that.
func (s *Service) ScanPartitions(ctx context.Context, params url.Values, partitions int, fn func(ctx context.Context, images []*domain.Image) error) error {
	if partitions < 2 {
		return s.scanStream(ctx, cloneValues(params), fn)
	}

	shards, err := s.repo.Shards(ctx)
	if err != nil {
		return fmt.Errorf("read shard count: %w", err)
	}
	if partitions > shards {
		partitions = shards
	}

	g, ctx := errgroup.WithContext(ctx)
	for p := 0; p < partitions; p++ {
		own := cloneValues(params)
		own.Set(partitionParam, strconv.Itoa(p))
		own.Set(partitionsCountParam, strconv.Itoa(partitions))
		g.Go(func() error {
			return s.scanStream(ctx, own, fn)
		})
	}
	return g.Wait()
}

func (s *Service) scanStream(ctx context.Context, params url.Values, fn func(ctx context.Context, images []*domain.Image) error) error {
	for {
		page, err := s.List(ctx, params)
		if err != nil {
			return err
		}
		if len(page.Images) == 0 {
			return nil
		}
		if err := fn(ctx, page.Images); err != nil {
			return err
		}
		if page.Next == "" {
			return nil
		}
		next, err := url.ParseQuery(page.Next)
		if err != nil {
			return fmt.Errorf("parse next cursor: %w", err)
		}
		params = next
	}
}

// partitionPreference validates the partition parameters and renders the
// shard preference string. Shard ids are sequential, so a partition owns
// every count-th shard starting at its own index.
func (s *Service) partitionPreference(ctx context.Context, params url.Values) (string, error) {
	countRaw := params.Get(partitionsCountParam)
	partRaw := params.Get(partitionParam)
	if countRaw == "" && partRaw == "" {
		return "", nil
	}
	if countRaw == "" || partRaw == "" {
		return "", domain.NewValidationError(
			fmt.Sprintf("both %q and %q parameters must be provided", partitionsCountParam, partitionParam))
	}

	count, err := strconv.Atoi(countRaw)
	if err != nil {
		return "", domain.NewValidationError(fmt.Sprintf("invalid %q parameter", partitionsCountParam))
	}
	partition, err := strconv.Atoi(partRaw)
	if err != nil || partition < 0 {
		return "", domain.NewValidationError(fmt.Sprintf("invalid %q parameter", partitionParam))
	}

	shards, err := s.repo.Shards(ctx)
	if err != nil {
		return "", fmt.Errorf("read shard count: %w", err)
	}
	if count < 2 || count > shards {
		return "", domain.NewValidationError(
			fmt.Sprintf("%q should be between 2 and %d", partitionsCountParam, shards))
	}
	if partition >= count {
		return "", domain.NewValidationError(
			fmt.Sprintf("%q should be between 0 and %d", partitionParam, count-1))
	}

	selected := make([]string, 0, shards/count+1)
	for shard := partition; shard < shards; shard += count {
		selected = append(selected, strconv.Itoa(shard))
	}
	return "_shards:" + strings.Join(selected, ","), nil
}

// nextQuery renders the query string that resumes after the last hit, or
// empty when the page was empty.
func nextQuery(params url.Values, images []*domain.Image) string {
	if len(images) == 0 {
		return ""
	}
	last := images[len(images)-1]
	if last.Meta == nil || len(last.Meta.Sort) == 0 {
		return ""
	}
	next := cloneValues(params)
	next.Set(cursorParam, fmt.Sprint(last.Meta.Sort[0]))
	return next.Encode()
}

func pageSize(params url.Values) (int, error) {
	raw := params.Get(pageSizeParam)
	if raw == "" {
		return DefaultPageSize, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size < 1 {
		return 0, domain.NewValidationError(fmt.Sprintf("invalid %q parameter", pageSizeParam))
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return size, nil
}

func fieldList(params url.Values) []string {
	raw := params.Get(fieldsParam)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func cloneValues(params url.Values) url.Values {
	out := make(url.Values, len(params))
	for k, vs := range params {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
