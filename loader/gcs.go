package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BucketFetcher downloads monthly trip exports from a public GCS bucket
// into a local directory ahead of the load. Downloads run behind a
// circuit breaker; once it opens the whole fetch fails.
type BucketFetcher struct {
	client  *storage.Client
	bucket  string
	breaker *gobreaker.CircuitBreaker[int64]
	log     *zap.Logger
}

// NewBucketFetcher creates a fetcher for the named bucket. The client is
// unauthenticated; trip exports are published as public objects.
func NewBucketFetcher(ctx context.Context, bucket string, log *zap.Logger) (*BucketFetcher, error) {
	client, err := storage.NewClient(ctx, option.WithoutAuthentication())
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	cb := gobreaker.NewCircuitBreaker[int64](gobreaker.Settings{
		Name:    "gcs-tripdata-fetch",
		Timeout: 30 * time.Second,
	})

	return &BucketFetcher{
		client:  client,
		bucket:  bucket,
		breaker: cb,
		log:     log,
	}, nil
}

// Fetch downloads every *-tripdata.csv object under prefix into destDir
// and returns the local paths in chronological (lexicographic) order.
func (f *BucketFetcher) Fetch(ctx context.Context, prefix, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %q: %w", destDir, err)
	}

	var names []string
	it := f.client.Bucket(f.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", f.bucket, prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "-tripdata.csv") {
			names = append(names, attrs.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no *-tripdata.csv objects under gs://%s/%s", f.bucket, prefix)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		local := filepath.Join(destDir, path.Base(name))
		written, err := f.breaker.Execute(func() (int64, error) {
			return f.download(ctx, name, local)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to download gs://%s/%s: %w", f.bucket, name, err)
		}
		f.log.Info("Downloaded monthly export",
			zap.String("object", name),
			zap.Int64("bytes", written))
		paths = append(paths, local)
	}
	return paths, nil
}

func (f *BucketFetcher) download(ctx context.Context, object, local string) (int64, error) {
	rc, err := f.client.Bucket(f.bucket).Object(object).NewReader(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = rc.Close()
	}()

	file, err := os.Create(local)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = file.Close()
	}()

	return io.Copy(file, rc)
}

// Close releases the underlying storage client.
func (f *BucketFetcher) Close() error {
	return f.client.Close()
}
