// Package blob resolves publication files to downloadable URLs
package blob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Resolver builds public download URLs for files stored in the
// dataspace object store. Resolved URLs are cached in Redis since the
// same publication is fetched by every consumer that lands a contract.
type Resolver struct {
	baseURL  string
	bucket   string
	cache    *redis.Client
	cacheTTL time.Duration
	logger   ectologger.Logger
}

// NewResolver creates a new URL resolver
func NewResolver(baseURL, bucket string, cache *redis.Client, cacheTTL time.Duration, logger ectologger.Logger) *Resolver {
	return &Resolver{
		baseURL:  strings.TrimRight(baseURL, "/"),
		bucket:   bucket,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func (r *Resolver) cacheKey(filePath string) string {
	return "blob:url:" + r.bucket + ":" + filePath
}

// Resolve returns the public download URL for a stored file path
func (r *Resolver) Resolve(ctx context.Context, filePath string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "blob.Resolver.Resolve")
	defer span.End()

	if filePath == "" {
		return "", lifecycle.NewNotFoundError("publication has no stored file")
	}

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, r.cacheKey(filePath))
		if err == nil && cached != "" {
			return cached, nil
		}
		if err != nil && err != goredis.Nil {
			r.logger.WithContext(ctx).WithError(err).Warn("blob url cache read failed")
		}
	}

	url := fmt.Sprintf("%s/storage/v1/object/public/%s/%s", r.baseURL, r.bucket, strings.TrimLeft(filePath, "/"))

	if r.cache != nil {
		if err := r.cache.Set(ctx, r.cacheKey(filePath), url, r.cacheTTL); err != nil {
			r.logger.WithContext(ctx).WithError(err).Warn("blob url cache write failed")
		}
	}

	return url, nil
}
