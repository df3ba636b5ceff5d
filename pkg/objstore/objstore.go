// Package objstore is the object-store boundary of salesetl: a bucket/key
// blob store with list, get, put, copy, and bucket provisioning.
package objstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/eunmann/salesetl/internal/logctx"
)

// ErrNotFound indicates that a bucket or key does not exist. Store
// implementations join it with the underlying error, so errors.Is works for
// both.
var ErrNotFound = errors.New("not found")

// Store is the set of object-store operations the pipeline consumes.
type Store interface {
	HeadBucket(ctx context.Context, bucket string) error
	CreateBucket(ctx context.Context, bucket string) error
	// ListKeys returns every key in bucket that starts with prefix.
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, body []byte) error
	CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	DeleteObject(ctx context.Context, bucket, key string) error
}

// IsNotFound reports whether err signals a missing bucket or key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// EnsureBucket creates bucket when HeadBucket reports it missing. Any other
// HeadBucket failure is returned unchanged.
func EnsureBucket(ctx context.Context, s Store, bucket string) error {
	err := s.HeadBucket(ctx, bucket)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}

	log := logctx.FromContext(ctx)
	log.Info().Str("bucket", bucket).Msg("creating bucket")
	if err := s.CreateBucket(ctx, bucket); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// ObjectExists reports whether key is present in bucket.
func ObjectExists(ctx context.Context, s Store, bucket, key string) (bool, error) {
	keys, err := s.ListKeys(ctx, bucket, key)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k == key {
			return true, nil
		}
	}
	return false, nil
}
