package objstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. It backs tests and dry runs; buckets must
// be created before use, mirroring S3 semantics.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte

	// PutHook, when set, runs before every PutObject; a non-nil return
	// fails the put without storing anything.
	PutHook func(bucket, key string) error
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store with the given buckets created.
func NewMemory(buckets ...string) *Memory {
	m := &Memory{buckets: make(map[string]map[string][]byte)}
	for _, b := range buckets {
		m.buckets[b] = make(map[string][]byte)
	}
	return m
}

func (m *Memory) bucket(name string) (map[string][]byte, error) {
	b, ok := m.buckets[name]
	if !ok {
		return nil, fmt.Errorf("bucket %s: %w", name, ErrNotFound)
	}
	return b, nil
}

// HeadBucket reports ErrNotFound for unknown buckets.
func (m *Memory) HeadBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.bucket(bucket)
	return err
}

// CreateBucket creates bucket; creating an existing bucket is a no-op.
func (m *Memory) CreateBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

// ListKeys returns the keys under prefix in lexical order.
func (m *Memory) ListKeys(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}
	var keys []string
	for k := range b {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// GetObject returns a copy of the stored bytes.
func (m *Memory) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}
	body, ok := b[key]
	if !ok {
		return nil, fmt.Errorf("key %s/%s: %w", bucket, key, ErrNotFound)
	}
	return append([]byte(nil), body...), nil
}

// PutObject stores a copy of body.
func (m *Memory) PutObject(_ context.Context, bucket, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return err
	}
	if m.PutHook != nil {
		if err := m.PutHook(bucket, key); err != nil {
			return err
		}
	}
	b[key] = append([]byte(nil), body...)
	return nil
}

// CopyObject duplicates an object between buckets.
func (m *Memory) CopyObject(_ context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, err := m.bucket(srcBucket)
	if err != nil {
		return err
	}
	dst, err := m.bucket(dstBucket)
	if err != nil {
		return err
	}
	body, ok := src[srcKey]
	if !ok {
		return fmt.Errorf("key %s/%s: %w", srcBucket, srcKey, ErrNotFound)
	}
	dst[dstKey] = append([]byte(nil), body...)
	return nil
}

// DeleteObject removes key; deleting a missing key is a no-op as in S3.
func (m *Memory) DeleteObject(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return err
	}
	delete(b, key)
	return nil
}
