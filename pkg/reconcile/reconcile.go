// Package reconcile finds staged partitions that have not been loaded into
// the warehouse yet by diffing the unprocessed and processed buckets.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/eunmann/salesetl/internal/logctx"
	"github.com/eunmann/salesetl/pkg/objstore"
	"github.com/eunmann/salesetl/pkg/watermark"
)

// Batch is the set of newly staged keys found by one poll.
type Batch struct {
	// Keys is every new key, sorted. Keys that are neither online nor
	// offline partitions are still marked processed with the batch.
	Keys    []string
	Online  []string
	Offline []string
}

// Empty reports whether there is nothing to load.
func (b Batch) Empty() bool {
	return len(b.Keys) == 0
}

// Loadable reports whether the batch carries any partition to load.
func (b Batch) Loadable() bool {
	return len(b.Online) > 0 || len(b.Offline) > 0
}

// Diff returns the keys in unprocessed that are absent from processed,
// split by channel suffix. It is a pure function of its inputs.
func Diff(unprocessed, processed []string) Batch {
	done := make(map[string]struct{}, len(processed))
	for _, k := range processed {
		done[k] = struct{}{}
	}

	var b Batch
	seen := make(map[string]struct{}, len(unprocessed))
	for _, k := range unprocessed {
		if _, ok := done[k]; ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		b.Keys = append(b.Keys, k)
	}
	sort.Strings(b.Keys)

	for _, k := range b.Keys {
		switch {
		case strings.HasSuffix(k, watermark.OfflineObject):
			b.Offline = append(b.Offline, k)
		case strings.HasSuffix(k, watermark.OnlineObject):
			b.Online = append(b.Online, k)
		}
	}
	return b
}

// Reconciler polls the two buckets. It assumes it is the only writer to the
// processed bucket.
type Reconciler struct {
	store       objstore.Store
	unprocessed string
	processed   string
}

// New creates a Reconciler over the given buckets.
func New(store objstore.Store, unprocessedBucket, processedBucket string) *Reconciler {
	return &Reconciler{store: store, unprocessed: unprocessedBucket, processed: processedBucket}
}

// EnsureProcessedBucket creates the processed bucket if it is missing.
func (r *Reconciler) EnsureProcessedBucket(ctx context.Context) error {
	return objstore.EnsureBucket(ctx, r.store, r.processed)
}

// Poll lists both buckets and returns the new keys. A missing unprocessed
// bucket is an error; a missing processed bucket means nothing has been
// loaded yet.
func (r *Reconciler) Poll(ctx context.Context) (Batch, error) {
	unprocessed, err := r.store.ListKeys(ctx, r.unprocessed, "")
	if err != nil {
		return Batch{}, fmt.Errorf("list unprocessed bucket: %w", err)
	}

	processed, err := r.store.ListKeys(ctx, r.processed, "")
	if err != nil {
		if !objstore.IsNotFound(err) {
			return Batch{}, fmt.Errorf("list processed bucket: %w", err)
		}
		log := logctx.FromContext(ctx)
		log.Warn().Str("bucket", r.processed).Msg("processed bucket does not exist; treating as empty")
		processed = nil
	}

	b := Diff(unprocessed, processed)
	log := logctx.FromContext(ctx)
	log.Debug().
		Int("unprocessed", len(unprocessed)).
		Int("processed", len(processed)).
		Int("new", len(b.Keys)).
		Msg("reconciled buckets")
	return b, nil
}

// MarkProcessed copies every key of the batch into the processed bucket.
// The source objects are kept so the stager still sees the day as staged.
func (r *Reconciler) MarkProcessed(ctx context.Context, b Batch) error {
	log := logctx.FromContext(ctx)
	for _, k := range b.Keys {
		if err := r.store.CopyObject(ctx, r.unprocessed, k, r.processed, k); err != nil {
			return fmt.Errorf("mark %s processed: %w", k, err)
		}
		log.Debug().Str("key", k).Msg("marked processed")
	}
	return nil
}

// Fetch downloads one key from the unprocessed bucket.
func (r *Reconciler) Fetch(ctx context.Context, key string) ([]byte, error) {
	body, err := r.store.GetObject(ctx, r.unprocessed, key)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	return body, nil
}
