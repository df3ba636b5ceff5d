// Package partition slices the raw online and offline tables by calendar day
// and writes one online.csv/offline.csv pair per day to the unprocessed bucket.
package partition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eunmann/salesetl/internal/logctx"
	"github.com/eunmann/salesetl/pkg/dataset"
	"github.com/eunmann/salesetl/pkg/objstore"
	"github.com/eunmann/salesetl/pkg/watermark"
)

// ErrNoTimestamps indicates that neither table has a parseable timestamp.
var ErrNoTimestamps = errors.New("no parseable timestamps in source data")

// Range returns the first and last calendar day present in either table.
// Rows with unparseable timestamps are ignored.
func Range(online, offline *dataset.Table) (first, last watermark.DayKey, err error) {
	var (
		lo, hi time.Time
		found  bool
	)
	for _, t := range []*dataset.Table{online, offline} {
		if t == nil {
			continue
		}
		tlo, thi, ok := t.Bounds()
		if !ok {
			continue
		}
		if !found || tlo.Before(lo) {
			lo = tlo
		}
		if !found || thi.After(hi) {
			hi = thi
		}
		found = true
	}
	if !found {
		return watermark.DayKey{}, watermark.DayKey{}, ErrNoTimestamps
	}
	return watermark.DayOf(lo), watermark.DayOf(hi), nil
}

// MinDay is the first day of Range: where staging starts.
func MinDay(online, offline *dataset.Table) (watermark.DayKey, error) {
	first, _, err := Range(online, offline)
	return first, err
}

// MaxDay is the last day of Range: where staging ends.
func MaxDay(online, offline *dataset.Table) (watermark.DayKey, error) {
	_, last, err := Range(online, offline)
	return last, err
}

// Partitioner writes day partitions to one bucket.
type Partitioner struct {
	store  objstore.Store
	bucket string
}

// New creates a Partitioner writing into bucket.
func New(store objstore.Store, bucket string) *Partitioner {
	return &Partitioner{store: store, bucket: bucket}
}

// Slice returns the rows of t whose timestamp falls on day.
func Slice(t *dataset.Table, day watermark.DayKey) *dataset.Table {
	return t.Filter(func(ts time.Time) bool {
		return watermark.DayOf(ts) == day
	})
}

// Stats describes one written day.
type Stats struct {
	OnlineRows   int
	OfflineRows  int
	OnlineBytes  int
	OfflineBytes int
}

// WriteDay writes the online slice then the offline slice for day. Existing
// objects are overwritten, so rewriting a day with unchanged input produces
// identical objects. If the offline write fails the online object stays; the
// watermark treats such a day as unstaged and the next poll rewrites both.
func (p *Partitioner) WriteDay(ctx context.Context, online, offline *dataset.Table, day watermark.DayKey) (Stats, error) {
	var st Stats

	onSlice := Slice(online, day)
	onBody, err := onSlice.CSV()
	if err != nil {
		return st, fmt.Errorf("encode online %s: %w", day, err)
	}
	offSlice := Slice(offline, day)
	offBody, err := offSlice.CSV()
	if err != nil {
		return st, fmt.Errorf("encode offline %s: %w", day, err)
	}

	if err := p.store.PutObject(ctx, p.bucket, day.OnlineKey(), onBody); err != nil {
		return st, fmt.Errorf("write online partition %s: %w", day, err)
	}
	st.OnlineRows = onSlice.Len()
	st.OnlineBytes = len(onBody)

	if err := p.store.PutObject(ctx, p.bucket, day.OfflineKey(), offBody); err != nil {
		return st, fmt.Errorf("write offline partition %s: %w", day, err)
	}
	st.OfflineRows = offSlice.Len()
	st.OfflineBytes = len(offBody)

	log := logctx.FromContext(ctx)
	log.Info().
		Str("bucket", p.bucket).
		Str("prefix", day.Prefix()).
		Int("online_rows", st.OnlineRows).
		Int("offline_rows", st.OfflineRows).
		Msg("wrote day partition")
	return st, nil
}
