package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/eunmann/salesetl/internal/logctx"
	"github.com/eunmann/salesetl/pkg/dataset"
	"github.com/eunmann/salesetl/pkg/metrics"
	"github.com/eunmann/salesetl/pkg/objstore"
	"github.com/eunmann/salesetl/pkg/partition"
	"github.com/eunmann/salesetl/pkg/watermark"
)

// StagerConfig configures a Stager.
type StagerConfig struct {
	RawBucket         string
	UnprocessedBucket string
	OnlineObject      string
	OfflineObject     string
	PollInterval      time.Duration
	// End, when non-zero, replaces the last day found in the raw data as
	// the final day to stage.
	End time.Time
	// ExitWhenDone makes Run return once every day has been staged instead
	// of idling.
	ExitWhenDone bool
}

// StageResult describes one stage iteration.
type StageResult struct {
	Day   watermark.DayKey
	Stats partition.Stats
	// Done is set when every day in range was already staged and nothing
	// was written.
	Done bool
}

// Stager writes one day partition per iteration, earliest unstaged day
// first.
type Stager struct {
	store objstore.Store
	cfg   StagerConfig
	part  *partition.Partitioner

	online, offline *dataset.Table
	first, last     watermark.DayKey
	ready           bool
}

// NewStager creates a Stager. Raw data is read on first use.
func NewStager(store objstore.Store, cfg StagerConfig) *Stager {
	return &Stager{
		store: store,
		cfg:   cfg,
		part:  partition.New(store, cfg.UnprocessedBucket),
	}
}

// Prepare ensures the unprocessed bucket exists and reads both raw files.
// Any error here is fatal for the stager: without the raw data no day can
// ever be staged.
func (s *Stager) Prepare(ctx context.Context) error {
	if s.ready {
		return nil
	}
	if err := objstore.EnsureBucket(ctx, s.store, s.cfg.UnprocessedBucket); err != nil {
		return err
	}

	online, err := s.readRaw(ctx, s.cfg.OnlineObject, dataset.OnlineTimeColumn)
	if err != nil {
		return err
	}
	offline, err := s.readRaw(ctx, s.cfg.OfflineObject, dataset.OfflineTimeColumn)
	if err != nil {
		return err
	}

	first, last, err := partition.Range(online, offline)
	if err != nil {
		return err
	}
	if !s.cfg.End.IsZero() {
		last = watermark.DayOf(s.cfg.End)
	}

	s.online, s.offline = online, offline
	s.first, s.last = first, last
	s.ready = true

	log := logctx.FromContext(ctx)
	log.Info().
		Int("online_rows", online.Len()).
		Int("offline_rows", offline.Len()).
		Str("first_day", first.String()).
		Str("last_day", last.String()).
		Msg("raw data loaded")
	return nil
}

func (s *Stager) readRaw(ctx context.Context, key, timeColumn string) (*dataset.Table, error) {
	body, err := s.store.GetObject(ctx, s.cfg.RawBucket, key)
	if err != nil {
		return nil, fmt.Errorf("read raw %s/%s: %w", s.cfg.RawBucket, key, err)
	}
	t, err := dataset.ReadTableBytes(body, timeColumn)
	if err != nil {
		return nil, fmt.Errorf("parse raw %s: %w", key, err)
	}
	return t, nil
}

// RunOnce stages the next unstaged day, if any.
func (s *Stager) RunOnce(ctx context.Context) (StageResult, error) {
	var res StageResult
	if err := s.Prepare(ctx); err != nil {
		return res, err
	}

	keys, err := s.store.ListKeys(ctx, s.cfg.UnprocessedBucket, "")
	if err != nil {
		return res, fmt.Errorf("list staged days: %w", err)
	}
	day, ok := watermark.NextWithin(s.first, s.last, watermark.FromKeys(keys))
	if !ok {
		res.Done = true
		return res, nil
	}
	res.Day = day

	ctx = logctx.WithStr(ctx, "day", day.String())
	res.Stats, err = s.part.WriteDay(ctx, s.online, s.offline, day)
	if err != nil {
		return res, err
	}
	metrics.DayStaged(day.Time())
	return res, nil
}

// Run stages days until ctx is cancelled. Preparation errors are returned;
// iteration errors are logged and retried after the poll interval.
func (s *Stager) Run(ctx context.Context) error {
	ctx = logctx.WithComponent(ctx, "stager")
	if err := s.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare stager: %w", err)
	}

	return runLoop(ctx, metrics.LoopStage, s.cfg.PollInterval, func(ctx context.Context) error {
		res, err := s.RunOnce(ctx)
		if err != nil {
			return err
		}
		if res.Done {
			if s.cfg.ExitWhenDone {
				return errDone
			}
			log := logctx.FromContext(ctx)
			log.Info().Str("last_day", s.last.String()).Msg("all days staged, waiting")
		}
		return nil
	})
}
