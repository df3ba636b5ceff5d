package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/salesetl/internal/logctx"
	"github.com/eunmann/salesetl/pkg/dataset"
	"github.com/eunmann/salesetl/pkg/dimension"
	"github.com/eunmann/salesetl/pkg/facts"
	"github.com/eunmann/salesetl/pkg/metrics"
	"github.com/eunmann/salesetl/pkg/objstore"
	"github.com/eunmann/salesetl/pkg/reconcile"
	"github.com/eunmann/salesetl/pkg/warehouse"
	"github.com/eunmann/salesetl/pkg/watermark"
)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	UnprocessedBucket string
	ProcessedBucket   string
	Schemas           []string
	PollInterval      time.Duration
	OnlineStoreID     int64
	InStoreShippingID int64
	// Concurrency bounds parallel partition downloads.
	Concurrency int
}

// LoadResult describes one load iteration.
type LoadResult struct {
	Keys      int
	Customers map[string]warehouse.Result
	Sales     map[string]warehouse.Result
	// Dropped counts sales per schema left out for lacking a customer or
	// timestamp.
	Dropped map[string]int
}

// Loader moves newly staged partitions into the warehouse.
type Loader struct {
	store       objstore.Store
	wh          warehouse.Store
	cfg         LoaderConfig
	rec         *reconcile.Reconciler
	writer      *warehouse.Writer
	transformer *facts.Transformer
}

// NewLoader creates a Loader.
func NewLoader(store objstore.Store, wh warehouse.Store, cfg LoaderConfig) *Loader {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	tr := facts.NewTransformer()
	if cfg.OnlineStoreID != 0 {
		tr.OnlineStoreID = cfg.OnlineStoreID
	}
	if cfg.InStoreShippingID != 0 {
		tr.InStoreShippingID = cfg.InStoreShippingID
	}
	return &Loader{
		store:       store,
		wh:          wh,
		cfg:         cfg,
		rec:         reconcile.New(store, cfg.UnprocessedBucket, cfg.ProcessedBucket),
		writer:      warehouse.NewWriter(),
		transformer: tr,
	}
}

// RunOnce loads every staged partition not yet in the processed bucket.
// Customers are upserted first so the fact rows can resolve their ids. The
// batch is marked processed only after every schema has been written; any
// earlier failure leaves it to be retried whole on the next poll.
func (l *Loader) RunOnce(ctx context.Context) (LoadResult, error) {
	var res LoadResult
	if len(l.cfg.Schemas) == 0 {
		return res, errors.New("no warehouse schemas configured")
	}

	batch, err := l.rec.Poll(ctx)
	if err != nil {
		return res, err
	}
	log := logctx.FromContext(ctx)
	if batch.Empty() {
		log.Info().Msg("no new files")
		return res, nil
	}
	res.Keys = len(batch.Keys)
	ctx = logctx.WithInt(ctx, "batch_size", len(batch.Keys))

	if batch.Loadable() {
		online, offline, err := l.fetch(ctx, batch)
		if err != nil {
			return res, err
		}

		customers := facts.Customers(online, offline)
		res.Customers, err = l.writer.WriteSchemas(ctx, l.wh, facts.CustomersTable, l.cfg.Schemas, facts.CustomerRows(customers))
		if err != nil {
			return res, fmt.Errorf("upsert customers: %w", err)
		}

		res.Sales = make(map[string]warehouse.Result, len(l.cfg.Schemas))
		res.Dropped = make(map[string]int, len(l.cfg.Schemas))
		for _, schema := range l.cfg.Schemas {
			r, dropped, err := l.loadSales(ctx, schema, online, offline)
			if err != nil {
				return res, err
			}
			res.Sales[schema] = r
			res.Dropped[schema] = dropped
		}
	}

	if err := l.rec.MarkProcessed(ctx, batch); err != nil {
		return res, err
	}
	metrics.BatchLoaded()
	return res, nil
}

// loadSales resolves surrogate keys against schema's own dimensions, so ids
// never leak from one schema into another.
func (l *Loader) loadSales(ctx context.Context, schema string, online, offline []facts.Sale) (warehouse.Result, int, error) {
	snap, err := dimension.Load(ctx, l.wh, schema)
	if err != nil {
		return warehouse.Result{}, 0, err
	}
	rows, dropped, err := l.transformer.Transform(online, offline, snap)
	if err != nil {
		return warehouse.Result{}, 0, fmt.Errorf("transform sales for %s: %w", schema, err)
	}
	if dropped > 0 {
		log := logctx.FromContext(ctx)
		log.Warn().
			Str("schema", schema).
			Int("dropped", dropped).
			Msg("sales without customer or timestamp left out")
		metrics.RowsDropped(facts.SalesTable.Name, schema, dropped)
	}
	r, err := l.writer.Write(ctx, l.wh, facts.SalesTable, schema, facts.Rows(rows))
	return r, dropped, err
}

// fetch downloads and decodes every partition of the batch, at most
// Concurrency at a time. Decoded rows keep the batch's key order.
func (l *Loader) fetch(ctx context.Context, b reconcile.Batch) (online, offline []facts.Sale, err error) {
	keys := append(append([]string(nil), b.Online...), b.Offline...)
	bodies := make([][]byte, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)
	for i, key := range keys {
		g.Go(func() error {
			body, err := l.rec.Fetch(gctx, key)
			if err != nil {
				return err
			}
			bodies[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("download partitions: %w", err)
	}

	for i, key := range keys {
		if strings.HasSuffix(key, watermark.OnlineObject) {
			rows, err := dataset.DecodeOnline(bodies[i])
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", key, err)
			}
			online = append(online, facts.FromOnline(rows)...)
			continue
		}
		rows, err := dataset.DecodeOffline(bodies[i])
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", key, err)
		}
		offline = append(offline, facts.FromOffline(rows)...)
	}

	log := logctx.FromContext(ctx)
	log.Info().
		Int("files", len(keys)).
		Int("online_rows", len(online)).
		Int("offline_rows", len(offline)).
		Msg("fetched new partitions")
	return online, offline, nil
}

// Run polls for new partitions until ctx is cancelled.
func (l *Loader) Run(ctx context.Context) error {
	ctx = logctx.WithComponent(ctx, "loader")
	if err := l.rec.EnsureProcessedBucket(ctx); err != nil {
		return fmt.Errorf("prepare loader: %w", err)
	}
	return runLoop(ctx, metrics.LoopLoad, l.cfg.PollInterval, func(ctx context.Context) error {
		_, err := l.RunOnce(ctx)
		return err
	})
}
