// Package cli implements the command-line interface for salesetl.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/eunmann/salesetl/internal/config"
	"github.com/eunmann/salesetl/internal/logctx"
	"github.com/eunmann/salesetl/internal/pipeline"
	"github.com/eunmann/salesetl/pkg/logging"
	"github.com/eunmann/salesetl/pkg/metrics"
	"github.com/eunmann/salesetl/pkg/objstore"
	"github.com/eunmann/salesetl/pkg/warehouse"
)

const usage = `usage: salesetl <command> [options]
commands:
  stage       cut the raw feeds into daily partitions
  load        upsert newly staged partitions into the warehouse
  provision   create buckets and warehouse tables
  upload-raw  upload the raw feed files to the raw bucket
  seed        load dimension seed CSVs into empty tables
  clean       delete staged objects and/or truncate warehouse tables`

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	return RunContext(context.Background(), args)
}

// RunContext is Run with a caller-supplied context; cancelling it stops the
// polling loops at their next sleep or blocking call.
func RunContext(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "stage":
		return runStage(ctx, args[1:])
	case "load":
		return runLoad(ctx, args[1:])
	case "provision":
		return runProvision(ctx, args[1:])
	case "upload-raw":
		return runUploadRaw(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	case "clean":
		return runClean(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprintln(os.Stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// common holds the flags every command accepts.
type common struct {
	configPath  *string
	debug       *bool
	human       *bool
	metricsAddr *string
	schemas     *string
}

func commonFlags(fs *flag.FlagSet) *common {
	return &common{
		configPath:  fs.String("config", "", "path to a YAML config file"),
		debug:       fs.Bool("debug", false, "enable debug logging"),
		human:       fs.Bool("human", false, "human-readable console logs instead of JSON"),
		metricsAddr: fs.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9102)"),
		schemas:     fs.String("schemas", "", "comma-separated warehouse schemas (overrides config)"),
	}
}

// setup loads configuration, applies flag overrides and configures logging.
func (c *common) setup(ctx context.Context, component string) (context.Context, config.Config, error) {
	cfg, err := config.Load(*c.configPath)
	if err != nil {
		return ctx, cfg, err
	}
	if *c.metricsAddr != "" {
		cfg.MetricsAddr = *c.metricsAddr
	}
	if *c.schemas != "" {
		cfg.Warehouse.Schemas = config.SplitList(*c.schemas)
	}
	if err := cfg.Validate(); err != nil {
		return ctx, cfg, err
	}

	logging.Init(*c.debug, *c.human)
	ctx = logctx.WithComponent(ctx, component)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log := logctx.FromContext(ctx)
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics endpoint failed")
			}
		}()
	}
	return ctx, cfg, nil
}

func openObjectStore(ctx context.Context, cfg config.Config) (*objstore.S3, error) {
	return objstore.NewS3(ctx, objstore.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Region:    cfg.Storage.Region,
	})
}

func openWarehouse(ctx context.Context, cfg config.Config) (warehouse.Store, error) {
	switch cfg.Warehouse.Driver {
	case string(warehouse.DialectPostgres):
		if cfg.Warehouse.DSN == "" {
			return nil, errors.New("warehouse DSN is required (WAREHOUSE_DSN)")
		}
		return warehouse.OpenPostgres(ctx, cfg.Warehouse.DSN, cfg.Warehouse.MaxConns)
	case string(warehouse.DialectSQLite):
		dir := cfg.Warehouse.DSN
		if dir != "" && dir != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create warehouse directory: %w", err)
			}
		}
		return warehouse.OpenSQLite(ctx, dir, cfg.Warehouse.Schemas)
	default:
		return nil, fmt.Errorf("unknown warehouse driver %q", cfg.Warehouse.Driver)
	}
}

func runStage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stage", flag.ContinueOnError)
	c := commonFlags(fs)
	once := fs.Bool("once", false, "stage a single day and exit")
	exitWhenDone := fs.Bool("exit-when-done", false, "exit once every day has been staged")
	endDate := fs.String("end-date", "", "last day to stage (YYYY-MM-DD); default is the last day in the data")
	interval := fs.Duration("interval", 0, "poll interval (overrides config)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *endDate != "" {
		if _, err := time.Parse(time.DateOnly, *endDate); err != nil {
			return fmt.Errorf("--end-date must be YYYY-MM-DD: %w", err)
		}
	}

	ctx, cfg, err := c.setup(ctx, "stager")
	if err != nil {
		return err
	}
	if *endDate != "" {
		cfg.Stage.EndDate = *endDate
	}
	if *exitWhenDone {
		cfg.Stage.ExitWhenDone = true
	}
	if *interval > 0 {
		cfg.Stage.PollInterval = *interval
	}
	end, _, err := cfg.EndDay()
	if err != nil {
		return err
	}

	store, err := openObjectStore(ctx, cfg)
	if err != nil {
		return err
	}
	stager := pipeline.NewStager(store, pipeline.StagerConfig{
		RawBucket:         cfg.Storage.RawBucket,
		UnprocessedBucket: cfg.Storage.UnprocessedBucket,
		OnlineObject:      cfg.Storage.OnlineObject,
		OfflineObject:     cfg.Storage.OfflineObject,
		PollInterval:      cfg.Stage.PollInterval,
		End:               end,
		ExitWhenDone:      cfg.Stage.ExitWhenDone,
	})

	if *once {
		res, err := stager.RunOnce(ctx)
		if err != nil {
			return err
		}
		if res.Done {
			fmt.Fprintln(os.Stdout, "all days staged")
		} else {
			fmt.Fprintf(os.Stdout, "staged %s (%d online, %d offline rows)\n",
				res.Day, res.Stats.OnlineRows, res.Stats.OfflineRows)
		}
		return nil
	}
	return stager.Run(ctx)
}

func runLoad(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	c := commonFlags(fs)
	once := fs.Bool("once", false, "load one batch and exit")
	concurrency := fs.Int("concurrency", 0, "parallel partition downloads (overrides config)")
	interval := fs.Duration("interval", 0, "poll interval (overrides config)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *concurrency < 0 {
		return errors.New("--concurrency must not be negative")
	}

	ctx, cfg, err := c.setup(ctx, "loader")
	if err != nil {
		return err
	}
	if *concurrency > 0 {
		cfg.Load.Concurrency = *concurrency
	}
	if *interval > 0 {
		cfg.Load.PollInterval = *interval
	}

	store, err := openObjectStore(ctx, cfg)
	if err != nil {
		return err
	}
	wh, err := openWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	loader := pipeline.NewLoader(store, wh, pipeline.LoaderConfig{
		UnprocessedBucket: cfg.Storage.UnprocessedBucket,
		ProcessedBucket:   cfg.Storage.ProcessedBucket,
		Schemas:           cfg.Warehouse.Schemas,
		PollInterval:      cfg.Load.PollInterval,
		Concurrency:       cfg.Load.Concurrency,
		OnlineStoreID:     cfg.Load.OnlineStoreID,
		InStoreShippingID: cfg.Load.InStoreShippingID,
	})

	if *once {
		res, err := loader.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "loaded %d new files\n", res.Keys)
		for _, s := range cfg.Warehouse.Schemas {
			if r, ok := res.Sales[s]; ok {
				fmt.Fprintf(os.Stdout, "  %s.sales: %d submitted, %d inserted, %d updated\n", s, r.Submitted, r.Inserted, r.Updated)
			}
		}
		return nil
	}
	return loader.Run(ctx)
}

func runProvision(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	c := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cfg, err := c.setup(ctx, "provision")
	if err != nil {
		return err
	}
	store, err := openObjectStore(ctx, cfg)
	if err != nil {
		return err
	}
	wh, err := openWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	buckets := []string{cfg.Storage.RawBucket, cfg.Storage.UnprocessedBucket, cfg.Storage.ProcessedBucket}
	return pipeline.Provision(ctx, store, wh, buckets, cfg.Warehouse.Schemas)
}

func runUploadRaw(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload-raw", flag.ContinueOnError)
	c := commonFlags(fs)
	dir := fs.String("dir", "", "directory holding the raw CSV files (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cfg, err := c.setup(ctx, "upload-raw")
	if err != nil {
		return err
	}
	if *dir != "" {
		cfg.Stage.RawDir = *dir
	}
	store, err := openObjectStore(ctx, cfg)
	if err != nil {
		return err
	}
	return pipeline.UploadRaw(ctx, store, cfg.Storage.RawBucket, cfg.Stage.RawDir,
		cfg.Storage.OnlineObject, cfg.Storage.OfflineObject)
}

func runSeed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	c := commonFlags(fs)
	dir := fs.String("dir", "", "directory of <table>.csv seed files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		return errors.New("--dir is required")
	}

	ctx, cfg, err := c.setup(ctx, "seed")
	if err != nil {
		return err
	}
	wh, err := openWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()
	return pipeline.SeedDimensions(ctx, wh, cfg.Warehouse.Schemas, *dir)
}

// cleanTables lists the tables clean truncates. Customers are only included
// when asked for, since they accumulate across batches.
func cleanTables(facts, customers, dims bool) []string {
	var tables []string
	if facts {
		tables = append(tables, warehouse.TableSales)
	}
	if dims {
		for _, t := range warehouse.DimensionTables {
			if t == warehouse.TableCustomers {
				continue
			}
			tables = append(tables, t)
		}
	}
	if customers && (facts || dims) {
		tables = append(tables, warehouse.TableCustomers)
	}
	return tables
}

func runClean(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	c := commonFlags(fs)
	objects := fs.Bool("objects", false, "delete every object in the unprocessed and processed buckets")
	facts := fs.Bool("facts", false, "truncate the sales table in every schema")
	customers := fs.Bool("customers", false, "with --facts or --dimensions, also truncate customers")
	dims := fs.Bool("dimensions", false, "truncate every dimension table in every schema")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*objects && !*facts && !*dims {
		return errors.New("nothing to clean: pass --objects, --facts or --dimensions")
	}
	if *customers && !*facts && !*dims {
		return errors.New("--customers requires --facts or --dimensions")
	}

	ctx, cfg, err := c.setup(ctx, "clean")
	if err != nil {
		return err
	}

	if *objects {
		store, err := openObjectStore(ctx, cfg)
		if err != nil {
			return err
		}
		if err := pipeline.CleanObjects(ctx, store, cfg.Storage.UnprocessedBucket, cfg.Storage.ProcessedBucket); err != nil {
			return err
		}
	}

	tables := cleanTables(*facts, *customers, *dims)
	if len(tables) == 0 {
		return nil
	}
	wh, err := openWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()
	log := logctx.FromContext(ctx)
	log.Info().Str("tables", strings.Join(tables, ",")).Msg("truncating tables")
	return pipeline.CleanTables(ctx, wh, cfg.Warehouse.Schemas, tables...)
}
