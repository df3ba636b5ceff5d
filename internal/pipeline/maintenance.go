package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/eunmann/salesetl/internal/logctx"
	"github.com/eunmann/salesetl/pkg/objstore"
	"github.com/eunmann/salesetl/pkg/warehouse"
)

// UploadRaw copies the two raw feed files from dir into the raw bucket. It
// does nothing when both objects are already present.
func UploadRaw(ctx context.Context, store objstore.Store, bucket, dir string, objects ...string) error {
	log := logctx.FromContext(ctx)
	if err := objstore.EnsureBucket(ctx, store, bucket); err != nil {
		return err
	}

	present := 0
	for _, name := range objects {
		ok, err := objstore.ObjectExists(ctx, store, bucket, name)
		if err != nil {
			return err
		}
		if ok {
			present++
		}
	}
	if present == len(objects) {
		log.Info().Str("bucket", bucket).Msg("raw files already uploaded")
		return nil
	}

	for _, name := range objects {
		path := filepath.Join(dir, name)
		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read raw file: %w", err)
		}
		if err := store.PutObject(ctx, bucket, name, body); err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}
		log.Info().Str("bucket", bucket).Str("key", name).Int("bytes", len(body)).Msg("uploaded raw file")
	}
	return nil
}

// Provision creates the buckets and applies the warehouse DDL to every
// schema.
func Provision(ctx context.Context, store objstore.Store, wh warehouse.Store, buckets, schemas []string) error {
	for _, b := range buckets {
		if err := objstore.EnsureBucket(ctx, store, b); err != nil {
			return err
		}
	}
	for _, s := range schemas {
		if err := warehouse.ApplySchema(ctx, wh, s); err != nil {
			return err
		}
	}
	return nil
}

// SeedDimensions loads <dir>/<table>.csv into each empty dimension table of
// every schema. Missing files are skipped. Customers are never seeded; the
// loader derives them from the sales feeds.
func SeedDimensions(ctx context.Context, wh warehouse.Store, schemas []string, dir string) error {
	log := logctx.FromContext(ctx)
	for _, table := range warehouse.DimensionTables {
		if table == warehouse.TableCustomers {
			continue
		}
		path := filepath.Join(dir, table+".csv")
		header, rows, err := readSeed(path)
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("file", path).Msg("no seed file")
			continue
		}
		if err != nil {
			return err
		}
		for _, schema := range schemas {
			if _, err := warehouse.Seed(ctx, wh, schema, table, header, rows); err != nil {
				return err
			}
		}
	}
	return nil
}

func readSeed(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("read seed %s: missing header", path)
	}
	return records[0], records[1:], nil
}

// CleanObjects deletes every object in the given buckets. Missing buckets
// are skipped.
func CleanObjects(ctx context.Context, store objstore.Store, buckets ...string) error {
	log := logctx.FromContext(ctx)
	for _, b := range buckets {
		keys, err := store.ListKeys(ctx, b, "")
		if objstore.IsNotFound(err) {
			log.Warn().Str("bucket", b).Msg("bucket does not exist")
			continue
		}
		if err != nil {
			return fmt.Errorf("list %s: %w", b, err)
		}
		for _, k := range keys {
			if err := store.DeleteObject(ctx, b, k); err != nil {
				return fmt.Errorf("delete %s/%s: %w", b, k, err)
			}
		}
		log.Info().Str("bucket", b).Int("objects", len(keys)).Msg("bucket emptied")
	}
	return nil
}

// CleanTables truncates tables in every schema.
func CleanTables(ctx context.Context, wh warehouse.Store, schemas []string, tables ...string) error {
	for _, s := range schemas {
		if err := warehouse.Truncate(ctx, wh, s, tables...); err != nil {
			return err
		}
	}
	return nil
}
