// Package config loads the salesetl settings. Values are layered: built-in
// defaults, an optional YAML file, a .env file, then environment variables.
// Command-line flags are applied last by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid indicates a configuration value that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// StorageConfig locates the object store and its buckets.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`

	RawBucket         string `yaml:"raw_bucket"`
	UnprocessedBucket string `yaml:"unprocessed_bucket"`
	ProcessedBucket   string `yaml:"processed_bucket"`

	OnlineObject  string `yaml:"online_object"`
	OfflineObject string `yaml:"offline_object"`
}

// WarehouseConfig selects the warehouse engine.
type WarehouseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	// DSN is a Postgres connection string, or for sqlite a directory
	// (empty or ":memory:" for an in-memory warehouse).
	DSN      string   `yaml:"dsn"`
	Schemas  []string `yaml:"schemas"`
	MaxConns int32    `yaml:"max_conns"`
}

// StageConfig drives the stage loop.
type StageConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	// EndDate (YYYY-MM-DD) caps staging; empty means the last day present
	// in the raw data.
	EndDate      string `yaml:"end_date"`
	ExitWhenDone bool   `yaml:"exit_when_done"`
	// RawDir holds the two raw CSV files for upload-raw.
	RawDir string `yaml:"raw_dir"`
}

// LoadConfig drives the load loop.
type LoadConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	Concurrency       int           `yaml:"concurrency"`
	OnlineStoreID     int64         `yaml:"online_store_id"`
	InStoreShippingID int64         `yaml:"in_store_shipping_id"`
}

// Config is the full salesetl configuration.
type Config struct {
	Storage     StorageConfig   `yaml:"storage"`
	Warehouse   WarehouseConfig `yaml:"warehouse"`
	Stage       StageConfig     `yaml:"stage"`
	Load        LoadConfig      `yaml:"load"`
	MetricsAddr string          `yaml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Endpoint:          "http://localhost:9000",
			Region:            "us-east-1",
			RawBucket:         "raw-data",
			UnprocessedBucket: "unprocessed-files",
			ProcessedBucket:   "processed-files",
			OnlineObject:      "AF_online_sales_dataset.csv",
			OfflineObject:     "AF_offline_sales_dataset.csv",
		},
		Warehouse: WarehouseConfig{
			Driver:   "postgres",
			Schemas:  []string{"prod", "playground"},
			MaxConns: 4,
		},
		Stage: StageConfig{
			PollInterval: 5 * time.Second,
			RawDir:       "raw_data",
		},
		Load: LoadConfig{
			PollInterval:      5 * time.Second,
			Concurrency:       8,
			OnlineStoreID:     8,
			InStoreShippingID: 5,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), a .env file in the working directory if one exists, and
// the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// Existing environment variables take precedence over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("MINIO_ENDPOINT", &c.Storage.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Storage.AccessKey)
	str("MINIO_SECRET_KEY", &c.Storage.SecretKey)
	str("MINIO_BUCKET_NAME", &c.Storage.RawBucket)
	str("WAREHOUSE_DRIVER", &c.Warehouse.Driver)
	str("WAREHOUSE_DSN", &c.Warehouse.DSN)

	if v, ok := lookup("SALESETL_POLL_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: SALESETL_POLL_INTERVAL=%q: %v", ErrInvalid, v, err)
		}
		c.Stage.PollInterval = d
		c.Load.PollInterval = d
	}
	if v, ok := lookup("SALESETL_SCHEMAS"); ok && v != "" {
		c.Warehouse.Schemas = SplitList(v)
	}
	if v, ok := lookup("SALESETL_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SALESETL_CONCURRENCY=%q", ErrInvalid, v)
		}
		c.Load.Concurrency = n
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EndDay parses Stage.EndDate. ok is false when no end date is set.
func (c Config) EndDay() (t time.Time, ok bool, err error) {
	if c.Stage.EndDate == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(time.DateOnly, c.Stage.EndDate)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: stage.end_date=%q", ErrInvalid, c.Stage.EndDate)
	}
	return t, true, nil
}

// Validate reports the first unusable field.
func (c Config) Validate() error {
	switch {
	case c.Storage.RawBucket == "":
		return fmt.Errorf("%w: storage.raw_bucket is empty", ErrInvalid)
	case c.Storage.UnprocessedBucket == "":
		return fmt.Errorf("%w: storage.unprocessed_bucket is empty", ErrInvalid)
	case c.Storage.ProcessedBucket == "":
		return fmt.Errorf("%w: storage.processed_bucket is empty", ErrInvalid)
	case c.Storage.UnprocessedBucket == c.Storage.ProcessedBucket:
		return fmt.Errorf("%w: unprocessed and processed buckets must differ", ErrInvalid)
	case c.Storage.OnlineObject == "" || c.Storage.OfflineObject == "":
		return fmt.Errorf("%w: raw object names must be set", ErrInvalid)
	case c.Warehouse.Driver != "postgres" && c.Warehouse.Driver != "sqlite":
		return fmt.Errorf("%w: warehouse.driver %q (want postgres or sqlite)", ErrInvalid, c.Warehouse.Driver)
	case len(c.Warehouse.Schemas) == 0:
		return fmt.Errorf("%w: warehouse.schemas is empty", ErrInvalid)
	case c.Stage.PollInterval <= 0:
		return fmt.Errorf("%w: stage.poll_interval must be positive", ErrInvalid)
	case c.Load.PollInterval <= 0:
		return fmt.Errorf("%w: load.poll_interval must be positive", ErrInvalid)
	case c.Load.Concurrency <= 0:
		return fmt.Errorf("%w: load.concurrency must be positive", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Warehouse.Schemas))
	for _, s := range c.Warehouse.Schemas {
		if seen[s] {
			return fmt.Errorf("%w: schema %q listed twice", ErrInvalid, s)
		}
		seen[s] = true
	}
	if _, _, err := c.EndDay(); err != nil {
		return err
	}
	return nil
}
