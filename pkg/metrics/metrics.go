// Package metrics holds the Prometheus collectors for the stage and load
// loops. Collectors are registered on the default registry at init; when no
// endpoint is served the counters still accumulate and cost nothing else.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Loop names used for the failure counter.
const (
	LoopStage = "stage"
	LoopLoad  = "load"
)

var (
	daysStaged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "salesetl_days_staged_total",
		Help: "Day partitions written to the unprocessed bucket",
	})
	batchesLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "salesetl_batches_loaded_total",
		Help: "Batches of new partitions loaded into the warehouse and marked processed",
	})
	rowsUpserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesetl_rows_upserted_total",
		Help: "Rows written by the upsert writer, by table, schema and outcome",
	}, []string{"table", "schema", "action"})
	rowsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesetl_rows_dropped_total",
		Help: "Rows left out of an upsert because a conflict key column was NULL",
	}, []string{"table", "schema"})
	iterationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesetl_iteration_failures_total",
		Help: "Polling iterations that ended in an error",
	}, []string{"loop"})
	watermark = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "salesetl_watermark_unix_seconds",
		Help: "Midnight of the most recently staged day",
	})
)

func init() {
	prometheus.MustRegister(daysStaged, batchesLoaded, rowsUpserted, rowsDropped, iterationFailures, watermark)
}

// DayStaged records one written day partition.
func DayStaged(day time.Time) {
	daysStaged.Inc()
	watermark.Set(float64(day.Unix()))
}

// BatchLoaded records one fully loaded batch.
func BatchLoaded() { batchesLoaded.Inc() }

// RowsUpserted adds n rows with the given outcome ("inserted" or "updated").
func RowsUpserted(table, schema, action string, n int) {
	if n <= 0 {
		return
	}
	rowsUpserted.WithLabelValues(table, schema, action).Add(float64(n))
}

// RowsDropped adds n rows left out of table in schema.
func RowsDropped(table, schema string, n int) {
	if n <= 0 {
		return
	}
	rowsDropped.WithLabelValues(table, schema).Add(float64(n))
}

// IterationFailed records a failed iteration of loop.
func IterationFailed(loop string) {
	iterationFailures.WithLabelValues(loop).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
