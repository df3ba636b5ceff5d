// Package pipeline runs the two long-lived loops: the stager, which cuts the
// raw feeds into day partitions, and the loader, which upserts newly staged
// partitions into the warehouse. It also hosts the one-shot maintenance
// operations the CLI exposes.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/eunmann/salesetl/internal/logctx"
	"github.com/eunmann/salesetl/pkg/metrics"
)

// errDone ends a loop cleanly.
var errDone = errors.New("loop done")

// runLoop calls step until ctx is cancelled or step returns errDone,
// sleeping interval after each completed step. A step error is logged and
// counted; the next iteration runs after the usual sleep.
func runLoop(ctx context.Context, loop string, interval time.Duration, step func(ctx context.Context) error) error {
	for iteration := 1; ; iteration++ {
		ictx := logctx.WithInt(ctx, "iteration", iteration)
		log := logctx.FromContext(ictx)
		start := time.Now()
		log.Debug().Msg("iteration started")

		err := step(ictx)
		switch {
		case errors.Is(err, errDone):
			log.Info().Dur("elapsed", time.Since(start)).Msg("nothing left to do, exiting")
			return nil
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			metrics.IterationFailed(loop)
			log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("iteration failed")
		default:
			log.Debug().Dur("elapsed", time.Since(start)).Msg("iteration finished")
		}

		log.Debug().Dur("sleep", interval).Msg("sleeping")
		if !sleep(ctx, interval) {
			return nil
		}
	}
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
