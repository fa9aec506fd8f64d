// Package fanout runs independent units of work with bounded parallelism.
// A failing or panicking unit is logged and never affects its siblings.
package fanout

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// Unit is one named piece of work.
type Unit struct {
	Name string
	Run  func(ctx context.Context) error
}

// Run executes units with at most limit running at once and waits for all of
// them. Units not yet started when ctx is cancelled are skipped. It returns the
// number of units that failed or panicked.
func Run(ctx context.Context, log *slog.Logger, limit int, units []Unit) int {
	if limit < 1 {
		limit = 1
	}

	var failures atomic.Int64
	p := pool.New().WithMaxGoroutines(limit)

	for _, u := range units {
		p.Go(func() {
			if ctx.Err() != nil {
				log.DebugContext(ctx, "Skipping unit after cancellation", "unit", u.Name)
				return
			}

			var err error
			var catcher panics.Catcher
			catcher.Try(func() { err = u.Run(ctx) })
			if recovered := catcher.Recovered(); recovered != nil {
				log.ErrorContext(ctx, "Unit panicked", "unit", u.Name, "panic", recovered.Value, "stack", string(recovered.Stack))
				failures.Add(1)
				return
			}

			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				log.InfoContext(ctx, "Unit cancelled", "unit", u.Name)
			default:
				log.ErrorContext(ctx, "Unit failed", "unit", u.Name, "error", err)
				failures.Add(1)
			}
		})
	}

	p.Wait()
	return int(failures.Load())
}
