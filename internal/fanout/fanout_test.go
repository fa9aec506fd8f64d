package fanout_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edgard/moderabot/internal/fanout"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRunCountsFailuresAndPanics(t *testing.T) {
	t.Parallel()

	var ran atomic.Int64
	units := []fanout.Unit{
		{Name: "ok", Run: func(context.Context) error { ran.Add(1); return nil }},
		{Name: "fails", Run: func(context.Context) error { ran.Add(1); return errors.New("boom") }},
		{Name: "panics", Run: func(context.Context) error { ran.Add(1); panic("bad state") }},
		{Name: "cancelled", Run: func(context.Context) error { ran.Add(1); return fmt.Errorf("stop: %w", context.Canceled) }},
		{Name: "also ok", Run: func(context.Context) error { ran.Add(1); return nil }},
	}

	failed := fanout.Run(context.Background(), discard, 2, units)

	assert.Equal(t, 2, failed)
	assert.Equal(t, int64(5), ran.Load())
}

func TestRunRespectsLimit(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		limit int
		want  int64
	}{
		{name: "serial", limit: 1, want: 1},
		{name: "zero means one", limit: 0, want: 1},
		{name: "three", limit: 3, want: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var running, peak atomic.Int64
			units := make([]fanout.Unit, 8)
			for i := range units {
				units[i] = fanout.Unit{Name: fmt.Sprint(i), Run: func(context.Context) error {
					n := running.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(20 * time.Millisecond)
					running.Add(-1)
					return nil
				}}
			}

			assert.Zero(t, fanout.Run(context.Background(), discard, tc.limit, units))
			assert.LessOrEqual(t, peak.Load(), tc.want)
		})
	}
}

func TestRunSkipsUnitsAfterCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int64
	units := []fanout.Unit{
		{Name: "a", Run: func(context.Context) error { ran.Add(1); return nil }},
		{Name: "b", Run: func(context.Context) error { ran.Add(1); return nil }},
	}

	assert.Zero(t, fanout.Run(ctx, discard, 2, units))
	assert.Zero(t, ran.Load())
}
