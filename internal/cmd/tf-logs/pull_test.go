package main

import (
	"context"
	"errors"
	"testing"

	"github.com/leighmacdonald/tf-logs/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRunWithMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	t.Run("server stops after run", func(t *testing.T) {
		ran := false
		run := func(_ context.Context) error {
			ran = true

			return nil
		}

		require.NoError(t, runWithMetrics(t.Context(), run, "127.0.0.1:0", registry))
		require.True(t, ran)
	})

	t.Run("no server", func(t *testing.T) {
		require.NoError(t, runWithMetrics(t.Context(), func(context.Context) error { return nil }, "", registry))
	})

	t.Run("run error", func(t *testing.T) {
		errRun := errors.New("run failed")
		err := runWithMetrics(t.Context(), func(context.Context) error { return errRun }, "127.0.0.1:0", registry)
		require.ErrorIs(t, err, errRun)
	})

	t.Run("server error cancels run", func(t *testing.T) {
		run := func(ctx context.Context) error {
			<-ctx.Done()

			return ctx.Err()
		}

		err := runWithMetrics(t.Context(), run, "127.0.0.1:-1", registry)
		require.ErrorIs(t, err, metrics.ErrServe)
	})
}
