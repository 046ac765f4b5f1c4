package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/leighmacdonald/tf-logs/internal/cache"
	"github.com/leighmacdonald/tf-logs/internal/config"
	"github.com/leighmacdonald/tf-logs/internal/flatten"
	"github.com/leighmacdonald/tf-logs/internal/ingest"
	"github.com/leighmacdonald/tf-logs/internal/logstf"
	"github.com/leighmacdonald/tf-logs/internal/metrics"
	"github.com/leighmacdonald/tf-logs/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// loadConfig reads the user config and sets up the global logger. The returned closer must be
// closed once the command completes.
func loadConfig() (config.Config, io.Closer, error) {
	// Make sure our config & data home exists.
	if err := os.MkdirAll(path.Join(xdg.ConfigHome, config.ConfigDirName), 0o750); err != nil {
		return config.Config{}, nil, errors.Join(err, errApp)
	}

	userConfig, errConfig := config.NewLoader(cfgFile).Read()
	if errConfig != nil {
		return config.Config{}, nil, errors.Join(errConfig, errApp)
	}

	level, errLevel := config.ParseLevel(userConfig.LogLevel)
	if errLevel != nil {
		return config.Config{}, nil, errors.Join(errLevel, errApp)
	}

	logFile, errLogger := config.LoggerInit(userConfig.LogFile, level)
	if errLogger != nil {
		return config.Config{}, nil, errors.Join(errLogger, errApp)
	}

	return userConfig, logFile, nil
}

func closeLog(closer io.Closer) {
	if err := closer.Close(); err != nil {
		slog.Error("Failed to close log file", slog.String("error", err.Error()))
	}
}

// pull is the main entry point of tf-logs.
func pull(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userConfig, logFile, errConfig := loadConfig()
	if errConfig != nil {
		return errConfig
	}

	defer closeLog(logFile)

	slog.Info("Starting tf-logs", slog.String("version", BuildVersion),
		slog.String("commit", BuildCommit), slog.String("date", BuildDate),
		slog.String("go", BuildGoVersion))

	players, errPlayers := logstf.ParsePlayers(userConfig.Player)
	if errPlayers != nil {
		return errors.Join(errPlayers, errApp)
	}

	// Setup the filesystem cache, creating any necessary directories.
	var detailCache cache.Cache
	if userConfig.CacheEnabled {
		fsCache, errCache := cache.New(config.PathCache(config.CacheDirName))
		if errCache != nil {
			return errors.Join(errCache, errApp)
		}

		detailCache = fsCache
	}

	client, errClient := logstf.New(userConfig.BaseURL, logstf.NewHTTPClient(userConfig.HTTPTimeout), detailCache)
	if errClient != nil {
		return errors.Join(errClient, errApp)
	}

	// Setup the sqlite database system.
	database, errDB := store.Open(ctx, userConfig.DatabasePath, true)
	if errDB != nil {
		return errors.Join(errDB, errApp)
	}

	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("Error closing database", slog.String("error", err.Error()))
		}
	}()

	runs := store.NewRuns(database)

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	state, errState := initialState(ctx, runs, userConfig.Maps)
	if errState != nil {
		return errors.Join(errState, errApp)
	}

	ingester, errIngester := ingest.New(client, runs, collector, flatten.New(userConfig.SteamIDFormat), ingest.Options{
		Maps: userConfig.Maps,
		Query: logstf.LogsQuery{
			Title:    userConfig.Title,
			Uploader: userConfig.Uploader,
			Players:  players,
			Limit:    userConfig.Limit,
		},
		Pages:              userConfig.Pages,
		CheckpointInterval: userConfig.CheckpointInterval,
		PlayersRequired:    userConfig.PlayersRequired,
		OutputDir:          userConfig.OutputDir,
	})
	if errIngester != nil {
		return errors.Join(errIngester, errApp)
	}

	run := func(ctx context.Context) error { return ingester.Run(ctx, state) }
	if err := runWithMetrics(ctx, run, userConfig.MetricsAddress, registry); err != nil {
		return errors.Join(err, errApp)
	}

	return nil
}

// runWithMetrics executes run while serving the gatherer on metricsAddress. The server is
// stopped once run returns. A failing server cancels run. An empty address disables the server.
func runWithMetrics(ctx context.Context, run func(context.Context) error, metricsAddress string,
	gatherer prometheus.Gatherer,
) error {
	tasks, tasksCtx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(tasksCtx)
	defer stopServer()

	if metricsAddress != "" {
		tasks.Go(func() error {
			return metrics.Serve(serverCtx, metricsAddress, gatherer)
		})
	}

	tasks.Go(func() error {
		defer stopServer()

		return run(tasksCtx)
	})

	return tasks.Wait()
}

// initialState starts a new run, or with --resume, picks up the most recent unfinished one.
func initialState(ctx context.Context, runs *store.Runs, maps []string) (*ingest.State, error) {
	if !resume {
		return ingest.NewState(), nil
	}

	progress, errLatest := runs.Latest(ctx)
	if errLatest != nil {
		if errors.Is(errLatest, store.ErrNoRuns) {
			slog.Info("No previous run to resume, starting a new one")

			return ingest.NewState(), nil
		}

		return nil, errLatest
	}

	if progress.MapIndex >= len(progress.Maps) {
		slog.Info("Previous run already completed, starting a new one", slog.String("run_id", progress.RunID.String()))

		return ingest.NewState(), nil
	}

	if !slices.Equal(progress.Maps, maps) {
		return nil, fmt.Errorf("cannot resume run %s: configured maps changed", progress.RunID)
	}

	rows, errRows := runs.Rows(ctx, progress.RunID)
	if errRows != nil {
		return nil, errRows
	}

	slog.Info("Resuming run", slog.String("run_id", progress.RunID.String()),
		slog.Int("map_index", progress.MapIndex), slog.Int("offset", progress.Offset),
		slog.Int("matches", progress.MatchCount), slog.Int("rows", len(rows)))

	return ingest.RestoreState(progress, rows), nil
}
