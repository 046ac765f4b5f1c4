// Package ingest drives a pull: it lists the logs of every configured map, flattens each match
// into player rows and periodically writes the accumulated table to disk.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/leighmacdonald/tf-logs/internal/flatten"
	"github.com/leighmacdonald/tf-logs/internal/logstf"
	"github.com/leighmacdonald/tf-logs/internal/metrics"
	"github.com/leighmacdonald/tf-logs/internal/store"
	"github.com/leighmacdonald/tf-logs/internal/table"
)

var (
	ErrSearch     = errors.New("failed to search logs")
	ErrCheckpoint = errors.New("failed to write checkpoint")
	ErrOptions    = errors.New("invalid ingest options")
)

// LogSource provides log summaries and match documents.
type LogSource interface {
	ListLogs(ctx context.Context, query logstf.LogsQuery, pages int) iter.Seq2[logstf.LogSummary, error]
	Log(ctx context.Context, logID int64) (*logstf.Detail, error)
}

// ProgressStore records resumable progress at every checkpoint.
type ProgressStore interface {
	SaveCheckpoint(ctx context.Context, progress store.Progress, rows []*table.Row) error
}

type Options struct {
	Maps []string
	// Query holds the search filters shared by every map. Map and Offset are set per map.
	Query logstf.LogsQuery
	// Pages bounds the number of search pages per map, 0 for no bound.
	Pages              int
	CheckpointInterval int
	PlayersRequired    int
	OutputDir          string
}

type Ingester struct {
	source    LogSource
	progress  ProgressStore
	metrics   *metrics.Collector
	flattener flatten.Flattener
	opts      Options
}

// New creates an Ingester. The progress store and metrics collector are optional.
func New(source LogSource, progress ProgressStore, collector *metrics.Collector, flattener flatten.Flattener, opts Options) (*Ingester, error) {
	if opts.CheckpointInterval <= 0 {
		return nil, fmt.Errorf("%w: checkpoint interval must be positive", ErrOptions)
	}

	if opts.PlayersRequired <= 0 {
		return nil, fmt.Errorf("%w: required players must be positive", ErrOptions)
	}

	if opts.Pages < 0 {
		return nil, fmt.Errorf("%w: pages must not be negative", ErrOptions)
	}

	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}

	return &Ingester{
		source:    source,
		progress:  progress,
		metrics:   collector,
		flattener: flattener,
		opts:      opts,
	}, nil
}

// CheckpointName is the file name of the checkpoint taken after count matches.
func CheckpointName(count int) string {
	return fmt.Sprintf("tf2_stats_%d_matches.csv", count)
}

// Run ingests every remaining log of every map, starting from the position held by state. The
// table is written whenever the match count reaches a multiple of the checkpoint interval and
// once more when the run ends, including when ctx is cancelled. Search failures end the run
// with an error and without the final checkpoint.
func (i *Ingester) Run(ctx context.Context, state *State) error {
	if err := os.MkdirAll(i.opts.OutputDir, 0o755); err != nil {
		return errors.Join(err, ErrCheckpoint)
	}

	slog.Info("Starting pull", slog.String("run_id", state.RunID.String()),
		slog.Int("maps", len(i.opts.Maps)), slog.Int("map_index", state.MapIndex),
		slog.Int("offset", state.Offset), slog.Int("matches", state.MatchCount))

	i.metrics.SetRows(state.Table.Len())

	for state.MapIndex < len(i.opts.Maps) {
		if err := i.ingestMap(ctx, state); err != nil {
			return err
		}

		if ctx.Err() != nil {
			break
		}

		state.MapIndex++
		state.Offset = 0
	}

	// The final checkpoint must outlive a cancelled ctx.
	if err := i.checkpoint(context.WithoutCancel(ctx), state); err != nil {
		return err
	}

	slog.Info("Pull finished", slog.String("run_id", state.RunID.String()),
		slog.String("matches", humanize.Comma(int64(state.MatchCount))),
		slog.String("rows", humanize.Comma(int64(state.Table.Len()))))

	return nil
}

func (i *Ingester) ingestMap(ctx context.Context, state *State) error {
	mapName := i.opts.Maps[state.MapIndex]

	query := i.opts.Query
	query.Map = mapName
	query.Offset = state.Offset

	if query.Limit == 0 {
		query.Limit = logstf.DefaultLimit
	}

	pages := i.opts.Pages
	end := pages * query.Limit

	if pages > 0 {
		if state.Offset >= end {
			return nil
		}

		// A resumed map only fetches what remains of its original page budget.
		pages = (end - state.Offset + query.Limit - 1) / query.Limit
	}

	slog.Info("Listing logs", slog.String("map", mapName), slog.Int("offset", state.Offset))

	for summary, errList := range i.source.ListLogs(ctx, query, pages) {
		if errList != nil {
			if ctx.Err() != nil {
				return nil
			}

			return errors.Join(fmt.Errorf("%w: %s", ErrSearch, mapName), errList)
		}

		if end > 0 && state.Offset >= end {
			return nil
		}

		if err := i.ingestLog(ctx, state, mapName, summary.ID); err != nil {
			return err
		}

		if ctx.Err() != nil {
			return nil
		}
	}

	return nil
}

func (i *Ingester) ingestLog(ctx context.Context, state *State, mapName string, logID int64) error {
	start := time.Now()
	detail, errDetail := i.source.Log(ctx, logID)
	i.metrics.ObserveFetch(start)

	if errDetail != nil && ctx.Err() != nil {
		// Interrupted; leave the log for a resumed run.
		return nil
	}

	state.Offset++

	if errDetail != nil {
		var decodeErr *logstf.DecodeError
		if !errors.As(errDetail, &decodeErr) {
			slog.Error("Failed to fetch log", slog.Int64("log_id", logID), slog.String("error", errDetail.Error()))
			i.metrics.FetchFailed()

			return nil
		}

		slog.Warn("Failed to decode log", slog.Int64("log_id", logID), slog.String("error", errDetail.Error()))
		i.metrics.DecodeFailed()

		return i.countMatch(ctx, state)
	}

	rows, errFlatten := i.flattener.Flatten(detail, flatten.Match{LogID: logID, Index: state.MatchCount, Map: mapName})

	switch {
	case errFlatten != nil:
		slog.Warn("Failed to decode log", slog.Int64("log_id", logID), slog.String("error", errFlatten.Error()))
		i.metrics.DecodeFailed()
	case len(rows) != i.opts.PlayersRequired:
		slog.Debug("Dropping match", slog.Int64("log_id", logID), slog.Int("players", len(rows)))
		i.metrics.MatchDropped()
	default:
		state.Table.Append(rows...)
		i.metrics.MatchKept(state.Table.Len())
	}

	return i.countMatch(ctx, state)
}

func (i *Ingester) countMatch(ctx context.Context, state *State) error {
	state.MatchCount++
	i.metrics.MatchProcessed()

	if state.MatchCount%i.opts.CheckpointInterval != 0 {
		return nil
	}

	return i.checkpoint(ctx, state)
}

// checkpoint writes the whole table and records progress. An empty table writes no file, and
// neither does a count whose file was already written.
func (i *Ingester) checkpoint(ctx context.Context, state *State) error {
	outPath := filepath.Join(i.opts.OutputDir, CheckpointName(state.MatchCount))

	if state.Table.Len() > 0 && !written(state, outPath) {
		if err := writeTable(outPath, state.Table); err != nil {
			return err
		}

		state.checkpointPath = outPath
		i.metrics.Checkpoint()

		slog.Info("Wrote checkpoint", slog.String("path", outPath),
			slog.String("matches", humanize.Comma(int64(state.MatchCount))),
			slog.String("rows", humanize.Comma(int64(state.Table.Len()))))
	}

	if i.progress == nil {
		return nil
	}

	if err := i.progress.SaveCheckpoint(ctx, state.progress(i.opts.Maps), state.unsaved()); err != nil {
		return errors.Join(err, ErrCheckpoint)
	}

	state.saved = state.Table.Len()

	return nil
}

// written reports whether outPath is the checkpoint last written for this run. The table only
// grows when the match count does, so the file is still current.
func written(state *State, outPath string) bool {
	if state.checkpointPath != outPath {
		return false
	}

	_, err := os.Stat(outPath)

	return err == nil
}

// writeTable replaces outPath atomically.
func writeTable(outPath string, tbl *table.Table) error {
	tmpFile, errCreate := os.CreateTemp(filepath.Dir(outPath), filepath.Base(outPath)+".*.tmp")
	if errCreate != nil {
		return errors.Join(errCreate, ErrCheckpoint)
	}

	tmpPath := tmpFile.Name()

	if err := tbl.WriteCSV(tmpFile); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)

		return errors.Join(err, ErrCheckpoint)
	}

	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)

		return errors.Join(err, ErrCheckpoint)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)

		return errors.Join(err, ErrCheckpoint)
	}

	return nil
}
