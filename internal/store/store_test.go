package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leighmacdonald/tf-logs/internal/store"
	"github.com/leighmacdonald/tf-logs/internal/table"
	"github.com/stretchr/testify/require"
)

func newRuns(t *testing.T) *store.Runs {
	t.Helper()

	database, err := store.Open(t.Context(), filepath.Join(t.TempDir(), "test.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	return store.NewRuns(database)
}

func row(pairs ...any) *table.Row {
	r := table.NewRow()
	for i := 0; i < len(pairs); i += 2 {
		r.Set(pairs[i].(string), pairs[i+1]) //nolint:forcetypeassert
	}

	return r
}

func TestOpenMemory(t *testing.T) {
	database, err := store.Open(t.Context(), "", true)
	require.NoError(t, err)
	defer func() { _ = database.Close() }()

	_, errLatest := store.NewRuns(database).Latest(t.Context())
	require.ErrorIs(t, errLatest, store.ErrNoRuns)
}

func TestMigrateActions(t *testing.T) {
	database, err := store.Open(t.Context(), filepath.Join(t.TempDir(), "migrate.db"), true)
	require.NoError(t, err)
	defer func() { _ = database.Close() }()

	runs := store.NewRuns(database)

	for _, action := range []store.MigrationAction{
		store.MigrateDn, store.MigrateUpOne, store.MigrateDownOne, store.MigrateUp, store.MigrateUp,
	} {
		require.NoError(t, store.Migrate(database, action), "action %d", action)
	}

	_, errLatest := runs.Latest(t.Context())
	require.ErrorIs(t, errLatest, store.ErrNoRuns)

	// Stepping back one revision drops the schema entirely.
	require.NoError(t, store.Migrate(database, store.MigrateDownOne))

	_, errNoSchema := runs.Latest(t.Context())
	require.ErrorIs(t, errNoSchema, store.ErrQuery)

	require.NoError(t, store.Migrate(database, store.MigrateUpOne))
	require.NoError(t, runs.SaveCheckpoint(t.Context(), store.Progress{RunID: uuid.New(), Maps: []string{"a"}}, nil))
}

func TestSaveCheckpoint(t *testing.T) {
	runs := newRuns(t)
	runID := uuid.New()

	progress := store.Progress{
		RunID:          runID,
		Maps:           []string{"pl_upward", "koth_product_final"},
		Offset:         2,
		MatchCount:     2,
		RowCount:       2,
		CheckpointPath: "tf2_match_data/tf2_stats_2_matches.csv",
	}

	require.NoError(t, runs.SaveCheckpoint(t.Context(), progress, []*table.Row{
		row("kills", 10, "steam_id", "[U:1:1]"),
		row("kills", 4, "heal", 9001, "weapon_accuracy", nil),
	}))

	progress.MapIndex = 1
	progress.Offset = 0
	progress.MatchCount = 3
	progress.RowCount = 3
	require.NoError(t, runs.SaveCheckpoint(t.Context(), progress, []*table.Row{row("kills", 7, "weapon_accuracy", 37.5)}))

	latest, errLatest := runs.Latest(t.Context())
	require.NoError(t, errLatest)
	require.Equal(t, runID, latest.RunID)
	require.Equal(t, []string{"pl_upward", "koth_product_final"}, latest.Maps)
	require.Equal(t, 1, latest.MapIndex)
	require.Equal(t, 0, latest.Offset)
	require.Equal(t, 3, latest.MatchCount)
	require.Equal(t, 3, latest.RowCount)
	require.WithinDuration(t, time.Now(), latest.UpdatedOn, time.Minute)
	require.False(t, latest.UpdatedOn.Before(latest.CreatedOn))

	rows, errRows := runs.Rows(t.Context(), runID)
	require.NoError(t, errRows)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"kills", "steam_id"}, rows[0].Keys())
	require.Equal(t, "[U:1:1]", rows[0].String("steam_id"))
	require.Equal(t, []string{"kills", "heal", "weapon_accuracy"}, rows[1].Keys())
	require.Empty(t, rows[1].String("weapon_accuracy"))
	require.Equal(t, "37.5", rows[2].String("weapon_accuracy"))
}

func TestListAndGet(t *testing.T) {
	runs := newRuns(t)

	first, second := uuid.New(), uuid.New()
	require.NoError(t, runs.SaveCheckpoint(t.Context(), store.Progress{RunID: first, Maps: []string{"a"}}, nil))
	require.NoError(t, runs.SaveCheckpoint(t.Context(), store.Progress{RunID: second, Maps: []string{"b"}, MatchCount: 5}, nil))

	listed, err := runs.List(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, second, listed[0].RunID)

	got, errGet := runs.Get(t.Context(), first)
	require.NoError(t, errGet)
	require.Equal(t, []string{"a"}, got.Maps)

	_, errMissing := runs.Get(t.Context(), uuid.New())
	require.ErrorIs(t, errMissing, store.ErrNoRuns)

	rows, errRows := runs.Rows(t.Context(), first)
	require.NoError(t, errRows)
	require.Empty(t, rows)
}
