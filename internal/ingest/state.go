package ingest

import (
	"time"

	"github.com/google/uuid"
	"github.com/leighmacdonald/tf-logs/internal/store"
	"github.com/leighmacdonald/tf-logs/internal/table"
)

// State is everything a pull accumulates. It is owned by a single Ingester.Run call at a time.
type State struct {
	RunID uuid.UUID
	// MatchCount counts every match that was fetched, whether its rows were kept or not.
	MatchCount int
	// MapIndex and Offset locate the next log to ingest.
	MapIndex int
	Offset   int
	Table    *table.Table

	// saved is the number of table rows already handed to the progress store.
	saved          int
	createdOn      time.Time
	checkpointPath string
}

func NewState() *State {
	return &State{
		RunID:     uuid.New(),
		Table:     table.New(),
		createdOn: time.Now(),
	}
}

// RestoreState rebuilds the state of a stored run from its last checkpoint.
func RestoreState(progress store.Progress, rows []*table.Row) *State {
	state := &State{
		RunID:          progress.RunID,
		MatchCount:     progress.MatchCount,
		MapIndex:       progress.MapIndex,
		Offset:         progress.Offset,
		Table:          table.New(),
		createdOn:      progress.CreatedOn,
		checkpointPath: progress.CheckpointPath,
	}

	state.Table.Append(rows...)
	state.saved = state.Table.Len()

	return state
}

func (s *State) progress(maps []string) store.Progress {
	return store.Progress{
		RunID:          s.RunID,
		Maps:           maps,
		MapIndex:       s.MapIndex,
		Offset:         s.Offset,
		MatchCount:     s.MatchCount,
		RowCount:       s.Table.Len(),
		CheckpointPath: s.checkpointPath,
		CreatedOn:      s.createdOn,
	}
}

// unsaved returns the rows added since the last stored checkpoint.
func (s *State) unsaved() []*table.Row {
	return s.Table.Rows()[s.saved:]
}
