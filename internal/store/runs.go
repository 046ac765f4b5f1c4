package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leighmacdonald/tf-logs/internal/table"
)

var (
	ErrNoRuns = errors.New("no runs recorded")
	ErrQuery  = errors.New("failed to query runs")
	ErrSave   = errors.New("failed to save checkpoint")
)

// Progress is the resumable position of a pull at its most recent checkpoint.
type Progress struct {
	RunID uuid.UUID
	Maps  []string
	// MapIndex is the index into Maps currently being listed.
	MapIndex int
	// Offset is the absolute search offset of the next log to ingest for the current map.
	Offset         int
	MatchCount     int
	RowCount       int
	CheckpointPath string
	CreatedOn      time.Time
	UpdatedOn      time.Time
}

type Runs struct {
	db *sql.DB
}

func NewRuns(db *sql.DB) *Runs {
	return &Runs{db: db}
}

// SaveCheckpoint records the progress and appends the rows gathered since the previous
// checkpoint. Rows are numbered from progress.RowCount-len(rows) so the stored sequence matches
// the table order.
func (r *Runs) SaveCheckpoint(ctx context.Context, progress Progress, rows []*table.Row) error {
	now := time.Now()
	if progress.CreatedOn.IsZero() {
		progress.CreatedOn = now
	}

	txn, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return errors.Join(errTx, ErrSave)
	}

	defer func() { _ = txn.Rollback() }()

	const upsert = `
		INSERT INTO run (run_id, maps, map_index, log_offset, match_count, row_count, checkpoint_path, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			map_index = excluded.map_index,
			log_offset = excluded.log_offset,
			match_count = excluded.match_count,
			row_count = excluded.row_count,
			checkpoint_path = excluded.checkpoint_path,
			updated_on = excluded.updated_on`

	if _, err := txn.ExecContext(ctx, upsert, progress.RunID.String(), strings.Join(progress.Maps, ","),
		progress.MapIndex, progress.Offset, progress.MatchCount, progress.RowCount, progress.CheckpointPath,
		progress.CreatedOn.UnixMilli(), now.UnixMilli()); err != nil {
		return errors.Join(err, ErrSave)
	}

	if len(rows) > 0 {
		stmt, errStmt := txn.PrepareContext(ctx, `INSERT OR REPLACE INTO run_row (run_id, seq, data) VALUES (?, ?, ?)`)
		if errStmt != nil {
			return errors.Join(errStmt, ErrSave)
		}

		defer func() { _ = stmt.Close() }()

		first := progress.RowCount - len(rows)
		for idx, row := range rows {
			data, errJSON := json.Marshal(row)
			if errJSON != nil {
				return errors.Join(errJSON, ErrSave)
			}

			if _, err := stmt.ExecContext(ctx, progress.RunID.String(), first+idx, string(data)); err != nil {
				return errors.Join(err, ErrSave)
			}
		}
	}

	if err := txn.Commit(); err != nil {
		return errors.Join(err, ErrSave)
	}

	return nil
}

const selectRun = `
	SELECT run_id, maps, map_index, log_offset, match_count, row_count, checkpoint_path, created_on, updated_on
	FROM run`

// Latest returns the most recently updated run.
func (r *Runs) Latest(ctx context.Context) (Progress, error) {
	runs, err := r.List(ctx, 1)
	if err != nil {
		return Progress{}, err
	}

	if len(runs) == 0 {
		return Progress{}, ErrNoRuns
	}

	return runs[0], nil
}

// Get returns a single run by id.
func (r *Runs) Get(ctx context.Context, runID uuid.UUID) (Progress, error) {
	progress, err := scanProgress(r.db.QueryRowContext(ctx, selectRun+` WHERE run_id = ?`, runID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Progress{}, ErrNoRuns
		}

		return Progress{}, errors.Join(err, ErrQuery)
	}

	return progress, nil
}

// List returns up to limit runs, newest first.
func (r *Runs) List(ctx context.Context, limit int) ([]Progress, error) {
	rows, errRows := r.db.QueryContext(ctx, selectRun+` ORDER BY updated_on DESC, rowid DESC LIMIT ?`, limit)
	if errRows != nil {
		return nil, errors.Join(errRows, ErrQuery)
	}

	defer func() { _ = rows.Close() }()

	var runs []Progress

	for rows.Next() {
		progress, errScan := scanProgress(rows)
		if errScan != nil {
			return nil, errors.Join(errScan, ErrQuery)
		}

		runs = append(runs, progress)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(err, ErrQuery)
	}

	return runs, nil
}

// Rows loads every checkpointed row of a run in table order.
func (r *Runs) Rows(ctx context.Context, runID uuid.UUID) ([]*table.Row, error) {
	rows, errRows := r.db.QueryContext(ctx, `SELECT data FROM run_row WHERE run_id = ? ORDER BY seq`, runID.String())
	if errRows != nil {
		return nil, errors.Join(errRows, ErrQuery)
	}

	defer func() { _ = rows.Close() }()

	var results []*table.Row

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Join(err, ErrQuery)
		}

		row := table.NewRow()
		if err := json.Unmarshal([]byte(data), row); err != nil {
			return nil, errors.Join(err, ErrQuery)
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(err, ErrQuery)
	}

	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgress(row scanner) (Progress, error) {
	var (
		progress  Progress
		runID     string
		maps      string
		createdOn int64
		updatedOn int64
	)

	if err := row.Scan(&runID, &maps, &progress.MapIndex, &progress.Offset, &progress.MatchCount,
		&progress.RowCount, &progress.CheckpointPath, &createdOn, &updatedOn); err != nil {
		return Progress{}, err
	}

	parsed, errID := uuid.Parse(runID)
	if errID != nil {
		return Progress{}, errID
	}

	progress.RunID = parsed
	if maps != "" {
		progress.Maps = strings.Split(maps, ",")
	}

	progress.CreatedOn = time.UnixMilli(createdOn)
	progress.UpdatedOn = time.UnixMilli(updatedOn)

	return progress, nil
}
