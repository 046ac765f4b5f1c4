package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/leighmacdonald/tf-logs/internal/store"
	"github.com/spf13/cobra"
)

const runIDLength = 8

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1) //nolint:gochecknoglobals

func status(cmd *cobra.Command, _ []string) error {
	userConfig, logFile, errConfig := loadConfig()
	if errConfig != nil {
		return errConfig
	}

	defer closeLog(logFile)

	database, errDB := store.Open(cmd.Context(), userConfig.DatabasePath, true)
	if errDB != nil {
		return errors.Join(errDB, errApp)
	}

	defer func() { _ = database.Close() }()

	runs, errRuns := store.NewRuns(database).List(cmd.Context(), statusLimit)
	if errRuns != nil {
		return errors.Join(errRuns, errApp)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs, time.Now()))

	return nil
}

func renderRuns(runs []store.Progress, now time.Time) string {
	if len(runs) == 0 {
		return "No pulls recorded"
	}

	runTable := table.New().
		Border(lipgloss.NormalBorder()).
		BorderColumn(false).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("Run", "Maps", "Matches", "Rows", "Checkpoint", "Updated")

	for _, run := range runs {
		mapsDone := strconv.Itoa(min(run.MapIndex, len(run.Maps))) + "/" + strconv.Itoa(len(run.Maps))

		checkpoint := "-"
		if run.CheckpointPath != "" {
			checkpoint = filepath.Base(run.CheckpointPath)
		}

		runTable.Row(
			run.RunID.String()[:runIDLength],
			mapsDone,
			humanize.Comma(int64(run.MatchCount)),
			humanize.Comma(int64(run.RowCount)),
			checkpoint,
			humanize.RelTime(run.UpdatedOn, now, "ago", "from now"),
		)
	}

	return runTable.Render()
}
