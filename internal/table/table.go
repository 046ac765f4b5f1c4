// Package table accumulates flattened rows and serializes them as CSV. Rows may carry different
// field sets; the columns are reconciled to the union of every field seen, in first-seen order,
// only when the table is written.
package table

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
)

var ErrWrite = errors.New("failed to write table")

// Table is an append only, ordered collection of rows.
type Table struct {
	rows    []*Row
	columns []string
	seen    map[string]struct{}
}

func New() *Table {
	return &Table{seen: map[string]struct{}{}}
}

// Append adds rows to the end of the table, extending the column set as needed.
func (t *Table) Append(rows ...*Row) {
	for _, row := range rows {
		for _, key := range row.keys {
			if _, found := t.seen[key]; found {
				continue
			}

			t.seen[key] = struct{}{}
			t.columns = append(t.columns, key)
		}

		t.rows = append(t.rows, row)
	}
}

func (t *Table) Len() int {
	return len(t.rows)
}

// Rows returns the rows in insertion order. The slice must not be modified.
func (t *Table) Rows() []*Row {
	return t.rows
}

// Columns returns the current column union.
func (t *Table) Columns() []string {
	columns := make([]string, len(t.columns))
	copy(columns, t.columns)

	return columns
}

// WriteCSV serializes the entire table. The first column holds the zero based row index and has
// an empty header, followed by every known column. Fields a row lacks are written empty.
func (t *Table) WriteCSV(writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)

	header := make([]string, 0, len(t.columns)+1)
	header = append(header, "")
	header = append(header, t.columns...)

	if err := csvWriter.Write(header); err != nil {
		return errors.Join(err, ErrWrite)
	}

	record := make([]string, len(header))
	for idx, row := range t.rows {
		record[0] = strconv.Itoa(idx)
		for col, name := range t.columns {
			record[col+1] = row.String(name)
		}

		if err := csvWriter.Write(record); err != nil {
			return errors.Join(err, ErrWrite)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return errors.Join(err, ErrWrite)
	}

	return nil
}
