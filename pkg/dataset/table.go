// Package dataset reads the two raw sales feeds (online and offline).
//
// Table keeps every cell as the parsed source text so that identical input
// always writes identical output; the typed records in sales.go are the view
// the warehouse transform works from.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"
)

// Timestamp column names of the two feeds.
const (
	OnlineTimeColumn  = "tmstmp"
	OfflineTimeColumn = "date"
)

// Table is a CSV table with one parsed timestamp per row.
type Table struct {
	Header     []string
	Rows       [][]string
	TimeColumn string

	timeIdx int
	times   []time.Time
	valid   []bool
}

// ReadTable parses CSV from r. The first record is the header and must
// contain timeColumn. Rows whose timestamp does not parse are kept but have no
// time, so they never match a day and never move the min/max.
func ReadTable(r io.Reader, timeColumn string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: empty input")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &Table{Header: header, TimeColumn: timeColumn, timeIdx: -1}
	for i, name := range header {
		if name == timeColumn {
			t.timeIdx = i
			break
		}
	}
	if t.timeIdx < 0 {
		return nil, fmt.Errorf("time column %q not in header", timeColumn)
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}
		t.append(rec)
	}
	return t, nil
}

// ReadTableBytes is ReadTable over an in-memory object body.
func ReadTableBytes(body []byte, timeColumn string) (*Table, error) {
	return ReadTable(bytes.NewReader(body), timeColumn)
}

func (t *Table) append(rec []string) {
	var (
		ts time.Time
		ok bool
	)
	if t.timeIdx < len(rec) {
		ts, ok = ParseTimestamp(rec[t.timeIdx])
	}
	t.Rows = append(t.Rows, rec)
	t.times = append(t.times, ts)
	t.valid = append(t.valid, ok)
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Time returns the parsed timestamp of row i and whether it parsed.
func (t *Table) Time(i int) (time.Time, bool) {
	return t.times[i], t.valid[i]
}

// Bounds returns the earliest and latest parsed timestamps. ok is false when
// no row has a valid timestamp.
func (t *Table) Bounds() (lo, hi time.Time, ok bool) {
	for i := range t.Rows {
		if !t.valid[i] {
			continue
		}
		ts := t.times[i]
		if !ok || ts.Before(lo) {
			lo = ts
		}
		if !ok || ts.After(hi) {
			hi = ts
		}
		ok = true
	}
	return lo, hi, ok
}

// Filter returns a table sharing the header with only the rows whose parsed
// timestamp satisfies keep. Row order is preserved.
func (t *Table) Filter(keep func(time.Time) bool) *Table {
	out := &Table{Header: t.Header, TimeColumn: t.TimeColumn, timeIdx: t.timeIdx}
	for i, rec := range t.Rows {
		if t.valid[i] && keep(t.times[i]) {
			out.Rows = append(out.Rows, rec)
			out.times = append(out.times, t.times[i])
			out.valid = append(out.valid, true)
		}
	}
	return out
}

// WriteCSV writes the header and rows as CSV. Quoting and line endings are
// the csv.Writer's own, so identical input gives identical output but not
// necessarily the source bytes.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// CSV renders the table as bytes.
func (t *Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
