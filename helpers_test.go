package permitloader

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

type testTable struct {
	columns []string
	rows    [][]string
}

type testInsert struct {
	table TableRef
	rows  int
}

type testWarehouse struct {
	creates []TableRef
	tables  map[TableRef]*testTable
	inserts []testInsert

	// failInsertAt makes the insert with this index fail. Disabled if negative.
	failInsertAt int
	closed       bool
}

func newTestWarehouse() *testWarehouse {
	return &testWarehouse{tables: map[TableRef]*testTable{}, failInsertAt: -1}
}

func (w *testWarehouse) CreateTable(_ context.Context, t TableRef, c *Contract) error {
	w.creates = append(w.creates, t)
	if _, ok := w.tables[t]; !ok {
		w.tables[t] = &testTable{columns: c.Names()}
	}
	return nil
}

func (w *testWarehouse) Insert(_ context.Context, t TableRef, _ *Contract, columns []string, rows [][]string) error {
	if len(w.inserts) == w.failInsertAt {
		return fmt.Errorf("insert %d failed", w.failInsertAt)
	}

	tbl, ok := w.tables[t]
	if !ok {
		return fmt.Errorf("table %s does not exist", t)
	}

	w.inserts = append(w.inserts, testInsert{table: t, rows: len(rows)})

	for _, r := range rows {
		row := make([]string, len(tbl.columns))
		for i, c := range tbl.columns {
			for j, col := range columns {
				if col == c {
					row[i] = r[j]
				}
			}
		}
		tbl.rows = append(tbl.rows, row)
	}

	return nil
}

func (w *testWarehouse) Close() error {
	w.closed = true
	return nil
}

type testProbe struct {
	values []uint64
}

func (p *testProbe) RSS() (uint64, error) {
	if len(p.values) == 0 {
		return 0, fmt.Errorf("no sample")
	}
	v := p.values[0]
	p.values = p.values[1:]
	return v, nil
}

type testNotifier struct {
	results []*Result
}

func (n *testNotifier) Notify(_ context.Context, r *Result) error {
	n.results = append(n.results, r)
	return nil
}

// archiveColumn returns the column name of f as published in the archive.
func archiveColumn(f Field) string {
	for _, r := range PermitRenames() {
		if r.To == f.Name {
			return r.From
		}
	}
	return f.Name
}

func permitValue(f Field, row int) string {
	switch f.Name {
	case "event_reference":
		return fmt.Sprint(row)
	case "usrn":
		if row%2 == 0 {
			return ""
		}
		return "8400123"
	}

	switch f.Type {
	case Integer:
		return "1"
	case Decimal:
		return "1.5"
	case Boolean:
		return "false"
	case Date:
		return "2021-01-04"
	case Timestamp:
		if f.Nullable {
			return ""
		}
		return "2021-01-04T10:00:00.000Z"
	}
	return "value " + f.Name
}

// permitCSV builds a permit CSV of n rows in archive column names,
// leaving out the columns in drop.
func permitCSV(n int, drop ...string) string {
	skip := map[string]bool{}
	for _, d := range drop {
		skip[d] = true
	}

	var fields []Field
	for _, f := range PermitContract().Fields {
		if !skip[archiveColumn(f)] {
			fields = append(fields, f)
		}
	}

	var sb strings.Builder
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = archiveColumn(f)
	}
	sb.WriteString(strings.Join(header, ",") + "\n")

	for r := 0; r < n; r++ {
		vals := make([]string, len(fields))
		for i, f := range fields {
			vals[i] = permitValue(f, r)
		}
		sb.WriteString(strings.Join(vals, ",") + "\n")
	}

	return sb.String()
}

type zipEntry struct {
	name string
	body []byte
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("failed to create zip entry: %v", err)
		}
		if _, err := w.Write(e.body); err != nil {
			t.Fatalf("failed to write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}

	return buf.Bytes()
}
