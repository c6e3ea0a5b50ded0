package permitloader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/extrame/xls"
	json "github.com/goccy/go-json"
	"gitlab.com/osaki-lab/iowrapper"
	"golang.org/x/xerrors"
)

// Parser parses an archive entry into a batch.
type Parser func(context.Context, io.Reader) (*Batch, error)

var (
	errEmptyEntry   = errors.New("entry has no header")
	errWideRecord   = errors.New("record has more cells than the header")
	errXLSNoSheet   = errors.New("no sheet found")
	errJSONNotTable = errors.New("json value is not an object or an array of objects")
)

// CSVParser provides a parser to parse CSV files with a header row.
func CSVParser() Parser {
	return func(_ context.Context, r io.Reader) (*Batch, error) {
		cr := csv.NewReader(r)

		records, err := cr.ReadAll()
		if err != nil {
			return nil, xerrors.Errorf("failed to read csv: %w", err)
		}
		if len(records) == 0 {
			return nil, errEmptyEntry
		}

		return fromRecords(records)
	}
}

// XLSParser provides a parser to parse the first sheet of legacy Excel files
// with a header row.
func XLSParser() Parser {
	getRow := func(sheet *xls.WorkSheet, row int) (r *xls.Row, ok bool) {
		defer func() { recover() }()

		r = nil
		ok = false

		return sheet.Row(row), true
	}

	return func(_ context.Context, r io.Reader) (*Batch, error) {
		wb, err := xls.OpenReader(iowrapper.NewSeeker(r), "utf-8")
		if err != nil {
			return nil, xerrors.Errorf("failed to open xls file: %w", err)
		}

		sheet := wb.GetSheet(0)
		if sheet == nil {
			return nil, errXLSNoSheet
		}

		records := [][]string{}
		for i := 0; i <= int(sheet.MaxRow); i++ {
			row, ok := getRow(sheet, i)
			if !ok || row == nil {
				continue
			}

			record := []string{}
			for col := row.FirstCol(); col < row.LastCol(); col++ {
				record = append(record, row.Col(col))
			}
			records = append(records, record)
		}
		if len(records) == 0 {
			return nil, errEmptyEntry
		}

		return fromRecords(records)
	}
}

// JSONParser provides a parser for JSON objects, arrays of objects or a
// stream of either. Nested objects are flattened into dotted column names
// and columns are sorted by name.
func JSONParser() Parser {
	return func(_ context.Context, r io.Reader) (*Batch, error) {
		dec := json.NewDecoder(r)
		dec.UseNumber()

		var objects []map[string]string
		for {
			var v any
			if err := dec.Decode(&v); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, xerrors.Errorf("failed to decode json: %w", err)
			}

			switch t := v.(type) {
			case map[string]any:
				objects = append(objects, flatten(t))
			case []any:
				for _, e := range t {
					o, ok := e.(map[string]any)
					if !ok {
						return nil, errJSONNotTable
					}
					objects = append(objects, flatten(o))
				}
			default:
				return nil, errJSONNotTable
			}
		}
		if len(objects) == 0 {
			return nil, errEmptyEntry
		}

		seen := map[string]struct{}{}
		var cols []string
		for _, o := range objects {
			for k := range o {
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					cols = append(cols, k)
				}
			}
		}
		sort.Strings(cols)

		rows := make([][]string, len(objects))
		for i, o := range objects {
			row := make([]string, len(cols))
			for j, c := range cols {
				row[j] = o[c]
			}
			rows[i] = row
		}

		return &Batch{Columns: cols, Rows: rows}, nil
	}
}

func flatten(o map[string]any) map[string]string {
	out := map[string]string{}
	flattenInto(out, "", o)
	return out
}

func flattenInto(out map[string]string, prefix string, o map[string]any) {
	for k, v := range o {
		key := prefix + k
		switch t := v.(type) {
		case map[string]any:
			flattenInto(out, key+".", t)
		case nil:
			out[key] = ""
		case string:
			out[key] = t
		case []any:
			b, err := json.Marshal(t)
			if err != nil {
				out[key] = fmt.Sprint(t)
				continue
			}
			out[key] = string(b)
		default:
			out[key] = fmt.Sprint(t)
		}
	}
}

// fromRecords turns a header row and records into a batch. Short records
// are padded with empty trailing cells, as spreadsheets omit them.
func fromRecords(records [][]string) (*Batch, error) {
	header := records[0]

	seen := make(map[string]struct{}, len(header))
	for _, h := range header {
		if _, ok := seen[h]; ok {
			return nil, xerrors.Errorf("duplicate column %q in header", h)
		}
		seen[h] = struct{}{}
	}

	rows := make([][]string, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) > len(header) {
			return nil, xerrors.Errorf("record %d has %d cells for %d columns: %w", i+1, len(rec), len(header), errWideRecord)
		}
		row := make([]string, len(header))
		copy(row, rec)
		rows = append(rows, row)
	}

	return &Batch{Columns: header, Rows: rows}, nil
}
