package permitloader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

// Type is a column type of a schema contract.
type Type int

// Column types.
const (
	String Type = iota
	Integer
	Decimal
	Boolean
	Date
	Timestamp
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Decimal:
		return "decimal"
	case Boolean:
		return "boolean"
	case Date:
		return "date"
	case Timestamp:
		return "timestamp"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var errEmptyValue = errors.New("empty value for non-nullable column")

// Field is a column of a schema contract.
type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

// Coerce converts a raw cell into a Go value of the field type.
// An empty cell of a nullable field becomes nil.
func (f Field) Coerce(v string) (any, error) {
	if v == "" {
		if f.Nullable {
			return nil, nil
		}
		return nil, errEmptyValue
	}

	switch f.Type {
	case String:
		return v, nil
	case Integer:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, xerrors.Errorf("not an integer: %w", err)
		}
		return n, nil
	case Decimal:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, xerrors.Errorf("not a decimal: %w", err)
		}
		return d, nil
	case Boolean:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, xerrors.Errorf("not a boolean: %w", err)
		}
		return b, nil
	case Date:
		if t, err := time.Parse("2006-01-02", v); err == nil {
			return t, nil
		}
		t, err := parseTimestamp(v)
		if err != nil {
			return nil, xerrors.Errorf("not a date: %q", v)
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	case Timestamp:
		t, err := parseTimestamp(v)
		if err != nil {
			return nil, xerrors.Errorf("not a timestamp: %q", v)
		}
		return t, nil
	}

	return nil, xerrors.Errorf("unsupported type %s", f.Type)
}

func parseTimestamp(v string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Violation is a single mismatch between a batch and a contract.
// Row is -1 when the whole column is missing.
type Violation struct {
	Column string
	Row    int
	Value  string
	Reason string
}

func (v Violation) String() string {
	if v.Row < 0 {
		return fmt.Sprintf("%s: %s", v.Column, v.Reason)
	}
	return fmt.Sprintf("%s[%d]=%q: %s", v.Column, v.Row, v.Value, v.Reason)
}

// Contract is an ordered set of expected columns.
type Contract struct {
	Fields []Field
}

// Names returns the column names in contract order.
func (c *Contract) Names() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks that every contract column is present in b and every
// cell is coercible to its type. It returns nil when b conforms.
// Columns not in the contract are ignored.
func (c *Contract) Validate(b *Batch) []Violation {
	var vs []Violation

	for _, f := range c.Fields {
		idx := b.ColumnIndex(f.Name)
		if idx < 0 {
			vs = append(vs, Violation{Column: f.Name, Row: -1, Reason: "column is missing"})
			continue
		}

		for i, r := range b.Rows {
			var cell string
			if idx < len(r) {
				cell = r[idx]
			}
			if _, err := f.Coerce(cell); err != nil {
				vs = append(vs, Violation{Column: f.Name, Row: i, Value: cell, Reason: err.Error()})
			}
		}
	}

	return vs
}

// Check is Validate returning a *SchemaValidationError for any violation.
func (c *Contract) Check(b *Batch) error {
	if vs := c.Validate(b); len(vs) > 0 {
		return &SchemaValidationError{Violations: vs}
	}
	return nil
}

// Project returns rows of b ordered as the contract with typed values.
func (c *Contract) Project(columns []string, rows [][]string) ([][]any, error) {
	idx := make([]int, len(c.Fields))
	for i, f := range c.Fields {
		idx[i] = -1
		for j, col := range columns {
			if col == f.Name {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, xerrors.Errorf("column %s is missing", f.Name)
		}
	}

	out := make([][]any, len(rows))
	for i, r := range rows {
		vals := make([]any, len(c.Fields))
		for j, f := range c.Fields {
			v, err := f.Coerce(r[idx[j]])
			if err != nil {
				return nil, xerrors.Errorf("row %d column %s: %w", i, f.Name, err)
			}
			vals[j] = v
		}
		out[i] = vals
	}

	return out, nil
}

// PermitContract returns the contract of Street Manager permit archives.
func PermitContract() *Contract {
	return &Contract{Fields: []Field{
		{Name: "event_reference", Type: Integer},
		{Name: "event_type", Type: String},
		{Name: "event_time", Type: Timestamp},
		{Name: "object_type", Type: String},
		{Name: "object_reference", Type: String},
		{Name: "work_reference_number", Type: String},
		{Name: "permit_reference_number", Type: String},
		{Name: "promoter_swa_code", Type: String},
		{Name: "promoter_organisation", Type: String},
		{Name: "highway_authority", Type: String},
		{Name: "highway_authority_swa_code", Type: String},
		{Name: "works_location_coordinates", Type: String, Nullable: true},
		{Name: "street_name", Type: String, Nullable: true},
		{Name: "area_name", Type: String, Nullable: true},
		{Name: "usrn", Type: Integer, Nullable: true},
		{Name: "work_category", Type: String},
		{Name: "traffic_management_type", Type: String, Nullable: true},
		{Name: "proposed_start_date", Type: Date},
		{Name: "proposed_end_date", Type: Date},
		{Name: "actual_start_date_time", Type: Timestamp, Nullable: true},
		{Name: "actual_end_date_time", Type: Timestamp, Nullable: true},
		{Name: "work_status", Type: String},
		{Name: "is_ttro_required", Type: Boolean, Nullable: true},
	}}
}
