package permitloader

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCSVParser(t *testing.T) {
	t.Parallel()

	src := "a,b,c\n1,2,3\n4,5,\n"

	b, err := CSVParser()(context.Background(), strings.NewReader(src))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expect := &Batch{
		Columns: []string{"a", "b", "c"},
		Rows:    [][]string{{"1", "2", "3"}, {"4", "5", ""}},
	}
	if diff := cmp.Diff(expect, b); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVParser_error(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		src  string
	}{
		{name: "empty", src: ""},
		{name: "wide record", src: "a,b\n1,2,3\n"},
		{name: "short record", src: "a,b\n1,2\n4\n"},
		{name: "duplicate header", src: "a,b,a\n1,2,3\n"},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			b, err := CSVParser()(context.Background(), strings.NewReader(c.src))
			if err == nil {
				t.Errorf("expected error, but got rows %v", b.Rows)
			}
		})
	}
}

func Test_fromRecords(t *testing.T) {
	t.Parallel()

	b, err := fromRecords([][]string{{"a", "b", "c"}, {"1", "2", "3"}, {"4"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expect := &Batch{
		Columns: []string{"a", "b", "c"},
		Rows:    [][]string{{"1", "2", "3"}, {"4", "", ""}},
	}
	if diff := cmp.Diff(expect, b); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}

	if _, err := fromRecords([][]string{{"a", "b"}, {"1", "2", "3"}}); !errors.Is(err, errWideRecord) {
		t.Errorf("expected errWideRecord, but %v", err)
	}
	if _, err := fromRecords([][]string{{"a", "a"}, {"1", "2"}}); err == nil {
		t.Errorf("expected error for a duplicate header")
	}
}

func TestJSONParser(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		body   string
		expect *Batch
	}{
		{
			name: "object",
			body: `{"event_reference": 12, "object_data": {"street_name": "High Street", "usrn": null}}`,
			expect: &Batch{
				Columns: []string{"event_reference", "object_data.street_name", "object_data.usrn"},
				Rows:    [][]string{{"12", "High Street", ""}},
			},
		},
		{
			name: "array",
			body: `[{"a": "1", "b": true}, {"a": "2", "c": [1, 2]}]`,
			expect: &Batch{
				Columns: []string{"a", "b", "c"},
				Rows:    [][]string{{"1", "true", ""}, {"2", "", "[1,2]"}},
			},
		},
		{
			name: "stream",
			body: "{\"a\": 1.50}\n{\"a\": 2}\n",
			expect: &Batch{
				Columns: []string{"a"},
				Rows:    [][]string{{"1.50"}, {"2"}},
			},
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			b, err := JSONParser()(context.Background(), strings.NewReader(c.body))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if diff := cmp.Diff(c.expect, b); diff != "" {
				t.Errorf("batch mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJSONParser_error(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`42`, `[1, 2]`, `{"a": `, ``} {
		if _, err := JSONParser()(context.Background(), strings.NewReader(body)); err == nil {
			t.Errorf("expected error for %q", body)
		}
	}
}
