package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.nownabe.dev/permitloader"
)

func smallContract() *permitloader.Contract {
	return &permitloader.Contract{Fields: []permitloader.Field{
		{Name: "event_reference", Type: permitloader.Integer},
		{Name: "street_name", Type: permitloader.String, Nullable: true},
	}}
}

func Test_createTableSQL(t *testing.T) {
	t.Parallel()

	table := permitloader.TableRef{Schema: "raw_data_2021", Table: "01_2021"}

	cases := []struct {
		name    string
		dialect dialect
		fields  []permitloader.Field
		expect  string
	}{
		{
			name:    "duckdb",
			dialect: duckDBDialect,
			expect:  `CREATE TABLE IF NOT EXISTS "raw_data_2021"."01_2021" ("event_reference" BIGINT NOT NULL, "street_name" VARCHAR)`,
		},
		{
			name:    "postgres",
			dialect: postgresDialect,
			expect:  `CREATE TABLE IF NOT EXISTS "raw_data_2021"."01_2021" ("event_reference" BIGINT NOT NULL, "street_name" TEXT)`,
		},
		{
			name:    "duckdb decimal",
			dialect: duckDBDialect,
			fields:  []permitloader.Field{{Name: "amount", Type: permitloader.Decimal}},
			expect:  `CREATE TABLE IF NOT EXISTS "raw_data_2021"."01_2021" ("amount" DECIMAL(38, 9) NOT NULL)`,
		},
		{
			name:    "postgres decimal",
			dialect: postgresDialect,
			fields:  []permitloader.Field{{Name: "amount", Type: permitloader.Decimal, Nullable: true}},
			expect:  `CREATE TABLE IF NOT EXISTS "raw_data_2021"."01_2021" ("amount" NUMERIC)`,
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			contract := smallContract()
			if c.fields != nil {
				contract = &permitloader.Contract{Fields: c.fields}
			}

			if actual := createTableSQL(c.dialect, table, contract); actual != c.expect {
				t.Errorf("expected %s, but %s", c.expect, actual)
			}
		})
	}
}

func Test_insertSQL(t *testing.T) {
	t.Parallel()

	actual := insertSQL(permitloader.TableRef{Table: `we"ird`}, smallContract(), 2)
	expect := `INSERT INTO "we""ird" ("event_reference", "street_name") VALUES ($1, $2), ($3, $4)`

	if actual != expect {
		t.Errorf("expected %s, but %s", expect, actual)
	}
}

func openTestDuckDB(t *testing.T, d dialect) *sqlWarehouse {
	t.Helper()

	w, err := openSQL(context.Background(), "duckdb", "", d)
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	return w
}

func readRows(t *testing.T, w *sqlWarehouse, table permitloader.TableRef) [][2]string {
	t.Helper()

	rows, err := w.conn.QueryContext(context.Background(),
		fmt.Sprintf("SELECT event_reference, coalesce(street_name, '<null>') FROM %s ORDER BY event_reference", qualified(table)))
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var ref int64
		var name sql.NullString
		if err := rows.Scan(&ref, &name); err != nil {
			t.Fatalf("failed to scan: %v", err)
		}
		out = append(out, [2]string{fmt.Sprint(ref), name.String})
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("failed to read rows: %v", err)
	}

	return out
}

func TestSQLWarehouse_duckdb(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := openTestDuckDB(t, duckDBDialect)
	table := permitloader.TableRef{Schema: "main", Table: "01_2021"}

	for i := 0; i < 2; i++ {
		if err := w.CreateTable(ctx, table, smallContract()); err != nil {
			t.Fatalf("Unexpected error on create %d: %v", i, err)
		}
	}

	columns := []string{"street_name", "event_reference", "ignored"}
	if err := w.Insert(ctx, table, smallContract(), columns, [][]string{
		{"High Street", "1", "x"},
		{"", "2", "y"},
	}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := w.Insert(ctx, table, smallContract(), columns, [][]string{{"Low Road", "3", "z"}}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expect := [][2]string{{"1", "High Street"}, {"2", "<null>"}, {"3", "Low Road"}}
	if diff := cmp.Diff(expect, readRows(t, w, table)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if err := w.Insert(ctx, table, smallContract(), columns, [][]string{{"Bad", "x", ""}}); err == nil {
		t.Errorf("Expected error didn't occur")
	}
}

func TestSQLWarehouse_Insert_split(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := duckDBDialect
	d.bulk = nil
	d.maxParams = 4

	w := openTestDuckDB(t, d)
	table := permitloader.TableRef{Schema: "main", Table: "02_2021"}

	if err := w.CreateTable(ctx, table, smallContract()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var rows [][]string
	for i := 1; i <= 5; i++ {
		rows = append(rows, []string{fmt.Sprint(i), fmt.Sprintf("street %d", i)})
	}
	if err := w.Insert(ctx, table, smallContract(), []string{"event_reference", "street_name"}, rows); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := readRows(t, w, table); len(got) != 5 || got[4][1] != "street 5" {
		t.Errorf("unexpected rows %v", got)
	}
}

func permitRows(n int) ([]string, [][]string) {
	c := permitloader.PermitContract()

	rows := make([][]string, n)
	for i := range rows {
		r := make([]string, len(c.Fields))
		for j, f := range c.Fields {
			switch {
			case f.Name == "event_reference":
				r[j] = fmt.Sprint(i)
			case f.Nullable && i%3 == 0:
				r[j] = ""
			case f.Type == permitloader.Integer:
				r[j] = "8400123"
			case f.Type == permitloader.Boolean:
				r[j] = "true"
			case f.Type == permitloader.Date:
				r[j] = "2021-01-04"
			case f.Type == permitloader.Timestamp:
				r[j] = "2021-01-04T10:00:00.000Z"
			default:
				r[j] = fmt.Sprintf("%s %d", f.Name, i)
			}
		}
		rows[i] = r
	}

	return c.Names(), rows
}

func TestSQLWarehouse_duckdb_permitChunk(t *testing.T) {
	t.Parallel()

	const n = 5000

	ctx := context.Background()
	w := openTestDuckDB(t, duckDBDialect)
	table := permitloader.TableRef{Schema: "main", Table: "03_2021"}
	contract := permitloader.PermitContract()

	if err := w.CreateTable(ctx, table, contract); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	columns, rows := permitRows(n)
	if err := w.Insert(ctx, table, contract, columns, rows); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	q := fmt.Sprintf("SELECT event_reference FROM %s ORDER BY rowid", qualified(table))
	res, err := w.conn.QueryContext(ctx, q)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	defer res.Close()

	count := 0
	for res.Next() {
		var ref int64
		if err := res.Scan(&ref); err != nil {
			t.Fatalf("failed to scan: %v", err)
		}
		if ref != int64(count) {
			t.Fatalf("row %d is out of order: %d", count, ref)
		}
		count++
	}
	if err := res.Err(); err != nil {
		t.Fatalf("failed to read rows: %v", err)
	}

	if count != n {
		t.Errorf("expected %d rows, but %d", n, count)
	}
}

func TestSQLWarehouse_duckdb_decimal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := openTestDuckDB(t, duckDBDialect)
	table := permitloader.TableRef{Schema: "main", Table: "fees"}
	contract := &permitloader.Contract{Fields: []permitloader.Field{
		{Name: "id", Type: permitloader.Integer},
		{Name: "amount", Type: permitloader.Decimal, Nullable: true},
	}}

	if err := w.CreateTable(ctx, table, contract); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := w.Insert(ctx, table, contract, []string{"id", "amount"}, [][]string{
		{"1", "12.345"},
		{"2", "0.000000001"},
		{"3", ""},
	}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	q := fmt.Sprintf("SELECT coalesce(CAST(amount AS VARCHAR), '<null>') FROM %s ORDER BY id", qualified(table))
	res, err := w.conn.QueryContext(ctx, q)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	defer res.Close()

	var got []string
	for res.Next() {
		var v string
		if err := res.Scan(&v); err != nil {
			t.Fatalf("failed to scan: %v", err)
		}
		got = append(got, v)
	}

	expect := []string{"12.345000000", "0.000000001", "<null>"}
	if diff := cmp.Diff(expect, got); diff != "" {
		t.Errorf("amounts mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLWarehouse_duckdb_appendFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := openTestDuckDB(t, duckDBDialect)
	table := permitloader.TableRef{Schema: "main", Table: "04_2021"}
	columns := []string{"event_reference", "street_name"}

	missing := permitloader.TableRef{Schema: "main", Table: "missing"}
	if err := w.Insert(ctx, missing, smallContract(), columns, [][]string{{"1", "x"}}); err == nil {
		t.Fatalf("Expected error didn't occur")
	}

	// The failed append must not leave a transaction open.
	if err := w.CreateTable(ctx, table, smallContract()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := w.Insert(ctx, table, smallContract(), columns, [][]string{{"1", "x"}}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := readRows(t, w, table); len(got) != 1 {
		t.Errorf("expected 1 row, but %v", got)
	}
}
