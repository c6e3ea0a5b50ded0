// Package warehouse provides permitloader connectors for MotherDuck, DuckDB,
// PostgreSQL and BigQuery.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/permitloader"
)

// dialect describes the differences between SQL backends.
type dialect struct {
	name       string
	columnType func(permitloader.Type) string
	bind       func(any) any

	// maxParams is the bind parameter limit of one statement. 0 means unlimited.
	maxParams int

	// bulk replaces multi-row INSERT statements when set. It must write all
	// rows or none.
	bulk func(ctx context.Context, conn *sql.Conn, t permitloader.TableRef, values [][]any) error
}

// sqlWarehouse is a Warehouse over a single pinned database/sql connection.
type sqlWarehouse struct {
	db      *sql.DB
	conn    *sql.Conn
	dialect dialect
}

func openSQL(ctx context.Context, driver, dsn string, d dialect) (*sqlWarehouse, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, xerrors.Errorf("failed to open %s: %w", d.name, err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("failed to connect to %s: %w", d.name, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, xerrors.Errorf("failed to ping %s: %w", d.name, err)
	}

	return &sqlWarehouse{db: db, conn: conn, dialect: d}, nil
}

func (w *sqlWarehouse) CreateTable(ctx context.Context, t permitloader.TableRef, c *permitloader.Contract) error {
	q := createTableSQL(w.dialect, t, c)
	log.Ctx(ctx).Debug().Str("query", q).Msg("create table")

	if _, err := w.conn.ExecContext(ctx, q); err != nil {
		return xerrors.Errorf("failed to create table %s: %w", t, err)
	}

	return nil
}

func (w *sqlWarehouse) Insert(ctx context.Context, t permitloader.TableRef, c *permitloader.Contract, columns []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	values, err := c.Project(columns, rows)
	if err != nil {
		return xerrors.Errorf("failed to convert rows: %w", err)
	}

	if w.dialect.bulk != nil {
		w.bindAll(values)
		if err := w.dialect.bulk(ctx, w.conn, t, values); err != nil {
			return xerrors.Errorf("failed to append %d rows into %s: %w", len(values), t, err)
		}
		return nil
	}

	per := len(values)
	if w.dialect.maxParams > 0 {
		per = w.dialect.maxParams / len(c.Fields)
	}

	if per >= len(values) {
		return w.exec(ctx, w.conn, t, c, values)
	}

	// The chunk exceeds the parameter limit, so it is split into several
	// statements committed together.
	tx, err := w.conn.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("failed to begin transaction: %w", err)
	}

	for start := 0; start < len(values); start += per {
		end := start + per
		if end > len(values) {
			end = len(values)
		}
		if err := w.exec(ctx, tx, t, c, values[start:end]); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return xerrors.Errorf("failed to commit insert into %s: %w", t, err)
	}

	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (w *sqlWarehouse) bindAll(values [][]any) {
	if w.dialect.bind == nil {
		return
	}
	for _, r := range values {
		for i, v := range r {
			if v != nil {
				r[i] = w.dialect.bind(v)
			}
		}
	}
}

func (w *sqlWarehouse) exec(ctx context.Context, e execer, t permitloader.TableRef, c *permitloader.Contract, values [][]any) error {
	w.bindAll(values)

	args := make([]any, 0, len(values)*len(c.Fields))
	for _, r := range values {
		args = append(args, r...)
	}

	if _, err := e.ExecContext(ctx, insertSQL(t, c, len(values)), args...); err != nil {
		return xerrors.Errorf("failed to insert %d rows into %s: %w", len(values), t, err)
	}

	return nil
}

func (w *sqlWarehouse) Close() error {
	cerr := w.conn.Close()
	if err := w.db.Close(); err != nil {
		return err
	}
	return cerr
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func qualified(t permitloader.TableRef) string {
	if t.Schema == "" {
		return quoteIdent(t.Table)
	}
	return quoteIdent(t.Schema) + "." + quoteIdent(t.Table)
}

func createTableSQL(d dialect, t permitloader.TableRef, c *permitloader.Contract) string {
	cols := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		col := quoteIdent(f.Name) + " " + d.columnType(f.Type)
		if !f.Nullable {
			col += " NOT NULL"
		}
		cols[i] = col
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qualified(t), strings.Join(cols, ", "))
}

func insertSQL(t permitloader.TableRef, c *permitloader.Contract, rows int) string {
	var sb strings.Builder

	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = quoteIdent(f.Name)
	}

	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", qualified(t), strings.Join(names, ", "))

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for i := range c.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", n)
			n++
		}
		sb.WriteByte(')')
	}

	return sb.String()
}
