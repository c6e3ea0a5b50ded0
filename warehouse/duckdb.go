package warehouse

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net/url"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"

	"go.nownabe.dev/permitloader"
)

const (
	duckDBDecimalWidth = 38
	duckDBDecimalScale = 9
)

var duckDBDialect = dialect{
	name: "duckdb",
	columnType: func(t permitloader.Type) string {
		switch t {
		case permitloader.Integer:
			return "BIGINT"
		case permitloader.Decimal:
			return fmt.Sprintf("DECIMAL(%d, %d)", duckDBDecimalWidth, duckDBDecimalScale)
		case permitloader.Boolean:
			return "BOOLEAN"
		case permitloader.Date:
			return "DATE"
		case permitloader.Timestamp:
			return "TIMESTAMP"
		}
		return "VARCHAR"
	},
	bind: func(v any) any {
		if d, ok := v.(decimal.Decimal); ok {
			return duckDBDecimal(d)
		}
		return v
	},
	bulk: appendRows,
}

func duckDBDecimal(d decimal.Decimal) duckdb.Decimal {
	return duckdb.Decimal{
		Width: duckDBDecimalWidth,
		Scale: duckDBDecimalScale,
		Value: d.Round(duckDBDecimalScale).Shift(duckDBDecimalScale).BigInt(),
	}
}

// appendRows writes values through the DuckDB appender of the native
// connection inside a transaction, so a chunk is appended as a whole.
func appendRows(ctx context.Context, conn *sql.Conn, t permitloader.TableRef, values [][]any) error {
	if _, err := conn.ExecContext(ctx, "BEGIN TRANSACTION"); err != nil {
		return xerrors.Errorf("failed to begin transaction: %w", err)
	}

	err := conn.Raw(func(dc any) error {
		c, ok := dc.(driver.Conn)
		if !ok {
			return xerrors.Errorf("unexpected driver connection %T", dc)
		}

		a, err := duckdb.NewAppenderFromConn(c, t.Schema, t.Table)
		if err != nil {
			return xerrors.Errorf("failed to create appender: %w", err)
		}

		row := make([]driver.Value, 0)
		for i, r := range values {
			row = row[:0]
			for _, v := range r {
				row = append(row, v)
			}
			if err := a.AppendRow(row...); err != nil {
				a.Close()
				return xerrors.Errorf("failed to append row %d: %w", i, err)
			}
		}

		if err := a.Flush(); err != nil {
			a.Close()
			return xerrors.Errorf("failed to flush appender: %w", err)
		}

		return a.Close()
	})
	if err != nil {
		if _, rerr := conn.ExecContext(ctx, "ROLLBACK"); rerr != nil {
			return xerrors.Errorf("rollback failed (%v): %w", rerr, err)
		}
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return xerrors.Errorf("failed to commit: %w", err)
	}

	return nil
}

// MotherDuck connects to the MotherDuck database named by the credentials'
// Database using their Token.
func MotherDuck() permitloader.Connector {
	return permitloader.ConnectorFunc(func(ctx context.Context, creds *permitloader.Credentials) (permitloader.Warehouse, error) {
		if creds.Database == "" {
			return nil, xerrors.New("motherduck database is empty")
		}
		if creds.Token == "" {
			return nil, xerrors.New("motherduck token is empty")
		}

		w, err := openSQL(ctx, "duckdb", motherDuckDSN(creds.Database, creds.Token), duckDBDialect)
		if err != nil {
			return nil, err
		}

		return w, nil
	})
}

func motherDuckDSN(database, token string) string {
	return "md:" + database + "?" + url.Values{"motherduck_token": {token}}.Encode()
}

// DuckDB opens a local DuckDB database file. An empty path opens an
// in-memory database. Credentials are not used.
func DuckDB(path string) permitloader.Connector {
	return permitloader.ConnectorFunc(func(ctx context.Context, _ *permitloader.Credentials) (permitloader.Warehouse, error) {
		w, err := openSQL(ctx, "duckdb", path, duckDBDialect)
		if err != nil {
			return nil, err
		}

		return w, nil
	})
}
