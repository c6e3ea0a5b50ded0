package warehouse

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // registers the postgres driver

	"go.nownabe.dev/permitloader"
)

var postgresDialect = dialect{
	name: "postgres",
	columnType: func(t permitloader.Type) string {
		switch t {
		case permitloader.Integer:
			return "BIGINT"
		case permitloader.Decimal:
			return "NUMERIC"
		case permitloader.Boolean:
			return "BOOLEAN"
		case permitloader.Date:
			return "DATE"
		case permitloader.Timestamp:
			return "TIMESTAMPTZ"
		}
		return "TEXT"
	},
	maxParams: 65535,
}

// Postgres connects to PostgreSQL. dsn is a key/value connection string such
// as "host=localhost port=5432 user=loader sslmode=disable"; the credentials'
// Database and Token are appended as dbname and password when set.
func Postgres(dsn string) permitloader.Connector {
	return permitloader.ConnectorFunc(func(ctx context.Context, creds *permitloader.Credentials) (permitloader.Warehouse, error) {
		w, err := openSQL(ctx, "postgres", postgresDSN(dsn, creds), postgresDialect)
		if err != nil {
			return nil, err
		}

		return w, nil
	})
}

func postgresDSN(dsn string, creds *permitloader.Credentials) string {
	parts := []string{}
	if s := strings.TrimSpace(dsn); s != "" {
		parts = append(parts, s)
	}
	if creds != nil && creds.Database != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", quoteDSNValue(creds.Database)))
	}
	if creds != nil && creds.Token != "" {
		parts = append(parts, fmt.Sprintf("password=%s", quoteDSNValue(creds.Token)))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
