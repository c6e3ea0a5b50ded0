package permitloader

import (
	"context"
	"fmt"
)

// TableRef identifies a destination table.
type TableRef struct {
	Schema string
	Table  string
}

func (t TableRef) String() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Table)
}

// Warehouse is an open connection to an analytical store.
// Implementations are used from a single goroutine.
type Warehouse interface {
	// CreateTable creates the table with the contract's columns unless it
	// exists. An existing table is not an error and is left untouched.
	CreateTable(ctx context.Context, t TableRef, c *Contract) error

	// Insert appends rows in one operation. Rows are ordered as columns.
	Insert(ctx context.Context, t TableRef, c *Contract, columns []string, rows [][]string) error

	Close() error
}

// Connector opens warehouse connections.
type Connector interface {
	Connect(ctx context.Context, creds *Credentials) (Warehouse, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(context.Context, *Credentials) (Warehouse, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context, creds *Credentials) (Warehouse, error) {
	return f(ctx, creds)
}
