package repositories

import (
	"context"
	"database/sql"
)

// queryExecutor is the subset of sql.DB and sql.Tx the repositories use, so
// every query method runs unchanged inside or outside a transaction.
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner lets one scan helper serve both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
