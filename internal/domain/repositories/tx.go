package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TxFn runs inside a transaction; repositories called with its ctx join it
type TxFn func(ctx context.Context) error

// TransactionManager runs multi-step tree edits atomically.
// Insert above/below, delete and regenerate each touch several rows
// (the new node, re-parented children, active-child pointers, branch heads).
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

type txKey struct{}

// SetTx returns a context carrying tx
func SetTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTx returns the transaction carried by ctx, or nil
func GetTx(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// InTx reports whether ctx already carries a transaction
func InTx(ctx context.Context) bool {
	return GetTx(ctx) != nil
}
