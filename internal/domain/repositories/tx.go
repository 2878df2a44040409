package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is implemented by *pgxpool.Pool, pgx.Tx and pgxmock pools,
// so chat and message repositories work the same inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...interface{}) pgx.Row
}

// TxFn runs inside a transaction. Repositories pick the transaction up
// from the ctx they are given.
type TxFn func(ctx context.Context) error

// TransactionManager runs a group of repository calls atomically, such as
// storing a turn's messages together with the chat's token total.
// ExecTx called with a ctx that is already inside a transaction joins it.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}

type (
	txKey    struct{}
	scopeKey struct{}
)

// SetTx stores a pgx transaction in the context and marks it as in a transaction.
func SetTx(ctx context.Context, tx pgx.Tx) context.Context {
	return MarkTx(context.WithValue(ctx, txKey{}, tx))
}

// GetTx retrieves the pgx transaction from the context, nil if none.
func GetTx(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// MarkTx marks ctx as running inside ExecTx. Stores without a pgx.Tx use it
// to detect nesting.
func MarkTx(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, true)
}

// InTx reports whether ctx is inside ExecTx.
func InTx(ctx context.Context) bool {
	in, _ := ctx.Value(scopeKey{}).(bool)
	return in
}
