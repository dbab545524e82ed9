package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// TransactionManager provides a thin abstraction to execute a function within
// a storage transaction, passing the underlying handle via `tx`.
//
// Repository methods accept `tx Tx` and detect the handle implementation-side
// (pgx.Tx for Postgres, a sentinel for the in-memory store). A nil tx means
// the non-transactional path. Keep this interface small and stable.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
