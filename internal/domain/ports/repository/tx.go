package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes fn inside a database transaction and passes the
// transaction handle as tx.
//
// Repositories accept the handle as repository.Tx and detect a live transaction
// implementation-side (pgx.Tx for Postgres) to add row locks and route queries.
// Repositories MUST accept a nil tx (non-transactional path, pool-backed).
//
// USAGE
//
//	tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(ctx context.Context, tx repository.Tx) error {
//		ev, err := events.FindByID(ctx, tx, id)
//		...
//		return err
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
