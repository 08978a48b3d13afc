package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/ports/repository"
)

var serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}

// inSerializableTx runs fn in a serializable transaction and retries once when the
// store reports a write conflict. Storage failures that persist are reported as
// domain.ErrInternal, wrapping the cause; domain rule violations pass through.
func inSerializableTx(ctx context.Context, tm repository.TransactionManager, log *zerolog.Logger, op string, fn func(ctx context.Context, tx repository.Tx) error) error {
	err := tm.WithTx(ctx, serializable, fn)
	if errors.Is(err, domain.ErrConflict) {
		log.Warn().Err(err).Str("op", op).Msg("storage conflict, retrying once")
		err = tm.WithTx(ctx, serializable, fn)
	}
	if err != nil && isStorageFailure(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrInternal, err)
	}
	return err
}

func isStorageFailure(err error) bool {
	return errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrOperationFailed) ||
		errors.Is(err, domain.ErrReadDatabaseRow) ||
		errors.Is(err, domain.ErrInvalidExecContext)
}
