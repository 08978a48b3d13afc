package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
)

var _ repository.PaymentEventRepository = (*paymentEventRepo)(nil)

type paymentEventRepo struct{ pool *pgxpool.Pool }

func NewPaymentEventRepo(pool *pgxpool.Pool) *paymentEventRepo {
	return &paymentEventRepo{pool: pool}
}

const paymentEventCols = `id, product_id, owner_id, customer_email, amount, currency, refunded_amount, status, metadata,
  expires_at, completed_at, abandoned_at, fulfilled_at, created_at, updated_at`

func (r *paymentEventRepo) Create(ctx context.Context, tx repository.Tx, ev *model.PaymentEvent) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("%w: metadata: %v", domain.ErrInvalidArgument, err)
	}
	const q = `
INSERT INTO payment_events (` + paymentEventCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`
	_, err = execSQL(ctx, r.pool, tx, q,
		ev.ID, ev.ProductID, ev.Owner.Ptr(), ev.CustomerEmail, ev.Amount, ev.Currency, ev.RefundedAmount,
		string(ev.Status), meta, ev.ExpiresAt, ev.CompletedAt, ev.AbandonedAt, ev.FulfilledAt, ev.CreatedAt, ev.UpdatedAt)
	return err
}

func (r *paymentEventRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentEvent, error) {
	q := `SELECT ` + paymentEventCols + ` FROM payment_events WHERE id = $1` + forUpdate(tx) + `;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPaymentEvent(row)
}

func (r *paymentEventRepo) TransitionFromPending(ctx context.Context, tx repository.Tx, id string, to model.PaymentStatus, at time.Time) (bool, error) {
	if !to.Valid() || !to.IsTerminal() {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE payment_events
   SET status = $2::text,
       updated_at = $3,
       completed_at = CASE WHEN $2::text = 'completed' THEN $3 ELSE completed_at END,
       abandoned_at = CASE WHEN $2::text = 'abandoned' THEN $3 ELSE abandoned_at END
 WHERE id = $1
   AND status = 'pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(to), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentEventRepo) MarkFulfilled(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE payment_events SET fulfilled_at = COALESCE(fulfilled_at, $2), updated_at = $2 WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentEventRepo) SetRefundedAmount(ctx context.Context, tx repository.Tx, id string, refunded int64) error {
	const q = `UPDATE payment_events SET refunded_amount = $2, updated_at = NOW() WHERE id = $1 AND status = 'completed';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, refunded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentEventRepo) MarkExpiredPending(ctx context.Context, tx repository.Tx, now time.Time) ([]string, error) {
	const q = `
UPDATE payment_events
   SET status = 'abandoned', abandoned_at = $1, updated_at = $1
 WHERE status = 'pending'
   AND expires_at < $1
RETURNING id;`
	rows, err := queryRows(ctx, r.pool, tx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, scanErr(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return ids, nil
}

func (r *paymentEventRepo) ListUnfulfilled(ctx context.Context, tx repository.Tx, completedBefore time.Time, limit int) ([]*model.PaymentEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + paymentEventCols + `
  FROM payment_events
 WHERE status = 'completed'
   AND fulfilled_at IS NULL
   AND completed_at < $1
 ORDER BY completed_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, completedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PaymentEvent
	for rows.Next() {
		ev, err := scanPaymentEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func scanPaymentEvent(row scanner) (*model.PaymentEvent, error) {
	ev := &model.PaymentEvent{}
	var (
		owner  *string
		status string
		meta   []byte
	)
	if err := row.Scan(&ev.ID, &ev.ProductID, &owner, &ev.CustomerEmail, &ev.Amount, &ev.Currency, &ev.RefundedAmount,
		&status, &meta, &ev.ExpiresAt, &ev.CompletedAt, &ev.AbandonedAt, &ev.FulfilledAt, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	ev.Owner = model.ParseOwnerIDPtr(owner)
	ev.Status = model.PaymentStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("%w: payment event %s metadata: %v", domain.ErrReadDatabaseRow, ev.ID, err)
		}
	}
	return ev, nil
}
