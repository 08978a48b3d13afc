package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
)

var _ repository.GuestPurchaseRepository = (*guestPurchaseRepo)(nil)

type guestPurchaseRepo struct{ pool *pgxpool.Pool }

func NewGuestPurchaseRepo(pool *pgxpool.Pool) *guestPurchaseRepo {
	return &guestPurchaseRepo{pool: pool}
}

const guestPurchaseCols = `id, email, product_id, payment_event_id, amount, created_at, claimed_at, claimed_by`

func (r *guestPurchaseRepo) Insert(ctx context.Context, tx repository.Tx, gp *model.GuestPurchase) (bool, error) {
	const q = `
INSERT INTO guest_purchases (` + guestPurchaseCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (email, product_id, payment_event_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q, gp.ID, gp.Email, gp.ProductID, gp.PaymentEventID, gp.Amount, gp.CreatedAt, gp.ClaimedAt, gp.ClaimedBy)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *guestPurchaseRepo) FindByKey(ctx context.Context, tx repository.Tx, email, productID, eventID string) (*model.GuestPurchase, error) {
	q := `SELECT ` + guestPurchaseCols + ` FROM guest_purchases
 WHERE email = $1 AND product_id = $2 AND payment_event_id = $3` + forUpdate(tx) + `;`
	row, err := pickRow(ctx, r.pool, tx, q, model.NormalizeEmail(email), productID, eventID)
	if err != nil {
		return nil, err
	}
	return scanGuestPurchase(row)
}

func (r *guestPurchaseRepo) ListUnclaimedByEmail(ctx context.Context, tx repository.Tx, email string) ([]*model.GuestPurchase, error) {
	const q = `SELECT ` + guestPurchaseCols + ` FROM guest_purchases
 WHERE email = $1 AND claimed_at IS NULL
 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, model.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.GuestPurchase
	for rows.Next() {
		gp, err := scanGuestPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, gp)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func (r *guestPurchaseRepo) MarkClaimed(ctx context.Context, tx repository.Tx, id, userID string, at time.Time) (bool, error) {
	const q = `UPDATE guest_purchases SET claimed_at = $3, claimed_by = $2 WHERE id = $1 AND claimed_at IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, userID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *guestPurchaseRepo) ExistsForEmailAndProduct(ctx context.Context, tx repository.Tx, email, productID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM guest_purchases WHERE email = $1 AND product_id = $2);`
	row, err := pickRow(ctx, r.pool, tx, q, model.NormalizeEmail(email), productID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, scanErr(err)
	}
	return ok, nil
}

func scanGuestPurchase(row scanner) (*model.GuestPurchase, error) {
	gp := &model.GuestPurchase{}
	if err := row.Scan(&gp.ID, &gp.Email, &gp.ProductID, &gp.PaymentEventID, &gp.Amount, &gp.CreatedAt, &gp.ClaimedAt, &gp.ClaimedBy); err != nil {
		return nil, scanErr(err)
	}
	return gp, nil
}
