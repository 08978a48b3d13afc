package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
)

var _ repository.AccessGrantRepository = (*accessGrantRepo)(nil)

type accessGrantRepo struct{ pool *pgxpool.Pool }

func NewAccessGrantRepo(pool *pgxpool.Pool) *accessGrantRepo {
	return &accessGrantRepo{pool: pool}
}

const accessGrantCols = `id, user_id, product_id, granted_at, duration_days, expires_at, updated_at`

func (r *accessGrantRepo) FindByUserAndProduct(ctx context.Context, tx repository.Tx, userID, productID string) (*model.AccessGrant, error) {
	q := `SELECT ` + accessGrantCols + ` FROM access_grants WHERE user_id = $1 AND product_id = $2` + forUpdate(tx) + `;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, productID)
	if err != nil {
		return nil, err
	}
	g := &model.AccessGrant{}
	if err := row.Scan(&g.ID, &g.UserID, &g.ProductID, &g.GrantedAt, &g.DurationDays, &g.ExpiresAt, &g.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return g, nil
}

func (r *accessGrantRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.AccessGrant, error) {
	const q = `SELECT ` + accessGrantCols + ` FROM access_grants WHERE user_id = $1 ORDER BY product_id;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AccessGrant
	for rows.Next() {
		g := &model.AccessGrant{}
		if err := rows.Scan(&g.ID, &g.UserID, &g.ProductID, &g.GrantedAt, &g.DurationDays, &g.ExpiresAt, &g.UpdatedAt); err != nil {
			return nil, scanErr(err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

// UpsertExtend mirrors model.NextExpiry in one statement: a fresh row expires at
// now + days; an existing one at GREATEST(expires_at, now) + days; NULL on either
// side means unlimited. xmax = 0 only for the inserted row version.
func (r *accessGrantRepo) UpsertExtend(ctx context.Context, tx repository.Tx, id string, req model.GrantRequest, now time.Time) (*model.AccessGrant, bool, error) {
	const q = `
INSERT INTO access_grants AS g (id, user_id, product_id, granted_at, duration_days, expires_at, updated_at)
VALUES (
  $1, $2, $3, $4, $5::int,
  CASE WHEN $5::int IS NULL THEN NULL ELSE $4::timestamptz + make_interval(days => $5::int) END,
  $4
)
ON CONFLICT (user_id, product_id) DO UPDATE SET
  duration_days = EXCLUDED.duration_days,
  expires_at = CASE
    WHEN EXCLUDED.duration_days IS NULL OR g.expires_at IS NULL THEN NULL
    ELSE GREATEST(g.expires_at, EXCLUDED.updated_at) + make_interval(days => EXCLUDED.duration_days)
  END,
  updated_at = EXCLUDED.updated_at
RETURNING ` + accessGrantCols + `, (xmax = 0) AS created;`

	row, err := pickRow(ctx, r.pool, tx, q, id, req.UserID, req.ProductID, now, req.DurationDays)
	if err != nil {
		return nil, false, err
	}
	g := &model.AccessGrant{}
	var created bool
	if err := row.Scan(&g.ID, &g.UserID, &g.ProductID, &g.GrantedAt, &g.DurationDays, &g.ExpiresAt, &g.UpdatedAt, &created); err != nil {
		return nil, false, scanErr(err)
	}
	return g, created, nil
}

func (r *accessGrantRepo) RecordSource(ctx context.Context, tx repository.Tx, eventID, productID, userID string, at time.Time) (bool, error) {
	const q = `
INSERT INTO access_grant_sources (payment_event_id, product_id, user_id, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (payment_event_id, product_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q, eventID, productID, userID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
