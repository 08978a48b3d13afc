package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
)

var _ repository.OtoOfferRepository = (*otoOfferRepo)(nil)

type otoOfferRepo struct{ pool *pgxpool.Pool }

func NewOtoOfferRepo(pool *pgxpool.Pool) *otoOfferRepo {
	return &otoOfferRepo{pool: pool}
}

const otoOfferCols = `id, code, email, source_event_id, source_product_id, target_product_id,
  discount_kind, discount_value, expires_at, usage_limit, usage_count, consumed_at, consumed_by_event_id, created_at`

// Insert relies on the source_event_id conflict target only, so a code collision
// still raises a unique violation (domain.ErrAlreadyExists).
func (r *otoOfferRepo) Insert(ctx context.Context, tx repository.Tx, o *model.OtoOffer) (bool, error) {
	const q = `
INSERT INTO oto_offers (` + otoOfferCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (source_event_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		o.ID, o.Code, o.Email, o.SourceEventID, o.SourceProductID, o.TargetProductID,
		string(o.Discount.Kind), o.Discount.Value, o.ExpiresAt, o.UsageLimit, o.UsageCount, o.ConsumedAt, nullString(o.ConsumedByEventID), o.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *otoOfferRepo) FindBySourceEvent(ctx context.Context, tx repository.Tx, eventID string) (*model.OtoOffer, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+otoOfferCols+` FROM oto_offers WHERE source_event_id = $1;`, eventID)
	if err != nil {
		return nil, err
	}
	return scanOtoOffer(row)
}

func (r *otoOfferRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.OtoOffer, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+otoOfferCols+` FROM oto_offers WHERE code = $1;`, code)
	if err != nil {
		return nil, err
	}
	return scanOtoOffer(row)
}

// Consume records a use held by eventID. A use already held by eventID is reported
// again without touching the counters, so retries stay idempotent and skip the
// expiry check.
func (r *otoOfferRepo) Consume(ctx context.Context, tx repository.Tx, code, email, eventID string, now time.Time) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT EXISTS (SELECT 1 FROM oto_offers WHERE code = $1 AND consumed_by_event_id = $2);`, code, eventID)
	if err != nil {
		return false, err
	}
	var held bool
	if err := row.Scan(&held); err != nil {
		return false, scanErr(err)
	}
	if held {
		return true, nil
	}

	const q = `
UPDATE oto_offers
   SET usage_count = usage_count + 1,
       consumed_at = CASE WHEN usage_count + 1 >= usage_limit THEN $3 ELSE consumed_at END,
       consumed_by_event_id = $4
 WHERE code = $1
   AND email = $2
   AND expires_at > $3
   AND usage_count < usage_limit;`
	tag, err := execSQL(ctx, r.pool, tx, q, code, model.NormalizeEmail(email), now, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Release gives back the use held by eventID. The offer keeps its original expiry.
func (r *otoOfferRepo) Release(ctx context.Context, tx repository.Tx, eventID string) (bool, error) {
	const q = `
UPDATE oto_offers
   SET usage_count = usage_count - 1,
       consumed_at = NULL,
       consumed_by_event_id = NULL
 WHERE consumed_by_event_id = $1
   AND usage_count > 0;`
	tag, err := execSQL(ctx, r.pool, tx, q, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanOtoOffer(row scanner) (*model.OtoOffer, error) {
	o := &model.OtoOffer{}
	var (
		kind       string
		consumedBy *string
	)
	if err := row.Scan(&o.ID, &o.Code, &o.Email, &o.SourceEventID, &o.SourceProductID, &o.TargetProductID,
		&kind, &o.Discount.Value, &o.ExpiresAt, &o.UsageLimit, &o.UsageCount, &o.ConsumedAt, &consumedBy, &o.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	o.Discount.Kind = model.DiscountKind(kind)
	if consumedBy != nil {
		o.ConsumedByEventID = *consumedBy
	}
	return o, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
