package repository

import (
	"context"
	"time"

	"commerce-access/internal/domain/model"
)

// -----------------------------
// Access grants
// -----------------------------

type AccessGrantRepository interface {
	FindByUserAndProduct(ctx context.Context, tx Tx, userID, productID string) (*model.AccessGrant, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.AccessGrant, error)
	// UpsertExtend creates the (user, product) grant or extends it in a single atomic
	// statement following model.NextExpiry. created reports whether a row was inserted.
	UpsertExtend(ctx context.Context, tx Tx, id string, req model.GrantRequest, now time.Time) (grant *model.AccessGrant, created bool, err error)
	// RecordSource registers that eventID contributed to the product grant.
	// It reports false when the pair was already recorded.
	RecordSource(ctx context.Context, tx Tx, eventID, productID, userID string, at time.Time) (bool, error)
}
