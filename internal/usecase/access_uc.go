package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
	"commerce-access/internal/infra/logging"
	"commerce-access/internal/infra/metrics"
)

// Compile-time check
var _ AccessUseCase = (*accessUC)(nil)

// AccessUseCase is the single write path for access grants.
type AccessUseCase interface {
	// GrantAccess creates or extends the (user, product) grant for the payment event
	// named in req. Granting the same event twice is a no-op returning the current grant.
	GrantAccess(ctx context.Context, req model.GrantRequest) (*model.AccessGrant, error)
	HasAccess(ctx context.Context, userID, productID string) (bool, error)
	ListGrants(ctx context.Context, userID string) ([]*model.AccessGrant, error)
}

type accessUC struct {
	grants   repository.AccessGrantRepository
	users    repository.UserRepository
	products repository.ProductRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger
	now      func() time.Time
}

func NewAccessUseCase(
	grants repository.AccessGrantRepository,
	users repository.UserRepository,
	products repository.ProductRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *accessUC {
	return &accessUC{
		grants:   grants,
		users:    users,
		products: products,
		tm:       tm,
		log:      logger,
		now:      time.Now,
	}
}

func (u *accessUC) GrantAccess(ctx context.Context, req model.GrantRequest) (*model.AccessGrant, error) {
	defer logging.TraceDuration(u.log, "AccessUC.GrantAccess")()

	var grant *model.AccessGrant
	err := inSerializableTx(ctx, u.tm, u.log, "grant access", func(ctx context.Context, tx repository.Tx) error {
		g, err := u.grantTx(ctx, tx, req)
		if errors.Is(err, domain.ErrAlreadyGranted) {
			err = nil
		}
		grant = g
		return err
	})
	if err != nil {
		metrics.IncAccessGrant("failed")
		return nil, err
	}
	return grant, nil
}

// grantTx is the transactional core of GrantAccess, shared with the claim and
// fulfillment flows so their ledger updates commit together with the grant.
// It returns domain.ErrAlreadyGranted together with the current grant (possibly nil)
// when the source event was already applied to this product.
func (u *accessUC) grantTx(ctx context.Context, tx repository.Tx, req model.GrantRequest) (*model.AccessGrant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := u.users.FindByID(ctx, tx, req.UserID); err != nil {
		return nil, fmt.Errorf("grant access: user %s: %w", req.UserID, err)
	}
	if _, err := u.activeProduct(ctx, tx, req.ProductID); err != nil {
		return nil, err
	}

	now := u.now()
	fresh, err := u.grants.RecordSource(ctx, tx, req.SourceEventID, req.ProductID, req.UserID, now)
	if err != nil {
		return nil, err
	}
	if !fresh {
		existing, err := u.grants.FindByUserAndProduct(ctx, tx, req.UserID, req.ProductID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		metrics.IncAccessGrant("duplicate")
		return existing, domain.ErrAlreadyGranted
	}

	grant, created, err := u.grants.UpsertExtend(ctx, tx, uuid.NewString(), req, now)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.IncAccessGrant("created")
	} else {
		metrics.IncAccessGrant("extended")
	}
	u.log.Info().
		Str("user_id", req.UserID).
		Str("product_id", req.ProductID).
		Str("source_event_id", req.SourceEventID).
		Bool("created", created).
		Bool("unlimited", grant.Unlimited()).
		Msg("access granted")
	return grant, nil
}

// grantProductTx grants productID using the catalog duration of the product.
func (u *accessUC) grantProductTx(ctx context.Context, tx repository.Tx, userID, productID, sourceEventID string) (*model.AccessGrant, error) {
	p, err := u.activeProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	return u.grantTx(ctx, tx, model.GrantRequest{
		UserID:        userID,
		ProductID:     productID,
		DurationDays:  p.DurationDays,
		SourceEventID: sourceEventID,
	})
}

func (u *accessUC) activeProduct(ctx context.Context, tx repository.Tx, productID string) (*model.Product, error) {
	p, err := u.products.FindByID(ctx, tx, productID)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", productID, err)
	}
	if !p.Active {
		return nil, fmt.Errorf("product %s is inactive: %w", productID, domain.ErrNotFound)
	}
	return p, nil
}

func (u *accessUC) HasAccess(ctx context.Context, userID, productID string) (bool, error) {
	defer logging.TraceDuration(u.log, "AccessUC.HasAccess")()
	g, err := u.grants.FindByUserAndProduct(ctx, repository.NoTX, userID, productID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.Active(u.now()), nil
}

func (u *accessUC) ListGrants(ctx context.Context, userID string) ([]*model.AccessGrant, error) {
	defer logging.TraceDuration(u.log, "AccessUC.ListGrants")()
	return u.grants.ListByUser(ctx, repository.NoTX, userID)
}
