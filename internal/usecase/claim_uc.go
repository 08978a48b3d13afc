package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
	"commerce-access/internal/infra/logging"
	"commerce-access/internal/infra/metrics"
)

// Compile-time check
var _ ClaimUseCase = (*claimUC)(nil)

// ClaimResult reports what a claim run converted into grants.
type ClaimResult struct {
	ClaimedCount int
	Grants       []*model.AccessGrant
}

// ClaimUseCase converts guest purchases into grants once the buyer signs in.
type ClaimUseCase interface {
	ClaimGuestPurchases(ctx context.Context, userID, email string) (*ClaimResult, error)
}

type claimUC struct {
	guests repository.GuestPurchaseRepository
	access *accessUC
	tm     repository.TransactionManager
	log    *zerolog.Logger
	now    func() time.Time
}

func NewClaimUseCase(guests repository.GuestPurchaseRepository, access *accessUC, tm repository.TransactionManager, logger *zerolog.Logger) *claimUC {
	return &claimUC{guests: guests, access: access, tm: tm, log: logger, now: time.Now}
}

// ClaimGuestPurchases grants every unclaimed guest purchase of email to userID.
// Each row is claimed in its own transaction so one bad row does not block the rest;
// the first failure is returned next to the partial result.
func (u *claimUC) ClaimGuestPurchases(ctx context.Context, userID, email string) (*ClaimResult, error) {
	defer logging.TraceDuration(u.log, "ClaimUC.ClaimGuestPurchases")()

	email = model.NormalizeEmail(email)
	if userID == "" || email == "" {
		return nil, domain.ErrInvalidArgument
	}
	rows, err := u.guests.ListUnclaimedByEmail(ctx, repository.NoTX, email)
	if err != nil {
		return nil, err
	}

	res := &ClaimResult{}
	var firstErr error
	for _, gp := range rows {
		grant, err := u.claimOne(ctx, userID, gp)
		switch {
		case errors.Is(err, domain.ErrAlreadyClaimed):
			metrics.IncGuestClaim("raced")
		case err != nil:
			metrics.IncGuestClaim("failed")
			u.log.Error().Err(err).
				Str("user_id", userID).
				Str("guest_purchase_id", gp.ID).
				Str("product_id", gp.ProductID).
				Msg("guest claim failed")
			if firstErr == nil {
				firstErr = err
			}
		default:
			metrics.IncGuestClaim("claimed")
			res.ClaimedCount++
			if grant != nil {
				res.Grants = append(res.Grants, grant)
			}
		}
	}
	if res.ClaimedCount > 0 {
		u.log.Info().Str("user_id", userID).Int("claimed", res.ClaimedCount).Msg("guest purchases claimed")
	}
	return res, firstErr
}

func (u *claimUC) claimOne(ctx context.Context, userID string, gp *model.GuestPurchase) (*model.AccessGrant, error) {
	var grant *model.AccessGrant
	err := inSerializableTx(ctx, u.tm, u.log, "claim guest purchase", func(ctx context.Context, tx repository.Tx) error {
		grant = nil
		p, err := u.access.activeProduct(ctx, tx, gp.ProductID)
		if err != nil {
			return err
		}
		ok, err := u.guests.MarkClaimed(ctx, tx, gp.ID, userID, u.now())
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyClaimed
		}
		g, err := u.access.grantTx(ctx, tx, model.GrantRequest{
			UserID:        userID,
			ProductID:     gp.ProductID,
			DurationDays:  p.DurationDays,
			SourceEventID: gp.PaymentEventID,
		})
		if err != nil && !errors.Is(err, domain.ErrAlreadyGranted) {
			return err
		}
		grant = g
		return nil
	})
	return grant, err
}
