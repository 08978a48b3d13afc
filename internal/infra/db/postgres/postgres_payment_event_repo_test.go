//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
)

var serializableOpts = pgx.TxOptions{IsoLevel: pgx.Serializable}

func TestPaymentEventRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewPaymentEventRepo(testPool)
	ctx := context.Background()
	cleanup(t)

	seedProduct(t, "course", model.Days(30), nil)
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("should create and read an event with metadata", func(t *testing.T) {
		meta := model.Metadata{model.BumpMeta{ProductID: "course", Amount: 900}, model.TermsMeta{Accepted: true}}
		ev, err := model.NewPendingPaymentEvent("cs_meta", "course", model.OwnerOf("u-1"), "Buyer@Example.com", 5800, "USD", meta, now, time.Hour)
		if err != nil {
			t.Fatalf("NewPendingPaymentEvent failed: %v", err)
		}
		if err := repo.Create(ctx, repository.NoTX, ev); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		got, err := repo.FindByID(ctx, repository.NoTX, "cs_meta")
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if got.Owner.String() != "u-1" || got.CustomerEmail != "buyer@example.com" || got.Status != model.PaymentStatusPending {
			t.Errorf("unexpected event %+v", got)
		}
		if bump, ok := got.Metadata.Bump(); !ok || bump.Amount != 900 {
			t.Errorf("bump metadata lost: %+v", got.Metadata)
		}
	})

	t.Run("duplicate provider id is rejected", func(t *testing.T) {
		ev, _ := model.NewPendingPaymentEvent("cs_meta", "course", model.NoOwner, "x@example.com", 100, "USD", nil, now, time.Hour)
		if err := repo.Create(ctx, repository.NoTX, ev); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("guest event stores no owner", func(t *testing.T) {
		seedEvent(t, "cs_guest", "course", "guest@example.com", model.ParseOwnerID("null"), now)
		got, err := repo.FindByID(ctx, repository.NoTX, "cs_guest")
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if got.Owner.Present() {
			t.Errorf("expected no owner, got %q", got.Owner.String())
		}
	})

	t.Run("transition is compare-and-set on pending", func(t *testing.T) {
		ok, err := repo.TransitionFromPending(ctx, repository.NoTX, "cs_guest", model.PaymentStatusCompleted, now)
		if err != nil || !ok {
			t.Fatalf("expected transition, got %v, %v", ok, err)
		}
		ok, err = repo.TransitionFromPending(ctx, repository.NoTX, "cs_guest", model.PaymentStatusFailed, now)
		if err != nil || ok {
			t.Fatalf("expected second transition to lose, got %v, %v", ok, err)
		}
		got, _ := repo.FindByID(ctx, repository.NoTX, "cs_guest")
		if got.Status != model.PaymentStatusCompleted || got.CompletedAt == nil {
			t.Errorf("expected completed with timestamp, got %+v", got)
		}
		if _, err := repo.TransitionFromPending(ctx, repository.NoTX, "cs_guest", model.PaymentStatusPending, now); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for pending target, got %v", err)
		}
	})

	t.Run("unfulfilled events are listed until marked", func(t *testing.T) {
		list, err := repo.ListUnfulfilled(ctx, repository.NoTX, now.Add(time.Minute), 10)
		if err != nil {
			t.Fatalf("ListUnfulfilled failed: %v", err)
		}
		if len(list) != 1 || list[0].ID != "cs_guest" {
			t.Fatalf("expected cs_guest to be unfulfilled, got %d events", len(list))
		}
		if err := repo.MarkFulfilled(ctx, repository.NoTX, "cs_guest", now); err != nil {
			t.Fatalf("MarkFulfilled failed: %v", err)
		}
		if err := repo.MarkFulfilled(ctx, repository.NoTX, "cs_guest", now.Add(time.Hour)); err != nil {
			t.Fatalf("second MarkFulfilled failed: %v", err)
		}
		got, _ := repo.FindByID(ctx, repository.NoTX, "cs_guest")
		if got.FulfilledAt == nil || !got.FulfilledAt.Equal(now) {
			t.Errorf("expected first fulfilled stamp to stick, got %v", got.FulfilledAt)
		}
		list, _ = repo.ListUnfulfilled(ctx, repository.NoTX, now.Add(time.Minute), 10)
		if len(list) != 0 {
			t.Errorf("expected no unfulfilled events, got %d", len(list))
		}
	})

	t.Run("refund total is stored on completed events only", func(t *testing.T) {
		if err := repo.SetRefundedAmount(ctx, repository.NoTX, "cs_guest", 1000); err != nil {
			t.Fatalf("SetRefundedAmount failed: %v", err)
		}
		if err := repo.SetRefundedAmount(ctx, repository.NoTX, "cs_meta", 100); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for pending event, got %v", err)
		}
	})

	t.Run("sweep abandons only expired pending events", func(t *testing.T) {
		seedEvent(t, "cs_old", "course", "old@example.com", model.NoOwner, now.Add(-2*time.Hour))
		ids, err := repo.MarkExpiredPending(ctx, repository.NoTX, now)
		if err != nil {
			t.Fatalf("MarkExpiredPending failed: %v", err)
		}
		if len(ids) != 1 || ids[0] != "cs_old" {
			t.Fatalf("expected cs_old abandoned, got %v", ids)
		}
		old, _ := repo.FindByID(ctx, repository.NoTX, "cs_old")
		if old.Status != model.PaymentStatusAbandoned || old.AbandonedAt == nil {
			t.Errorf("expected abandoned, got %+v", old)
		}
		fresh, _ := repo.FindByID(ctx, repository.NoTX, "cs_meta")
		if fresh.Status != model.PaymentStatusPending {
			t.Errorf("fresh pending event must stay pending, got %s", fresh.Status)
		}
		completed, _ := repo.FindByID(ctx, repository.NoTX, "cs_guest")
		if completed.Status != model.PaymentStatusCompleted {
			t.Errorf("completed event must not be swept, got %s", completed.Status)
		}
	})

	t.Run("missing event", func(t *testing.T) {
		if _, err := repo.FindByID(ctx, repository.NoTX, "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
