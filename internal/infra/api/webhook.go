package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"commerce-access/internal/domain"
	"commerce-access/internal/infra/logging"
	"commerce-access/internal/infra/metrics"
	"commerce-access/internal/usecase"
)

const (
	webhookCompleted = "payment.completed"
	webhookFailed    = "payment.failed"
	webhookExpired   = "payment.expired"
	webhookRefunded  = "payment.refunded"
)

type webhookEnvelope struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data webhookData `json:"data"`
}

type webhookData struct {
	PaymentID    string              `json:"payment_id"`
	Amount       decimal.NullDecimal `json:"amount"`
	Currency     string              `json:"currency"`
	RefundAmount decimal.NullDecimal `json:"refund_amount"`
}

// handleWebhook applies provider payment events. Redeliveries are safe: the use
// cases are idempotent and handled deliveries are short-circuited when remembered.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	evType, result := "unknown", "ok"
	defer func() {
		metrics.WebhookRequests.WithLabelValues(evType, result).Inc()
		metrics.WebhookDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	var env webhookEnvelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&env); err != nil {
		result = "bad_json"
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return
	}
	if env.ID == "" || env.Data.PaymentID == "" {
		result = "bad_json"
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id and data.payment_id are required"})
		return
	}
	switch env.Type {
	case webhookCompleted, webhookFailed, webhookExpired, webhookRefunded:
		evType = env.Type
	default:
		result = "unknown_type"
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	ctx := logging.WithEventID(r.Context(), env.Data.PaymentID)
	l := logging.With(ctx, s.log)
	if s.d.Seen != nil && s.d.Seen.Seen(ctx, env.ID) {
		result = "duplicate"
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	err := s.dispatchWebhook(ctx, env)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidTransition) && env.Type == webhookCompleted:
		// paid after the event failed or was abandoned; acked, but money moved with no grant
		result = "late_completion"
		l.Error().Err(err).Bool("late_completion", true).Str("webhook_id", env.ID).Msg("payment confirmed after leaving pending")
	case errors.Is(err, domain.ErrInvalidTransition):
		// terminal states are final; acknowledge so the provider stops redelivering
		result = "ignored"
		l.Warn().Err(err).Str("type", env.Type).Msg("webhook conflicts with payment state")
	default:
		result = webhookResult(err)
		l.Error().Err(err).Str("type", env.Type).Str("webhook_id", env.ID).Msg("webhook processing failed")
		writeError(w, err)
		return
	}

	if s.d.Seen != nil {
		if err := s.d.Seen.Mark(ctx, env.ID); err != nil {
			l.Warn().Err(err).Msg("could not remember webhook delivery")
		}
	}
	status := "processed"
	if result == "ignored" || result == "late_completion" {
		status = "ignored"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) dispatchWebhook(ctx context.Context, env webhookEnvelope) error {
	id := env.Data.PaymentID
	switch env.Type {
	case webhookCompleted:
		if !env.Data.Amount.Valid {
			return fmt.Errorf("data.amount is required: %w", domain.ErrInvalidArgument)
		}
		amount, err := toMinorUnits(env.Data.Amount.Decimal, env.Data.Currency)
		if err != nil {
			return err
		}
		_, err = s.d.Payments.CompletePayment(ctx, id, nil, &usecase.ProviderConfirmation{Amount: amount, Currency: env.Data.Currency})
		return err
	case webhookFailed:
		_, err := s.d.Payments.FailPayment(ctx, id)
		return err
	case webhookExpired:
		_, err := s.d.Payments.ExpirePayment(ctx, id)
		return err
	case webhookRefunded:
		if !env.Data.RefundAmount.Valid {
			return fmt.Errorf("data.refund_amount is required: %w", domain.ErrInvalidArgument)
		}
		currency := env.Data.Currency
		if currency == "" {
			ev, err := s.d.Payments.Get(ctx, id)
			if err != nil {
				return err
			}
			currency = ev.Currency
		}
		total, err := toMinorUnits(env.Data.RefundAmount.Decimal, currency)
		if err != nil {
			return err
		}
		_, err = s.d.Payments.RecordRefund(ctx, id, total)
		return err
	}
	return domain.ErrInvalidArgument
}

func webhookResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "bad_request"
	default:
		return "error"
	}
}

// minorExponent returns the number of decimal places of currency; 2 unless listed.
func minorExponent(currency string) int32 {
	switch strings.ToUpper(currency) {
	case "JPY", "KRW", "VND", "CLP", "ISK", "UGX", "XAF", "XOF":
		return 0
	case "BHD", "JOD", "KWD", "OMR", "TND":
		return 3
	default:
		return 2
	}
}

// toMinorUnits converts a provider decimal amount, e.g. "19.99", to minor units.
// Negative values and fractions below the minor unit are rejected.
func toMinorUnits(d decimal.Decimal, currency string) (int64, error) {
	m := d.Shift(minorExponent(currency))
	if m.IsNegative() || !m.IsInteger() {
		return 0, fmt.Errorf("amount %s %s: %w", d.String(), currency, domain.ErrInvalidArgument)
	}
	return m.IntPart(), nil
}
