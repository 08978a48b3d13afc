package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/usecase"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOwnerMismatch), errors.Is(err, domain.ErrEmailMismatch):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidDuration), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExpiredOffer):
		return http.StatusGone
	case errors.Is(err, domain.ErrUsageExhausted),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAmountMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPaymentPending):
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// writeError hides internal causes behind a generic message.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

type paymentEventResponse struct {
	ID             string     `json:"id"`
	ProductID      string     `json:"product_id"`
	Status         string     `json:"status"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	RefundedAmount int64      `json:"refunded_amount"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Fulfilled      bool       `json:"fulfilled"`
}

func toPaymentEvent(ev *model.PaymentEvent) paymentEventResponse {
	return paymentEventResponse{
		ID:             ev.ID,
		ProductID:      ev.ProductID,
		Status:         string(ev.Status),
		Amount:         ev.Amount,
		Currency:       ev.Currency,
		RefundedAmount: ev.RefundedAmount,
		ExpiresAt:      ev.ExpiresAt,
		Fulfilled:      ev.FulfilledAt != nil,
	}
}

type grantResponse struct {
	ProductID string     `json:"product_id"`
	ExpiresAt *time.Time `json:"expires_at"`
	Unlimited bool       `json:"unlimited"`
	Active    bool       `json:"active"`
}

func toGrants(gs []*model.AccessGrant, now time.Time) []grantResponse {
	out := make([]grantResponse, 0, len(gs))
	for _, g := range gs {
		if g == nil {
			continue
		}
		out = append(out, grantResponse{ProductID: g.ProductID, ExpiresAt: g.ExpiresAt, Unlimited: g.Unlimited(), Active: g.Active(now)})
	}
	return out
}

type fulfillmentResponse struct {
	ProductID string         `json:"product_id"`
	Grant     *grantResponse `json:"grant,omitempty"`
	Guest     bool           `json:"guest"`
}

func toFulfillment(f *usecase.Fulfillment) *fulfillmentResponse {
	if f == nil {
		return nil
	}
	out := &fulfillmentResponse{ProductID: f.ProductID, Guest: f.Guest != nil}
	if f.Grant != nil {
		g := toGrants([]*model.AccessGrant{f.Grant}, time.Now())[0]
		out.Grant = &g
	}
	return out
}

type offerResponse struct {
	Code            string    `json:"code"`
	TargetProductID string    `json:"target_product_id"`
	DiscountKind    string    `json:"discount_kind"`
	DiscountValue   int64     `json:"discount_value"`
	ExpiresAt       time.Time `json:"expires_at"`
	Remaining       int       `json:"remaining_uses"`
}

func toOffer(o *model.OtoOffer) *offerResponse {
	if o == nil {
		return nil
	}
	remaining := o.UsageLimit - o.UsageCount
	if remaining < 0 {
		remaining = 0
	}
	return &offerResponse{
		Code:            o.Code,
		TargetProductID: o.TargetProductID,
		DiscountKind:    string(o.Discount.Kind),
		DiscountValue:   o.Discount.Value,
		ExpiresAt:       o.ExpiresAt,
		Remaining:       remaining,
	}
}

type completionResponse struct {
	Event paymentEventResponse `json:"event"`
	Main  *fulfillmentResponse `json:"main,omitempty"`
	Bump  *fulfillmentResponse `json:"bump,omitempty"`
	Offer *offerResponse       `json:"offer,omitempty"`
}

func toCompletion(res *usecase.CompletionResult) completionResponse {
	return completionResponse{
		Event: toPaymentEvent(res.Event),
		Main:  toFulfillment(res.Main),
		Bump:  toFulfillment(res.Bump),
		Offer: toOffer(res.Offer),
	}
}
