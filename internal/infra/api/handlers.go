package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/infra/logging"
	"commerce-access/internal/usecase"
)

const maxBodyBytes = 1 << 20

type checkoutRequest struct {
	PaymentID     string `json:"payment_id"`
	ProductID     string `json:"product_id"`
	Email         string `json:"email"`
	BumpProductID string `json:"bump_product_id"`
	CouponCode    string `json:"coupon_code"`
	TermsAccepted bool   `json:"terms_accepted"`
}

// handleCheckout records the pending event of a provider checkout session. The
// declared owner is the authenticated caller; the body cannot name one.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req checkoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	in := usecase.CheckoutRequest{
		EventID:       strings.TrimSpace(req.PaymentID),
		ProductID:     req.ProductID,
		Owner:         model.NoOwner,
		CustomerEmail: req.Email,
		BumpProductID: req.BumpProductID,
		CouponCode:    req.CouponCode,
		TermsAccepted: req.TermsAccepted,
	}
	if c := CallerFrom(ctx); c != nil {
		if _, err := s.d.Users.EnsureUser(ctx, c); err != nil {
			writeError(w, err)
			return
		}
		in.Owner = model.OwnerOf(c.ID)
		if model.NormalizeEmail(in.CustomerEmail) == "" {
			in.CustomerEmail = c.Email
		}
	}

	ev, err := s.d.Payments.StartCheckout(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentEvent(ev))
}

// handleVerify lets the signed-in buyer settle a payment the provider already confirmed.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := CallerFrom(ctx)
	id := chi.URLParam(r, "id")
	ctx = logging.WithEventID(ctx, id)

	if _, err := s.d.Users.EnsureUser(ctx, caller); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.d.Payments.CompletePayment(ctx, id, caller, nil)
	switch {
	case errors.Is(err, domain.ErrPaymentPending) && res != nil:
		writeJSON(w, http.StatusAccepted, completionResponse{Event: toPaymentEvent(res.Event)})
		return
	case err != nil:
		l := logging.With(ctx, s.log)
		l.Warn().Err(err).Msg("verify failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompletion(res))
}

type claimResponse struct {
	ClaimedCount int             `json:"claimed_count"`
	Grants       []grantResponse `json:"grants"`
}

// handleClaim is the auth-event trigger: it mirrors the caller account and converts
// their guest purchases into grants.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := CallerFrom(ctx)

	if _, err := s.d.Users.EnsureUser(ctx, caller); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.d.Claims.ClaimGuestPurchases(ctx, caller.ID, caller.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{ClaimedCount: res.ClaimedCount, Grants: toGrants(res.Grants, time.Now())})
}

func (s *Server) handleMyAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	grants, err := s.d.Access.ListGrants(ctx, CallerFrom(ctx).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"grants": toGrants(grants, time.Now())})
}

// handleOtoPreview validates a one-time offer code for the caller or the email query
// parameter without consuming it.
func (s *Server) handleOtoPreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	email := q.Get("email")
	if c := CallerFrom(ctx); c != nil && model.NormalizeEmail(email) == "" {
		email = c.Email
	}
	if model.NormalizeEmail(email) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "email is required"})
		return
	}
	o, err := s.d.Offers.ValidateOtoOffer(ctx, chi.URLParam(r, "code"), email, q.Get("product_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOffer(o))
}

func (s *Server) handleRunJob(name string, job JobRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if job == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: name + " is not configured"})
			return
		}
		n, err := job.RunOnce(r.Context())
		if err != nil {
			l := logging.With(r.Context(), s.log)
			l.Error().Err(err).Str("job", name).Msg("admin job run failed")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job": name, "processed": n})
	}
}

func (s *Server) handleAdminPayment(w http.ResponseWriter, r *http.Request) {
	ev, err := s.d.Payments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentEvent(ev))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
