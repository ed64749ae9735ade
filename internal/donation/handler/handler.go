package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aidledger/internal/donation/models"
	"aidledger/internal/platform/middleware"
	"aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/httputil"
	"aidledger/pkg/requestcontext"
)

// Service defines the transition engine operations the handler needs.
type Service interface {
	Request(ctx context.Context, caller domain.AccountID, partner string, amount uint64, beneficiary domain.AccountID) (domain.DonationID, error)
	Approve(ctx context.Context, caller domain.AccountID, id domain.DonationID, approverLabel string, attachedValue uint64) error
	IssueVoucher(ctx context.Context, caller domain.AccountID, id domain.DonationID, merchantLabel string, value uint64) error
	UseVoucher(ctx context.Context, caller domain.AccountID, id domain.DonationID, merchantLabel string, merchantAccount domain.AccountID) error
	Redeem(ctx context.Context, caller domain.AccountID, id domain.DonationID) error
	Fetch(ctx context.Context, id domain.DonationID) (*models.Donation, error)
	FetchVoucher(ctx context.Context, id domain.DonationID) (*models.Voucher, models.State, error)
}

// AuditReader exposes the per-donation transition trail.
type AuditReader interface {
	List(ctx context.Context, id domain.DonationID) ([]audit.Event, error)
}

// Handler wires the donation lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	donations Service
	trail     AuditReader
	validator middleware.TokenValidator
}

func New(donations Service, trail AuditReader, validator middleware.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		donations: donations,
		trail:     trail,
		validator: validator,
	}
}

// Register mounts the donation routes. Every route requires a caller
// identity; the registry has no anonymous operations.
func (h *Handler) Register(r chi.Router) {
	dr := chi.NewRouter()
	dr.Use(middleware.RequireAuth(h.validator, h.logger))
	dr.Post("/donations", h.handleRequestDonation)
	dr.Get("/donations/{id}", h.handleFetchDonation)
	dr.Get("/donations/{id}/voucher", h.handleFetchVoucher)
	dr.Get("/donations/{id}/audit", h.handleAuditTrail)
	dr.Post("/donations/{id}/approve", h.handleApprove)
	dr.Post("/donations/{id}/voucher", h.handleIssueVoucher)
	dr.Post("/donations/{id}/voucher/use", h.handleUseVoucher)
	dr.Post("/donations/{id}/voucher/redeem", h.handleRedeem)

	r.Mount("/", dr)
}

func (h *Handler) handleRequestDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	var req requestDonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	id, err := h.donations.Request(ctx, caller, req.ImplementingPartner, req.Amount, domain.AccountID(req.Beneficiary))
	if err != nil {
		h.writeServiceError(ctx, w, "request donation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createdResponse{ID: uint64(id)})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}
	id, ok := h.donationID(w, r)
	if !ok {
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.donations.Approve(ctx, caller, id, req.ApproverLabel, req.AttachedValue); err != nil {
		h.writeServiceError(ctx, w, "approve donation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleIssueVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}
	id, ok := h.donationID(w, r)
	if !ok {
		return
	}

	var req issueVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.donations.IssueVoucher(ctx, caller, id, req.MerchantLabel, req.Value); err != nil {
		h.writeServiceError(ctx, w, "issue voucher", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUseVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}
	id, ok := h.donationID(w, r)
	if !ok {
		return
	}

	var req useVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.donations.UseVoucher(ctx, caller, id, req.MerchantLabel, domain.AccountID(req.MerchantAccount)); err != nil {
		h.writeServiceError(ctx, w, "use voucher", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}
	id, ok := h.donationID(w, r)
	if !ok {
		return
	}

	if err := h.donations.Redeem(ctx, caller, id); err != nil {
		h.writeServiceError(ctx, w, "redeem voucher", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFetchDonation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.donationID(w, r)
	if !ok {
		return
	}

	d, err := h.donations.Fetch(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "fetch donation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDonationResponse(d))
}

func (h *Handler) handleFetchVoucher(w http.ResponseWriter, r *http.Request) {
	id, ok := h.donationID(w, r)
	if !ok {
		return
	}

	v, state, err := h.donations.FetchVoucher(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "fetch voucher", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVoucherResponse(v, state))
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.donationID(w, r)
	if !ok {
		return
	}

	events, err := h.trail.List(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "list audit trail", err)
		return
	}
	out := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toAuditEventResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// caller extracts the authenticated identity. RequireAuth guarantees it is
// present; a missing identity here is a wiring bug.
func (h *Handler) caller(ctx context.Context, w http.ResponseWriter) (domain.AccountID, bool) {
	caller := requestcontext.AccountID(ctx)
	if caller.IsZero() {
		h.logger.ErrorContext(ctx, "account missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return "", false
	}
	return caller, true
}

func (h *Handler) donationID(w http.ResponseWriter, r *http.Request) (domain.DonationID, bool) {
	id, err := domain.ParseDonationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid donation id"))
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+op,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		h.logger.WarnContext(ctx, "rejected "+op,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
