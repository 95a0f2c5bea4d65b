package donation

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-giving/internal/common"
	"github.com/noah-isme/backend-giving/internal/fees"
	"github.com/noah-isme/backend-giving/internal/links"
	"github.com/noah-isme/backend-giving/internal/payment"
)

// Handler exposes donation, payment, subscription, link and webhook endpoints.
type Handler struct {
	svc   *Service
	links *links.Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
	Links   *links.Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{svc: cfg.Service, links: cfg.Links}
}

// RouteOptions carries middleware applied to donor-facing writes.
type RouteOptions struct {
	// Idempotency replays responses for repeated Idempotency-Key headers.
	Idempotency func(http.Handler) http.Handler
	// DonationLimit throttles donation submissions.
	DonationLimit func(http.Handler) http.Handler
}

func passthrough(next http.Handler) http.Handler { return next }

// Routes registers the API on r, typically mounted under /api/v1.
func (h *Handler) Routes(r chi.Router, opts RouteOptions) {
	idem := opts.Idempotency
	if idem == nil {
		idem = passthrough
	}
	limit := opts.DonationLimit
	if limit == nil {
		limit = passthrough
	}

	r.With(limit, idem).Post("/donations", h.Donate)
	r.Get("/fees/quote", h.Quote)
	r.Get("/fees/schedule", h.Schedule)

	r.Route("/payments", func(p chi.Router) {
		p.Get("/", h.ListPayments)
		p.Get("/{id}", h.GetPayment)
		p.Get("/{id}/refunds", h.ListRefunds)
		p.With(idem).Post("/{id}/refunds", h.Refund)
	})

	r.Route("/subscriptions/{id}", func(s chi.Router) {
		s.Get("/", h.GetSubscription)
		s.Post("/cancel", h.CancelSubscription)
		s.Post("/pause", h.PauseSubscription)
		s.Post("/resume", h.ResumeSubscription)
	})

	r.Route("/links", func(l chi.Router) {
		l.With(idem).Post("/", h.CreateLink)
		l.Get("/{code}", h.GetLink)
		l.Post("/{code}/disable", h.DisableLink)
		l.Post("/{code}/totals", h.CorrectLinkTotals)
	})

	r.Post("/webhooks/payment/{provider}", h.Webhook)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, toAppError(err))
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "donation service not configured", nil)
		return false
	}
	return true
}

// Donate handles POST /api/v1/donations.
func (h *Handler) Donate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	res, err := h.svc.Donate(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": res})
}

// Quote handles GET /api/v1/fees/quote?amount=&method=&coverFees=.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	q := r.URL.Query()
	amount, err := strconv.ParseInt(strings.TrimSpace(q.Get("amount")), 10, 64)
	if err != nil {
		h.writeError(w, &payment.ValidationError{Field: "amount", Reason: "must be an integer number of cents"})
		return
	}
	method, err := fees.ParseMethod(q.Get("method"))
	if err != nil {
		h.writeError(w, &payment.ValidationError{Field: "method", Reason: err.Error(), Err: err})
		return
	}
	cover, _ := strconv.ParseBool(q.Get("coverFees"))
	quote, err := h.svc.Quote(amount, method, cover)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

type scheduleEntry struct {
	Method      fees.Method `json:"method"`
	Percentage  float64     `json:"percentage"`
	FixedCents  int64       `json:"fixedCents"`
	MaxFeeCents *int64      `json:"maxFeeCents,omitempty"`
	Description string      `json:"description"`
}

// Schedule handles GET /api/v1/fees/schedule.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	schedule := h.svc.Schedule()
	entries := make([]scheduleEntry, 0, len(schedule))
	for method, rule := range schedule {
		entries = append(entries, scheduleEntry{
			Method:      method,
			Percentage:  rule.Percentage,
			FixedCents:  rule.FixedCents,
			MaxFeeCents: rule.MaxFeeCents,
			Description: rule.Description(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Method < entries[j].Method })
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"provider": h.svc.ProviderName(),
		"methods":  entries,
	}})
}

// ListPayments handles GET /api/v1/payments?customerId=&limit=.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	customerID := strings.TrimSpace(r.URL.Query().Get("customerId"))
	if customerID == "" {
		h.writeError(w, &payment.ValidationError{Field: "customerId", Reason: "is required"})
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 20, 100)
	rows, err := h.svc.ListPayments(r.Context(), customerID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// GetPayment handles GET /api/v1/payments/{id}.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	p, err := h.svc.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// ListRefunds handles GET /api/v1/payments/{id}/refunds.
func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	rows, err := h.svc.ListRefunds(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Refund handles POST /api/v1/payments/{id}/refunds.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req RefundRequest
	if err := decodeOptional(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	ref, err := h.svc.Refund(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": ref})
}

// GetSubscription handles GET /api/v1/subscriptions/{id}.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sub, err := h.svc.GetSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sub})
}

type cancelPayload struct {
	CancelImmediately bool   `json:"cancelImmediately"`
	Reason            string `json:"reason"`
}

// CancelSubscription handles POST /api/v1/subscriptions/{id}/cancel.
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload cancelPayload
	if err := decodeOptional(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	sub, err := h.svc.CancelSubscription(r.Context(), chi.URLParam(r, "id"), payment.CancelOptions{
		CancelImmediately: payload.CancelImmediately,
		Reason:            strings.TrimSpace(payload.Reason),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sub})
}

// PauseSubscription handles POST /api/v1/subscriptions/{id}/pause.
func (h *Handler) PauseSubscription(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sub, err := h.svc.PauseSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sub})
}

// ResumeSubscription handles POST /api/v1/subscriptions/{id}/resume.
func (h *Handler) ResumeSubscription(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sub, err := h.svc.ResumeSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sub})
}

func (h *Handler) linksReady(w http.ResponseWriter) bool {
	if h.links == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "payment links not configured", nil)
		return false
	}
	return true
}

// CreateLink handles POST /api/v1/links.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	if !h.linksReady(w) {
		return
	}
	var req links.CreateLinkRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	link, err := h.links.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": link})
}

// GetLink handles GET /api/v1/links/{code}.
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	if !h.linksReady(w) {
		return
	}
	link, err := h.links.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": link})
}

// DisableLink handles POST /api/v1/links/{code}/disable.
func (h *Handler) DisableLink(w http.ResponseWriter, r *http.Request) {
	if !h.linksReady(w) {
		return
	}
	link, err := h.links.Disable(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": link})
}

type totalsPayload struct {
	TotalCollected int64  `json:"totalCollected"`
	DonationCount  int64  `json:"donationCount"`
	Reason         string `json:"reason"`
}

// CorrectLinkTotals handles POST /api/v1/links/{code}/totals.
func (h *Handler) CorrectLinkTotals(w http.ResponseWriter, r *http.Request) {
	if !h.linksReady(w) {
		return
	}
	var payload totalsPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	link, err := h.links.CorrectTotals(r.Context(), chi.URLParam(r, "code"), payload.TotalCollected, payload.DonationCount, payload.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": link})
}

// Webhook handles POST /api/v1/webhooks/payment/{provider}. Verified events
// that are duplicates or unsupported are acknowledged with 200.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	provider := chi.URLParam(r, "provider")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, common.CodeValidationFailed, "payload too large", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "unable to read body", nil)
		return
	}
	res, err := h.svc.HandleWebhook(r.Context(), provider, body, r.Header.Get(payment.SignatureHeader(provider)))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := map[string]any{"received": true, "duplicate": res.Duplicate, "ignored": res.Ignored}
	if res.Event != nil {
		out["eventId"] = res.Event.ID
		out["type"] = res.Event.Type
	}
	common.JSON(w, http.StatusOK, out)
}

// decodeOptional decodes a JSON body when one is present.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return common.DecodeJSON(r, dst)
}
