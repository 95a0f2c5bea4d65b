package payment

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// fakeHello is an in-memory HelloPayments API.
type fakeHello struct {
	mu        sync.Mutex
	seq       int
	payments  map[string]hpPayment
	refunds   map[string][]hpRefund
	subs      map[string]hpSubscription
	customers map[string]hpCustomer
	methods   map[string][]hpPaymentMethod
	headers   []http.Header
	// refundDelay slows refund creation to widen race windows.
	refundDelay time.Duration
	srv         *httptest.Server
}

func newFakeHello(t *testing.T) *fakeHello {
	t.Helper()
	f := &fakeHello{
		payments:  map[string]hpPayment{},
		refunds:   map[string][]hpRefund{},
		subs:      map[string]hpSubscription{},
		customers: map[string]hpCustomer{},
		methods:   map[string][]hpPaymentMethod{},
	}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.headers = append(f.headers, req.Header.Clone())
			f.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/payments", f.createPayment)
	r.Get("/payments", f.listPayments)
	r.Get("/payments/{id}", f.getPayment)
	r.Post("/payments/{id}/refunds", f.createRefund)
	r.Get("/payments/{id}/refunds", f.listRefunds)
	r.Post("/customers", f.upsertCustomer)
	r.Put("/customers/{id}", f.upsertCustomer)
	r.Get("/customers/{id}", f.getCustomer)
	r.Delete("/customers/{id}", f.deleteCustomer)
	r.Post("/customers/{id}/payment_methods", f.createMethod)
	r.Get("/customers/{id}/payment_methods", f.listMethods)
	r.Put("/customers/{id}/default_payment_method", f.setDefault)
	r.Post("/subscriptions", f.createSubscription)
	r.Get("/subscriptions/{id}", f.getSubscription)
	r.Post("/subscriptions/{id}/cancel", f.cancelSubscription)
	r.Post("/subscriptions/{id}/pause", f.setSubscriptionStatus("suspended"))
	r.Post("/subscriptions/{id}/resume", f.setSubscriptionStatus("active"))
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeHello) provider(t *testing.T, cfg Config) HelloPayments {
	t.Helper()
	cfg.BaseURL = f.srv.URL
	cfg.HTTPClient = f.srv.Client()
	if cfg.APIKey == "" {
		cfg.APIKey = "hp_test_key"
	}
	h, err := NewHelloPayments(cfg)
	require.NoError(t, err)
	return h
}

func (f *fakeHello) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *fakeHello) lastHeader() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.headers) == 0 {
		return http.Header{}
	}
	return f.headers[len(f.headers)-1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "not_found", "message": "no such resource"}})
}

func (f *fakeHello) seedPayment(p hpPayment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[p.ID] = p
}

func (f *fakeHello) seedSubscription(s hpSubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[s.ID] = s
}

func (f *fakeHello) createPayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount          int64             `json:"amount"`
		Currency        string            `json:"currency"`
		CustomerID      string            `json:"customer_id"`
		PaymentMethodID string            `json:"payment_method_id"`
		Description     string            `json:"description"`
		Metadata        map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]string{"code": "bad_request", "message": err.Error()}})
		return
	}
	f.mu.Lock()
	p := hpPayment{
		ID:            f.nextID("pay"),
		Amount:        body.Amount,
		Currency:      body.Currency,
		Status:        "completed",
		CustomerID:    body.CustomerID,
		PaymentMethod: &hpPaymentMethod{ID: body.PaymentMethodID, CustomerID: body.CustomerID, Type: "card"},
		Description:   body.Description,
		Metadata:      body.Metadata,
		CreatedAt:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.payments[p.ID] = p
	f.mu.Unlock()
	writeJSON(w, http.StatusCreated, p)
}

func (f *fakeHello) getPayment(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	p, ok := f.payments[chi.URLParam(r, "id")]
	f.mu.Unlock()
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (f *fakeHello) listPayments(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := hpList[hpPayment]{Data: []hpPayment{}}
	for _, p := range f.payments {
		if c := r.URL.Query().Get("customer_id"); c != "" && p.CustomerID != c {
			continue
		}
		out.Data = append(out.Data, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *fakeHello) createRefund(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount int64  `json:"amount"`
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if f.refundDelay > 0 {
		time.Sleep(f.refundDelay)
	}
	id := chi.URLParam(r, "id")
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		notFound(w)
		return
	}
	ref := hpRefund{ID: f.nextID("re"), PaymentID: id, Amount: body.Amount, Status: "completed", Reason: body.Reason}
	f.refunds[id] = append(f.refunds[id], ref)
	p.AmountRefunded += body.Amount
	f.payments[id] = p
	writeJSON(w, http.StatusCreated, ref)
}

func (f *fakeHello) listRefunds(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, hpList[hpRefund]{Data: append([]hpRefund{}, f.refunds[chi.URLParam(r, "id")]...)})
}

func (f *fakeHello) upsertCustomer(w http.ResponseWriter, r *http.Request) {
	var body hpCustomer
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	if id := chi.URLParam(r, "id"); id != "" {
		existing, ok := f.customers[id]
		if !ok {
			notFound(w)
			return
		}
		body.ID = id
		body.DefaultPaymentMethodID = existing.DefaultPaymentMethodID
	} else {
		body.ID = f.nextID("cus")
	}
	f.customers[body.ID] = body
	writeJSON(w, http.StatusOK, body)
}

func (f *fakeHello) getCustomer(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	c, ok := f.customers[chi.URLParam(r, "id")]
	f.mu.Unlock()
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (f *fakeHello) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := chi.URLParam(r, "id")
	if _, ok := f.customers[id]; !ok {
		notFound(w)
		return
	}
	delete(f.customers, id)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeHello) createMethod(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	id := chi.URLParam(r, "id")
	if _, ok := f.customers[id]; !ok {
		notFound(w)
		return
	}
	pm := hpPaymentMethod{ID: f.nextID("pm"), CustomerID: id, Type: body.Type}
	if body.Type == "card" {
		pm.Card = &hpCard{Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}
	} else {
		pm.Bank = &hpBank{BankName: "Test Bank", Last4: "6789", AccountType: "checking"}
	}
	f.methods[id] = append(f.methods[id], pm)
	writeJSON(w, http.StatusCreated, pm)
}

func (f *fakeHello) listMethods(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, hpList[hpPaymentMethod]{Data: append([]hpPaymentMethod{}, f.methods[chi.URLParam(r, "id")]...)})
}

func (f *fakeHello) setDefault(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PaymentMethodID string `json:"payment_method_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	id := chi.URLParam(r, "id")
	c, ok := f.customers[id]
	if !ok {
		notFound(w)
		return
	}
	c.DefaultPaymentMethodID = body.PaymentMethodID
	f.customers[id] = c
	writeJSON(w, http.StatusOK, c)
}

func (f *fakeHello) createSubscription(w http.ResponseWriter, r *http.Request) {
	var body hpSubscription
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	body.ID = f.nextID("sub")
	body.Status = "active"
	f.subs[body.ID] = body
	writeJSON(w, http.StatusCreated, body)
}

func (f *fakeHello) getSubscription(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	s, ok := f.subs[chi.URLParam(r, "id")]
	f.mu.Unlock()
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (f *fakeHello) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AtPeriodEnd bool   `json:"at_period_end"`
		Reason      string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	id := chi.URLParam(r, "id")
	s, ok := f.subs[id]
	if !ok {
		notFound(w)
		return
	}
	if body.AtPeriodEnd {
		s.CancelAtPeriodEnd = true
	} else {
		s.Status = "ended"
	}
	s.CancelReason = body.Reason
	f.subs[id] = s
	writeJSON(w, http.StatusOK, s)
}

func (f *fakeHello) setSubscriptionStatus(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := chi.URLParam(r, "id")
		s, ok := f.subs[id]
		if !ok {
			notFound(w)
			return
		}
		s.Status = status
		f.subs[id] = s
		writeJSON(w, http.StatusOK, s)
	}
}
