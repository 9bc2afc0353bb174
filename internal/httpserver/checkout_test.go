package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"templatestore/internal/domain"
	"templatestore/internal/service/checkout"
	"templatestore/internal/service/discount"
)

func withSession(id string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: sessionCookie, Value: id})
	}
}

func cookieValue(rec interface{ Result() *http.Response }, name string) (string, bool) {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func TestApplyDiscount_SavesSessionState(t *testing.T) {
	env := newTestEnv()
	state := domain.SessionDiscountState{Code: "SAVE20", Kind: domain.DiscountBonus}
	env.discounts.res = discount.Result{
		Priced:  domain.PricedCart{Currency: "USD", SubtotalCents: 10000, DiscountCents: 2000, TotalCents: 8000},
		Applied: &domain.AppliedDiscount{Kind: domain.DiscountBonus, Code: "SAVE20", Percent: 20, AmountCents: 2000},
		State:   state,
	}

	rec := serve(env.router(t), http.MethodPost, "/checkout/discount",
		`{"code":"save20","lines":[{"productId":"p1","quantity":1}]}`, withSession("s1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if env.sessions["s1"] != state {
		t.Fatalf("session not saved: %+v", env.sessions["s1"])
	}
	if v, ok := cookieValue(rec, discountCookie); !ok || v != "SAVE20" {
		t.Fatalf("expected discount cookie, got %q", v)
	}
	var body pricedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Priced.TotalCents != 8000 || body.Discount == nil || body.Discount.Percent != 20 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestApplyDiscount_IssuesSessionCookie(t *testing.T) {
	env := newTestEnv()
	env.discounts.res = discount.Result{State: domain.SessionDiscountState{Code: "AFF1", Kind: domain.DiscountAffiliate}}

	rec := serve(env.router(t), http.MethodPost, "/checkout/discount", `{"code":"AFF1","lines":[{"productId":"p1","quantity":1}]}`)
	sid, ok := cookieValue(rec, sessionCookie)
	if !ok || sid == "" {
		t.Fatalf("expected a session cookie")
	}
	if env.sessions[sid].Code != "AFF1" {
		t.Fatalf("state not stored under new session")
	}
}

func TestApplyDiscount_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid code", domain.ErrInvalidCode, http.StatusNotFound},
		{"already applied", domain.ErrAlreadyApplied, http.StatusConflict},
		{"empty code", domain.Invalid("code", "required"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			prev := domain.SessionDiscountState{Code: "OLD", Kind: domain.DiscountBonus}
			env.sessions["s1"] = prev
			env.discounts.err = tt.err
			env.discounts.res = discount.Result{Priced: domain.PricedCart{Currency: "USD", SubtotalCents: 10000, TotalCents: 10000}, State: prev}

			rec := serve(env.router(t), http.MethodPost, "/checkout/discount",
				`{"code":"NOPE","lines":[{"productId":"p1","quantity":1}]}`, withSession("s1"))
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			if env.sessions["s1"] != prev {
				t.Fatalf("session state changed on error")
			}
			if !strings.Contains(rec.Body.String(), `"totalCents":10000`) {
				t.Fatalf("expected baseline totals, got %s", rec.Body.String())
			}
		})
	}
}

func TestApplyDiscount_StaleCodeClearsSession(t *testing.T) {
	env := newTestEnv()
	env.sessions["s1"] = domain.SessionDiscountState{Code: "SAVE20", Kind: domain.DiscountBonus}
	env.discounts.err = domain.ErrInvalidCode
	env.discounts.res = discount.Result{Priced: domain.PricedCart{Currency: "USD", SubtotalCents: 10000, TotalCents: 10000}}

	rec := serve(env.router(t), http.MethodPost, "/checkout/discount",
		`{"code":"SAVE20","lines":[{"productId":"p1","quantity":1}]}`, withSession("s1"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !env.sessions["s1"].IsZero() {
		t.Fatalf("stale code left in session: %+v", env.sessions["s1"])
	}
}

func TestApplyDiscount_BadBody(t *testing.T) {
	rec := serve(newTestEnv().router(t), http.MethodPost, "/checkout/discount", `{`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRemoveDiscount(t *testing.T) {
	env := newTestEnv()
	env.sessions["s1"] = domain.SessionDiscountState{Code: "SAVE20", Kind: domain.DiscountBonus}

	rec := serve(env.router(t), http.MethodDelete, "/checkout/discount", `{"lines":[{"productId":"p1","quantity":2}]}`, withSession("s1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := env.sessions["s1"]; ok {
		t.Fatalf("session state not cleared")
	}
	var body pricedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Priced.TotalCents != 20000 || body.Discount != nil {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestCheckout_UsesSessionDiscount(t *testing.T) {
	env := newTestEnv()
	state := domain.SessionDiscountState{Code: "SAVE20", Kind: domain.DiscountBonus}
	env.sessions["s1"] = state
	env.checkout.res = &checkout.Result{OrderID: "order-1", Reference: "tx_abc123", AuthorizationURL: "https://pay.example/x"}

	rec := serve(env.router(t), http.MethodPost, "/checkout",
		`{"lines":[{"productId":"p1","quantity":1}],"email":"a@example.com"}`, withSession("s1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	if env.checkout.req.Discount != state || env.checkout.req.Email != "a@example.com" {
		t.Fatalf("unexpected checkout request %+v", env.checkout.req)
	}
	if !strings.Contains(rec.Body.String(), `"authorizationUrl":"https://pay.example/x"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if _, ok := env.sessions["s1"]; ok {
		t.Fatalf("discount should move to the order")
	}
}

func TestCheckout_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", domain.Invalid("email", "required"), http.StatusBadRequest},
		{"gateway", domain.External("gateway", http.ErrHandlerTimeout), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.checkout.err = tt.err
			rec := serve(env.router(t), http.MethodPost, "/checkout", `{"lines":[{"productId":"p1","quantity":1}]}`)
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}
