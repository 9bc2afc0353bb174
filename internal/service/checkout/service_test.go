package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templatestore/internal/domain"
	"templatestore/internal/gateway"
	"templatestore/internal/service/discount"
	"templatestore/internal/service/ledger"
)

type stubProducts map[string]domain.Product

func (s stubProducts) GetByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	var out []domain.Product
	for _, id := range ids {
		if p, ok := s[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubCustomers map[string]domain.Customer

func (s stubCustomers) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	c, ok := s[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

type stubPricer struct {
	percent int
	state   domain.SessionDiscountState
}

func (p *stubPricer) Reprice(_ context.Context, cart domain.Cart, state domain.SessionDiscountState) (discount.Result, error) {
	p.state = state
	if state.IsZero() {
		return discount.Result{Priced: discount.PriceCart(cart, 0)}, nil
	}
	priced := discount.PriceCart(cart, p.percent)
	return discount.Result{
		Priced:  priced,
		State:   state,
		Applied: &domain.AppliedDiscount{Kind: state.Kind, Code: state.Code, Percent: p.percent, AmountCents: priced.DiscountCents},
	}, nil
}

type stubLedger struct {
	pending  []ledger.PendingInput
	payments map[string]string
}

func (l *stubLedger) CreatePending(_ context.Context, in ledger.PendingInput) (*domain.Order, error) {
	l.pending = append(l.pending, in)
	o := domain.NewPendingOrder("order-1", in.CustomerID, in.Email, in.Cart, in.Priced, in.Discount)
	return &o, nil
}

func (l *stubLedger) AttachPayment(_ context.Context, orderID, ref string) (*domain.Payment, error) {
	if l.payments == nil {
		l.payments = map[string]string{}
	}
	l.payments[ref] = orderID
	return &domain.Payment{OrderID: orderID, Reference: ref}, nil
}

type stubGateway struct {
	req gateway.InitRequest
	err error
}

func (g *stubGateway) Initialize(_ context.Context, in gateway.InitRequest) (*gateway.InitResponse, error) {
	g.req = in
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.InitResponse{AuthorizationURL: "https://pay.example/" + in.Reference, Reference: in.Reference}, nil
}

type fixture struct {
	svc    *Service
	ledger *stubLedger
	gw     *stubGateway
	pricer *stubPricer
}

func newFixture() *fixture {
	products := stubProducts{
		"p1": {ID: "p1", SKU: "TPL-1", Name: "Pitch deck", PriceCents: 5000, Currency: "USD", Digital: true},
		"p2": {ID: "p2", SKU: "TPL-2", Name: "Resume", PriceCents: 0, Currency: "USD", Digital: true},
		"p3": {ID: "p3", SKU: "TPL-3", Name: "Invoice", PriceCents: 900, Currency: "EUR", Digital: true},
	}
	f := &fixture{ledger: &stubLedger{}, gw: &stubGateway{}, pricer: &stubPricer{percent: 20}}
	f.svc = New(products, stubCustomers{"c1": {ID: "c1", Email: "c1@example.com"}}, f.pricer, f.ledger, f.gw, "https://shop.example/payments/callback", nil)
	f.svc.newRef = func() string { return "tx_abc123" }
	return f
}

func TestCheckout(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Checkout(context.Background(), Request{
		Lines:    []LineInput{{ProductID: "p1", Quantity: 1}, {ProductID: "p1", Quantity: 1}},
		Email:    "buyer@example.com",
		Discount: domain.SessionDiscountState{Code: "SAVE20", Kind: domain.DiscountBonus},
	})
	require.NoError(t, err)
	assert.Equal(t, "order-1", res.OrderID)
	assert.Equal(t, "tx_abc123", res.Reference)
	assert.Equal(t, "https://pay.example/tx_abc123", res.AuthorizationURL)
	assert.Equal(t, int64(8000), res.Priced.TotalCents)
	require.NotNil(t, res.Discount)
	assert.Equal(t, "SAVE20", res.Discount.Code)

	require.Len(t, f.ledger.pending, 1)
	in := f.ledger.pending[0]
	require.Len(t, in.Cart.Lines, 1)
	assert.Equal(t, 2, in.Cart.Lines[0].Quantity)
	assert.Equal(t, "order-1", f.ledger.payments["tx_abc123"])

	assert.Equal(t, int64(8000), f.gw.req.AmountCents)
	assert.Equal(t, "order-1", f.gw.req.Metadata["order_id"])
	assert.Equal(t, "https://shop.example/payments/callback", f.gw.req.CallbackURL)
}

func TestCheckout_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"no email", Request{Lines: []LineInput{{ProductID: "p1", Quantity: 1}}}},
		{"bad email", Request{Email: "nope", Lines: []LineInput{{ProductID: "p1", Quantity: 1}}}},
		{"no lines", Request{Email: "a@example.com"}},
		{"zero quantity", Request{Email: "a@example.com", Lines: []LineInput{{ProductID: "p1"}}}},
		{"unknown product", Request{Email: "a@example.com", Lines: []LineInput{{ProductID: "nope", Quantity: 1}}}},
		{"mixed currency", Request{Email: "a@example.com", Lines: []LineInput{{ProductID: "p1", Quantity: 1}, {ProductID: "p3", Quantity: 1}}}},
		{"zero total", Request{Email: "a@example.com", Lines: []LineInput{{ProductID: "p2", Quantity: 1}}}},
		{"unknown customer", Request{Email: "a@example.com", CustomerID: "c9", Lines: []LineInput{{ProductID: "p1", Quantity: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Checkout(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Empty(t, f.ledger.pending)
		})
	}
}

func TestCheckout_GatewayError(t *testing.T) {
	f := newFixture()
	f.gw.err = errors.New("connection refused")

	_, err := f.svc.Checkout(context.Background(), Request{Email: "a@example.com", CustomerID: "c1", Lines: []LineInput{{ProductID: "p1", Quantity: 1}}})
	assert.ErrorIs(t, err, domain.ErrExternalService)
	require.Len(t, f.ledger.pending, 1)
	require.NotNil(t, f.ledger.pending[0].CustomerID)
	assert.Equal(t, "c1", *f.ledger.pending[0].CustomerID)
}

func TestNewReference(t *testing.T) {
	ref := newReference()
	assert.Len(t, ref, 35)
	assert.NotEqual(t, ref, newReference())
}
