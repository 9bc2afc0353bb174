package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templatestore/internal/domain"
)

type stubOrders struct {
	orders   map[string]domain.Order
	payments []domain.Payment
	created  int
}

func newStubOrders() *stubOrders {
	return &stubOrders{orders: map[string]domain.Order{}}
}

func (s *stubOrders) Create(_ context.Context, o domain.Order) (*domain.Order, error) {
	s.created++
	s.orders[o.ID] = o
	return &o, nil
}

func (s *stubOrders) GetByID(_ context.Context, id string) (*domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &o, nil
}

func (s *stubOrders) Transition(_ context.Context, id string, to domain.OrderStatus) (bool, error) {
	o, ok := s.orders[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !domain.CanTransition(o.Status(), to) {
		return false, nil
	}
	o, _ = domain.RestoreOrder(o, string(to))
	s.orders[id] = o
	return true, nil
}

func (s *stubOrders) AttachPayment(_ context.Context, p domain.Payment) (*domain.Payment, error) {
	for _, existing := range s.payments {
		if existing.OrderID == p.OrderID || existing.Reference == p.Reference {
			return nil, domain.ErrAlreadyExists
		}
	}
	p.Status = domain.PaymentInitialized
	s.payments = append(s.payments, p)
	return &p, nil
}

func validInput() PendingInput {
	cart := domain.Cart{Currency: "USD", Lines: []domain.CartLine{{ProductID: "p1", Quantity: 2, UnitPriceCents: 5000, Digital: true}}}
	return PendingInput{
		Cart:   cart,
		Priced: domain.PricedCart{Currency: "USD", SubtotalCents: 10000, DiscountCents: 2000, TotalCents: 8000},
		Email:  " buyer@example.com ",
	}
}

func newService(repo *stubOrders) *Service {
	svc := New(repo, nil)
	svc.newID = func() string { return "order-1" }
	return svc
}

func TestCreatePending(t *testing.T) {
	repo := newStubOrders()
	svc := newService(repo)

	o, err := svc.CreatePending(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "order-1", o.ID)
	assert.Equal(t, domain.OrderPending, o.Status())
	assert.Equal(t, "buyer@example.com", o.Email)
	assert.Equal(t, int64(8000), o.TotalCents)
}

func TestCreatePending_Validation(t *testing.T) {
	tests := map[string]func(*PendingInput){
		"empty cart":       func(in *PendingInput) { in.Cart.Lines = nil },
		"zero quantity":    func(in *PendingInput) { in.Cart.Lines[0].Quantity = 0 },
		"subtotal drift":   func(in *PendingInput) { in.Priced.SubtotalCents = 1 },
		"total mismatch":   func(in *PendingInput) { in.Priced.TotalCents = 9999 },
		"missing currency": func(in *PendingInput) { in.Priced.Currency = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			repo := newStubOrders()
			in := validInput()
			in.Cart = in.Cart.Clone()
			mutate(&in)
			_, err := newService(repo).CreatePending(context.Background(), in)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Zero(t, repo.created)
		})
	}
}

func TestMarkPaid_IsIdempotentAndNeverReverses(t *testing.T) {
	repo := newStubOrders()
	svc := newService(repo)
	ctx := context.Background()
	o, err := svc.CreatePending(ctx, validInput())
	require.NoError(t, err)

	changed, err := svc.MarkPaid(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.MarkPaid(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, changed, "second mark must not report a transition")

	changed, err = svc.MarkFailed(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, got.Status())
}

func TestMarkFailed_UnknownOrder(t *testing.T) {
	changed, err := newService(newStubOrders()).MarkFailed(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.False(t, changed)
}

func TestAttachPayment(t *testing.T) {
	repo := newStubOrders()
	svc := newService(repo)
	ctx := context.Background()
	o, err := svc.CreatePending(ctx, validInput())
	require.NoError(t, err)

	p, err := svc.AttachPayment(ctx, o.ID, "tx_abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(8000), p.AmountCents)
	assert.Equal(t, "USD", p.Currency)

	_, err = svc.AttachPayment(ctx, o.ID, "tx_second")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = svc.AttachPayment(ctx, o.ID, " ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.MarkFailed(ctx, o.ID)
	require.NoError(t, err)
	repo.payments = nil
	_, err = svc.AttachPayment(ctx, o.ID, "tx_late")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
