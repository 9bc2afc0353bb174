package order

import (
	"context"

	"templatestore/internal/domain"
)

// Repository persists orders and their payments.
type Repository interface {
	Create(ctx context.Context, o domain.Order) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	// Transition moves a pending order to a terminal status. It reports false
	// when the order was already terminal and returns ErrNotFound when it does
	// not exist.
	Transition(ctx context.Context, id string, to domain.OrderStatus) (bool, error)
	AttachPayment(ctx context.Context, p domain.Payment) (*domain.Payment, error)
	GetPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error)
	RecordVerification(ctx context.Context, reference string, status domain.PaymentStatus, verifiedAmountCents *int64) error
}
