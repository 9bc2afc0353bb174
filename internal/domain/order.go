package domain

import (
	"fmt"
	"time"
)

type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
	OrderFailed  OrderStatus = "failed"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderPaid || s == OrderFailed
}

func (s OrderStatus) String() string { return string(s) }

// ParseOrderStatus validates a persisted status value.
func ParseOrderStatus(v string) (OrderStatus, error) {
	switch s := OrderStatus(v); s {
	case OrderPending, OrderPaid, OrderFailed:
		return s, nil
	}
	return "", fmt.Errorf("unknown order status %q", v)
}

// CanTransition reports whether from -> to is a legal ledger move.
// Only pending orders move, and only to a terminal state.
func CanTransition(from, to OrderStatus) bool {
	return from == OrderPending && to.IsTerminal()
}

// Order is a ledger entry. Its status is not settable directly: new orders
// start pending via NewPendingOrder, persisted ones are rebuilt with
// RestoreOrder, and the ledger moves them with conditional updates.
type Order struct {
	ID                string
	CustomerID        *string
	Email             string
	Cart              Cart
	Discount          *AppliedDiscount
	SubtotalCents     int64
	DiscountCents     int64
	TotalCents        int64
	Currency          string
	GatewayReference  *string
	PaymentVerifiedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	status OrderStatus
}

func (o Order) Status() OrderStatus { return o.status }

// NewPendingOrder snapshots cart, totals and discount into a pending order.
func NewPendingOrder(id string, customerID *string, email string, cart Cart, priced PricedCart, discount *AppliedDiscount) Order {
	var d *AppliedDiscount
	if discount != nil {
		cp := *discount
		d = &cp
	}
	return Order{
		ID:            id,
		CustomerID:    customerID,
		Email:         email,
		Cart:          cart.Clone(),
		Discount:      d,
		SubtotalCents: priced.SubtotalCents,
		DiscountCents: priced.DiscountCents,
		TotalCents:    priced.TotalCents,
		Currency:      priced.Currency,
		status:        OrderPending,
	}
}

// RestoreOrder attaches a persisted status to a row read from storage.
func RestoreOrder(o Order, status string) (Order, error) {
	s, err := ParseOrderStatus(status)
	if err != nil {
		return Order{}, err
	}
	o.status = s
	return o, nil
}

type PaymentStatus string

const (
	PaymentInitialized PaymentStatus = "initialized"
	PaymentVerified    PaymentStatus = "verified"
	PaymentRejected    PaymentStatus = "rejected"
)

// Payment links one gateway reference to exactly one order.
type Payment struct {
	ID                  string
	OrderID             string
	Reference           string
	AmountCents         int64
	Currency            string
	Status              PaymentStatus
	VerifiedAmountCents *int64
	VerifiedAt          *time.Time
	CreatedAt           time.Time
}
