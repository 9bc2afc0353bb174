package ledger

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/google/uuid"

	"templatestore/internal/domain"
)

type orderRepo interface {
	Create(ctx context.Context, o domain.Order) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	Transition(ctx context.Context, id string, to domain.OrderStatus) (bool, error)
	AttachPayment(ctx context.Context, p domain.Payment) (*domain.Payment, error)
}

// Service is the only writer of order status.
type Service struct {
	repo   orderRepo
	logger *log.Logger
	newID  func() string
}

func New(repo orderRepo, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{repo: repo, logger: logger, newID: uuid.NewString}
}

type PendingInput struct {
	Cart       domain.Cart
	Priced     domain.PricedCart
	Discount   *domain.AppliedDiscount
	CustomerID *string
	Email      string
}

// CreatePending records a new pending order snapshotting cart, totals and
// discount.
func (s *Service) CreatePending(ctx context.Context, in PendingInput) (*domain.Order, error) {
	if len(in.Cart.Lines) == 0 {
		return nil, domain.Invalid("cart", "must contain at least one line")
	}
	for _, l := range in.Cart.Lines {
		if l.Quantity <= 0 {
			return nil, domain.Invalid("quantity", "must be positive")
		}
		if l.UnitPriceCents < 0 {
			return nil, domain.Invalid("unitPriceCents", "must not be negative")
		}
	}
	if in.Priced.SubtotalCents != in.Cart.SubtotalCents() {
		return nil, domain.Invalid("subtotal", "does not match cart lines")
	}
	if in.Priced.TotalCents != in.Priced.SubtotalCents-in.Priced.DiscountCents || in.Priced.TotalCents < 0 {
		return nil, domain.Invalid("total", "does not match subtotal and discount")
	}
	if strings.TrimSpace(in.Priced.Currency) == "" {
		return nil, domain.Invalid("currency", "required")
	}

	o := domain.NewPendingOrder(s.newID(), in.CustomerID, strings.TrimSpace(in.Email), in.Cart, in.Priced, in.Discount)
	created, err := s.repo.Create(ctx, o)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("ledger: created order id=%s total_cents=%d currency=%s", created.ID, created.TotalCents, created.Currency)
	return created, nil
}

// MarkPaid moves a pending order to paid. An order that is already terminal is
// left as is and the call succeeds. changed is true only for the caller whose
// update won the transition.
func (s *Service) MarkPaid(ctx context.Context, id string) (changed bool, err error) {
	return s.transition(ctx, id, domain.OrderPaid)
}

// MarkFailed moves a pending order to failed, with the same idempotence as
// MarkPaid.
func (s *Service) MarkFailed(ctx context.Context, id string) (changed bool, err error) {
	return s.transition(ctx, id, domain.OrderFailed)
}

func (s *Service) transition(ctx context.Context, id string, to domain.OrderStatus) (bool, error) {
	changed, err := s.repo.Transition(ctx, id, to)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Printf("ledger: transition id=%s to=%s error=%v", id, to, err)
		}
		return false, err
	}
	if changed {
		s.logger.Printf("ledger: order id=%s pending -> %s", id, to)
	}
	return changed, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetByID(ctx, id)
}

// AttachPayment links a gateway reference to a pending order.
func (s *Service) AttachPayment(ctx context.Context, orderID, reference string) (*domain.Payment, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, domain.Invalid("reference", "required")
	}
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status() != domain.OrderPending {
		return nil, domain.Invalid("order", "payment can only start for a pending order")
	}
	p, err := s.repo.AttachPayment(ctx, domain.Payment{
		OrderID:     o.ID,
		Reference:   reference,
		AmountCents: o.TotalCents,
		Currency:    o.Currency,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("ledger: payment attached order_id=%s reference=%s", o.ID, reference)
	return p, nil
}
