package checkout

import (
	"context"
	"errors"
	"io"
	"log"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"templatestore/internal/domain"
	"templatestore/internal/gateway"
	"templatestore/internal/service/discount"
	"templatestore/internal/service/ledger"
)

type productRepo interface {
	GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}

type customerRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
}

type pricer interface {
	Reprice(ctx context.Context, cart domain.Cart, state domain.SessionDiscountState) (discount.Result, error)
}

type orderLedger interface {
	CreatePending(ctx context.Context, in ledger.PendingInput) (*domain.Order, error)
	AttachPayment(ctx context.Context, orderID, reference string) (*domain.Payment, error)
}

type Initializer interface {
	Initialize(ctx context.Context, in gateway.InitRequest) (*gateway.InitResponse, error)
}

type LineInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Request struct {
	Lines      []LineInput
	Email      string
	CustomerID string
	Discount   domain.SessionDiscountState
}

type Result struct {
	OrderID          string                  `json:"orderId"`
	Reference        string                  `json:"reference"`
	AuthorizationURL string                  `json:"authorizationUrl"`
	Priced           domain.PricedCart       `json:"priced"`
	Discount         *domain.AppliedDiscount `json:"discount,omitempty"`
}

// Service turns a shopper's selection into a pending order with a payment
// reference and starts the gateway transaction.
type Service struct {
	products    productRepo
	customers   customerRepo
	pricer      pricer
	ledger      orderLedger
	gateway     Initializer
	callbackURL string
	logger      *log.Logger
	newRef      func() string
}

func New(products productRepo, customers customerRepo, pricer pricer, ledger orderLedger, gw Initializer, callbackURL string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{
		products:    products,
		customers:   customers,
		pricer:      pricer,
		ledger:      ledger,
		gateway:     gw,
		callbackURL: callbackURL,
		logger:      logger,
		newRef:      newReference,
	}
}

func newReference() string {
	return "tx_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, domain.Invalid("email", "required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.Invalid("email", "invalid address")
	}

	var customerID *string
	if id := strings.TrimSpace(req.CustomerID); id != "" {
		if _, err := s.customers.GetByID(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.Invalid("customerId", "unknown customer")
			}
			return nil, err
		}
		customerID = &id
	}

	cart, err := s.buildCart(ctx, req.Lines)
	if err != nil {
		return nil, err
	}
	priced, err := s.pricer.Reprice(ctx, cart, req.Discount)
	if err != nil {
		return nil, err
	}
	if priced.Priced.TotalCents <= 0 {
		return nil, domain.Invalid("total", "must be positive")
	}

	order, err := s.ledger.CreatePending(ctx, ledger.PendingInput{
		Cart:       cart,
		Priced:     priced.Priced,
		Discount:   priced.Applied,
		CustomerID: customerID,
		Email:      email,
	})
	if err != nil {
		return nil, err
	}

	ref := s.newRef()
	if _, err := s.ledger.AttachPayment(ctx, order.ID, ref); err != nil {
		return nil, err
	}

	started, err := s.gateway.Initialize(ctx, gateway.InitRequest{
		Email:       email,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Reference:   ref,
		CallbackURL: s.callbackURL,
		Metadata:    map[string]string{"order_id": order.ID},
	})
	if err != nil {
		s.logger.Printf("checkout: initialize order_id=%s reference=%s error=%v", order.ID, ref, err)
		return nil, domain.External("gateway", err)
	}
	s.logger.Printf("checkout: started order_id=%s reference=%s total_cents=%d", order.ID, ref, order.TotalCents)

	return &Result{
		OrderID:          order.ID,
		Reference:        ref,
		AuthorizationURL: started.AuthorizationURL,
		Priced:           priced.Priced,
		Discount:         priced.Applied,
	}, nil
}

// CartFor prices lines without creating an order.
func (s *Service) CartFor(ctx context.Context, lines []LineInput) (domain.Cart, error) {
	return s.buildCart(ctx, lines)
}

// buildCart snapshots catalog prices for the requested lines. Repeated
// products are merged into one line.
func (s *Service) buildCart(ctx context.Context, in []LineInput) (domain.Cart, error) {
	if len(in) == 0 {
		return domain.Cart{}, domain.Invalid("lines", "must contain at least one line")
	}
	qty := make(map[string]int, len(in))
	var order []string
	for _, l := range in {
		id := strings.TrimSpace(l.ProductID)
		if id == "" {
			return domain.Cart{}, domain.Invalid("productId", "required")
		}
		if l.Quantity <= 0 {
			return domain.Cart{}, domain.Invalid("quantity", "must be positive")
		}
		if _, ok := qty[id]; !ok {
			order = append(order, id)
		}
		qty[id] += l.Quantity
	}

	products, err := s.products.GetByIDs(ctx, order)
	if err != nil {
		return domain.Cart{}, err
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var cart domain.Cart
	for _, id := range order {
		p, ok := byID[id]
		if !ok {
			return domain.Cart{}, domain.Invalid("productId", "unknown product "+id)
		}
		if cart.Currency == "" {
			cart.Currency = p.Currency
		} else if !strings.EqualFold(cart.Currency, p.Currency) {
			return domain.Cart{}, domain.Invalid("currency", "cart mixes currencies")
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID:      p.ID,
			SKU:            p.SKU,
			Name:           p.Name,
			Quantity:       qty[id],
			UnitPriceCents: p.PriceCents,
			Digital:        p.Digital,
		})
	}
	return cart, nil
}
