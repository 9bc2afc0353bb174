package discount

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"templatestore/internal/domain"
)

type codeRepo interface {
	CodeSource
	IncrementAffiliateClicks(ctx context.Context, id string) error
	IncrementReferralClicks(ctx context.Context, id string) error
}

// Service applies and re-validates session discount codes.
type Service struct {
	codes           codeRepo
	customerPercent int
	logger          *log.Logger
	now             func() time.Time
}

func New(codes codeRepo, customerPercent int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{codes: codes, customerPercent: customerPercent, logger: logger, now: time.Now}
}

// Apply attaches code to the session described by state. Applying the code
// already attached returns ErrAlreadyApplied with the current totals. If the
// attached code has gone stale it is dropped and code is resolved afresh, so
// the result never pairs a stale code with baseline totals.
func (s *Service) Apply(ctx context.Context, cart domain.Cart, code string, state domain.SessionDiscountState) (Result, error) {
	res, err := Resolve(ctx, s.codes, s.customerPercent, Request{Cart: cart, Code: code, State: state, Now: s.now()})
	if errors.Is(err, domain.ErrAlreadyApplied) {
		current, repriceErr := s.Reprice(ctx, cart, state)
		if repriceErr != nil {
			return res, repriceErr
		}
		if current.State.IsZero() {
			return s.Apply(ctx, cart, code, domain.SessionDiscountState{})
		}
		return current, err
	}
	if err != nil {
		return res, err
	}
	s.recordClick(ctx, res.Match)
	s.logger.Printf("discount: applied kind=%s code=%s percent=%d", res.Applied.Kind, res.Applied.Code, res.Applied.Percent)
	return res, nil
}

// Remove clears the session discount. The result carries the zero state and
// baseline totals for cart.
func (s *Service) Remove(cart domain.Cart) Result {
	return Result{Priced: PriceCart(cart, 0)}
}

// Reprice re-validates the attached code without side effects. A code that is
// no longer usable is dropped and the cart is priced at baseline.
func (s *Service) Reprice(ctx context.Context, cart domain.Cart, state domain.SessionDiscountState) (Result, error) {
	if state.IsZero() {
		return Result{Priced: PriceCart(cart, 0)}, nil
	}
	match, err := s.lookupKind(ctx, state)
	if err != nil {
		return Result{}, err
	}
	if match == nil || !match.Usable(s.now()) {
		s.logger.Printf("discount: dropped stale code=%s kind=%s", state.Code, state.Kind)
		return Result{Priced: PriceCart(cart, 0)}, nil
	}
	return Apply(cart, match, s.customerPercent), nil
}

func (s *Service) lookupKind(ctx context.Context, state domain.SessionDiscountState) (domain.DiscountCode, error) {
	switch state.Kind {
	case domain.DiscountBonus:
		c, err := s.codes.FindBonus(ctx, state.Code)
		return found(c, err)
	case domain.DiscountAffiliate:
		c, err := s.codes.FindAffiliate(ctx, state.Code)
		return found(c, err)
	case domain.DiscountReferral:
		c, err := s.codes.FindReferral(ctx, state.Code)
		return found(c, err)
	}
	return nil, nil
}

// recordClick bumps the owner's click counter. Failures never fail the apply.
func (s *Service) recordClick(ctx context.Context, match domain.DiscountCode) {
	var err error
	switch c := match.(type) {
	case domain.AffiliateCode:
		err = s.codes.IncrementAffiliateClicks(ctx, c.ID)
	case domain.ReferralCode:
		err = s.codes.IncrementReferralClicks(ctx, c.ID)
	default:
		return
	}
	if err != nil {
		s.logger.Printf("discount: click increment code=%s kind=%s error=%v", match.CodeValue(), match.Kind(), err)
	}
}
