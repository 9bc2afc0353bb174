package discount

import (
	"context"
	"errors"
	"time"

	"templatestore/internal/domain"
)

// CodeSource looks up each discount variant by normalized code.
type CodeSource interface {
	FindBonus(ctx context.Context, code string) (*domain.BonusCode, error)
	FindAffiliate(ctx context.Context, code string) (*domain.AffiliateCode, error)
	FindReferral(ctx context.Context, code string) (*domain.ReferralCode, error)
}

// Request is one attempt to attach a code to a session.
type Request struct {
	Cart  domain.Cart
	Code  string
	State domain.SessionDiscountState
	Now   time.Time
}

// Result is the priced cart and the session state after resolution. On error
// Priced is the no-discount baseline and State is the state passed in.
type Result struct {
	Priced  domain.PricedCart
	Applied *domain.AppliedDiscount
	State   domain.SessionDiscountState
	Match   domain.DiscountCode
}

// Resolve finds the single discount that applies to req.Code. Variants are
// tried in a fixed order, bonus then affiliate then referral, and the first
// usable match wins. Affiliate and referral codes grant customerPercent.
func Resolve(ctx context.Context, src CodeSource, customerPercent int, req Request) (Result, error) {
	baseline := Result{Priced: PriceCart(req.Cart, 0), State: req.State}

	code := domain.NormalizeCode(req.Code)
	if code == "" {
		return baseline, domain.Invalid("code", "required")
	}
	if code == req.State.Code {
		return baseline, domain.ErrAlreadyApplied
	}

	match, err := Lookup(ctx, src, code, req.Now)
	if err != nil {
		return baseline, err
	}
	return Apply(req.Cart, match, customerPercent), nil
}

// Lookup walks the variants in precedence order and stops at the first usable
// code. Later variants are not queried once one matches.
func Lookup(ctx context.Context, src CodeSource, code string, now time.Time) (domain.DiscountCode, error) {
	steps := []func() (domain.DiscountCode, error){
		func() (domain.DiscountCode, error) {
			c, err := src.FindBonus(ctx, code)
			return found(c, err)
		},
		func() (domain.DiscountCode, error) {
			c, err := src.FindAffiliate(ctx, code)
			return found(c, err)
		},
		func() (domain.DiscountCode, error) {
			c, err := src.FindReferral(ctx, code)
			return found(c, err)
		},
	}
	for _, step := range steps {
		c, err := step()
		if err != nil {
			return nil, err
		}
		if c != nil && c.Usable(now) {
			return c, nil
		}
	}
	return nil, domain.ErrInvalidCode
}

// found adapts a typed repository lookup, turning ErrNotFound into a nil code.
func found[T domain.DiscountCode](c *T, err error) (domain.DiscountCode, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	return *c, nil
}

// Apply prices cart with match and returns the state holding only match.
func Apply(cart domain.Cart, match domain.DiscountCode, customerPercent int) Result {
	percent := PercentFor(match, customerPercent)
	priced := PriceCart(cart, percent)
	applied := &domain.AppliedDiscount{
		Kind:        match.Kind(),
		Code:        match.CodeValue(),
		Percent:     percent,
		AmountCents: priced.DiscountCents,
		OwnerID:     ownerOf(match),
	}
	return Result{
		Priced:  priced,
		Applied: applied,
		State:   domain.SessionDiscountState{}.Attach(match),
		Match:   match,
	}
}

// PercentFor is the discount percentage a code grants.
func PercentFor(code domain.DiscountCode, customerPercent int) int {
	switch c := code.(type) {
	case domain.BonusCode:
		return c.DiscountPercent
	case domain.AffiliateCode, domain.ReferralCode:
		return customerPercent
	}
	return 0
}

func ownerOf(code domain.DiscountCode) string {
	switch c := code.(type) {
	case domain.AffiliateCode:
		return c.OwnerID
	case domain.ReferralCode:
		return c.OwnerID
	}
	return ""
}

// PriceCart computes totals for cart with percent off the subtotal.
func PriceCart(cart domain.Cart, percent int) domain.PricedCart {
	subtotal := cart.SubtotalCents()
	discount := DiscountAmount(subtotal, percent)
	return domain.PricedCart{
		Currency:      cart.Currency,
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TotalCents:    subtotal - discount,
	}
}

// DiscountAmount is percent of subtotal rounded down to the minor unit and
// clamped to [0, subtotal].
func DiscountAmount(subtotal int64, percent int) int64 {
	if subtotal <= 0 || percent <= 0 {
		return 0
	}
	amount := subtotal * int64(percent) / 100
	if amount > subtotal {
		return subtotal
	}
	return amount
}
