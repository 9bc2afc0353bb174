package domain

import (
	"strings"
	"time"
)

// DiscountKind identifies which variant of discount code applied.
type DiscountKind string

const (
	DiscountBonus     DiscountKind = "bonus"
	DiscountAffiliate DiscountKind = "affiliate"
	DiscountReferral  DiscountKind = "referral"
)

// Valid reports whether k is one of the known variants.
func (k DiscountKind) Valid() bool {
	switch k {
	case DiscountBonus, DiscountAffiliate, DiscountReferral:
		return true
	}
	return false
}

// DiscountCode is the closed union of BonusCode, AffiliateCode and ReferralCode.
type DiscountCode interface {
	Kind() DiscountKind
	CodeValue() string
	// Usable reports whether the code is active and unexpired at now.
	Usable(now time.Time) bool
	sealed()
}

// CodeMeta holds the attributes every variant carries.
type CodeMeta struct {
	Code      string
	Active    bool
	ExpiresAt *time.Time
}

func (m CodeMeta) CodeValue() string { return m.Code }

// Usable treats an expiry equal to now as still valid.
func (m CodeMeta) Usable(now time.Time) bool {
	if !m.Active {
		return false
	}
	return m.ExpiresAt == nil || !m.ExpiresAt.Before(now)
}

type BonusCode struct {
	CodeMeta
	ID              string
	DiscountPercent int
}

func (BonusCode) Kind() DiscountKind { return DiscountBonus }
func (BonusCode) sealed()            {}

type AffiliateCode struct {
	CodeMeta
	ID             string
	OwnerID        string
	CommissionRate float64
}

func (AffiliateCode) Kind() DiscountKind { return DiscountAffiliate }
func (AffiliateCode) sealed()            {}

type ReferralCode struct {
	CodeMeta
	ID      string
	OwnerID string
}

func (ReferralCode) Kind() DiscountKind { return DiscountReferral }
func (ReferralCode) sealed()            {}

// NormalizeCode upper-cases and trims a user-submitted code.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// AppliedDiscount is the resolved discount as snapshotted onto an order.
type AppliedDiscount struct {
	Kind        DiscountKind `json:"kind"`
	Code        string       `json:"code"`
	Percent     int          `json:"percent"`
	AmountCents int64        `json:"amountCents"`
	OwnerID     string       `json:"ownerId,omitempty"`
}

// SessionDiscountState is the single discount attached to a shopper session.
// The zero value means no code is attached.
type SessionDiscountState struct {
	Code string       `json:"code,omitempty"`
	Kind DiscountKind `json:"kind,omitempty"`
}

func (s SessionDiscountState) IsZero() bool { return s.Code == "" }

// Attach returns the state holding only the given code, dropping whatever was
// attached before regardless of variant.
func (s SessionDiscountState) Attach(code DiscountCode) SessionDiscountState {
	return SessionDiscountState{Code: code.CodeValue(), Kind: code.Kind()}
}
