package discount

import (
	"context"

	"templatestore/internal/domain"
)

// Repository looks up discount codes of every variant. Codes are matched
// exactly; callers normalize them first.
type Repository interface {
	FindBonus(ctx context.Context, code string) (*domain.BonusCode, error)
	FindAffiliate(ctx context.Context, code string) (*domain.AffiliateCode, error)
	FindReferral(ctx context.Context, code string) (*domain.ReferralCode, error)
	IncrementAffiliateClicks(ctx context.Context, id string) error
	IncrementReferralClicks(ctx context.Context, id string) error

	UpsertBonus(ctx context.Context, c domain.BonusCode) error
	UpsertAffiliate(ctx context.Context, c domain.AffiliateCode) error
	UpsertReferral(ctx context.Context, c domain.ReferralCode) error
}
