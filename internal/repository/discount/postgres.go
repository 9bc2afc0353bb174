package discount

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"templatestore/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) FindBonus(ctx context.Context, code string) (*domain.BonusCode, error) {
	const q = `
SELECT id::text, code, discount_percent, active, expires_at
FROM bonus_codes
WHERE code = $1
`
	var c domain.BonusCode
	err := r.pool.QueryRow(ctx, q, code).Scan(&c.ID, &c.Code, &c.DiscountPercent, &c.Active, &c.ExpiresAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *postgresRepo) FindAffiliate(ctx context.Context, code string) (*domain.AffiliateCode, error) {
	const q = `
SELECT id::text, owner_id::text, code, commission_rate::float8, status = 'active', expires_at
FROM affiliates
WHERE code = $1
`
	var c domain.AffiliateCode
	err := r.pool.QueryRow(ctx, q, code).Scan(&c.ID, &c.OwnerID, &c.Code, &c.CommissionRate, &c.Active, &c.ExpiresAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *postgresRepo) FindReferral(ctx context.Context, code string) (*domain.ReferralCode, error) {
	const q = `
SELECT id::text, owner_id::text, code, status = 'active', expires_at
FROM referral_codes
WHERE code = $1
`
	var c domain.ReferralCode
	err := r.pool.QueryRow(ctx, q, code).Scan(&c.ID, &c.OwnerID, &c.Code, &c.Active, &c.ExpiresAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *postgresRepo) IncrementAffiliateClicks(ctx context.Context, id string) error {
	return r.increment(ctx, `UPDATE affiliates SET click_count = click_count + 1 WHERE id::text = $1`, id)
}

func (r *postgresRepo) IncrementReferralClicks(ctx context.Context, id string) error {
	return r.increment(ctx, `UPDATE referral_codes SET click_count = click_count + 1 WHERE id::text = $1`, id)
}

func (r *postgresRepo) increment(ctx context.Context, q, id string) error {
	cmd, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) UpsertBonus(ctx context.Context, c domain.BonusCode) error {
	const q = `
INSERT INTO bonus_codes (code, discount_percent, active, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (code) DO UPDATE SET
    discount_percent = EXCLUDED.discount_percent,
    active = EXCLUDED.active,
    expires_at = EXCLUDED.expires_at
`
	_, err := r.pool.Exec(ctx, q, domain.NormalizeCode(c.Code), c.DiscountPercent, c.Active, c.ExpiresAt)
	if err != nil {
		r.logger.Printf("discount repo: upsert bonus code=%s error=%v", c.Code, err)
	}
	return err
}

func (r *postgresRepo) UpsertAffiliate(ctx context.Context, c domain.AffiliateCode) error {
	const q = `
INSERT INTO affiliates (owner_id, code, commission_rate, status, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (code) DO UPDATE SET
    commission_rate = EXCLUDED.commission_rate,
    status = EXCLUDED.status,
    expires_at = EXCLUDED.expires_at
`
	_, err := r.pool.Exec(ctx, q, c.OwnerID, domain.NormalizeCode(c.Code), c.CommissionRate, statusOf(c.Active), c.ExpiresAt)
	if err != nil {
		r.logger.Printf("discount repo: upsert affiliate code=%s error=%v", c.Code, err)
	}
	return err
}

func (r *postgresRepo) UpsertReferral(ctx context.Context, c domain.ReferralCode) error {
	const q = `
INSERT INTO referral_codes (owner_id, code, status, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (code) DO UPDATE SET
    status = EXCLUDED.status,
    expires_at = EXCLUDED.expires_at
`
	_, err := r.pool.Exec(ctx, q, c.OwnerID, domain.NormalizeCode(c.Code), statusOf(c.Active), c.ExpiresAt)
	if err != nil {
		r.logger.Printf("discount repo: upsert referral code=%s error=%v", c.Code, err)
	}
	return err
}

func statusOf(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}
