package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"templatestore/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const orderColumns = `id::text, customer_id::text, COALESCE(email, ''), cart, discount, subtotal_cents,
       discount_cents, total_cents, currency, gateway_reference, status, payment_verified_at, created_at, updated_at`

func (r *postgresRepo) Create(ctx context.Context, o domain.Order) (*domain.Order, error) {
	if o.Status() != domain.OrderPending {
		return nil, fmt.Errorf("order repo: create with status %s", o.Status())
	}
	cartJSON, err := json.Marshal(o.Cart)
	if err != nil {
		return nil, err
	}
	var discountJSON []byte
	if o.Discount != nil {
		if discountJSON, err = json.Marshal(o.Discount); err != nil {
			return nil, err
		}
	}

	q := `
INSERT INTO orders (id, customer_id, email, cart, discount, subtotal_cents, discount_cents, total_cents, currency, status)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, 'pending')
RETURNING ` + orderColumns
	created, err := r.scanOrder(r.pool.QueryRow(ctx, q,
		o.ID,
		o.CustomerID,
		o.Email,
		cartJSON,
		discountJSON,
		o.SubtotalCents,
		o.DiscountCents,
		o.TotalCents,
		o.Currency,
	))
	if err != nil {
		r.logger.Printf("order repo: create id=%s error=%v", o.ID, err)
		return nil, err
	}
	r.logger.Printf("order repo: created id=%s total_cents=%d", created.ID, created.TotalCents)
	return created, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOrder(r.pool.QueryRow(ctx, q, id))
}

func (r *postgresRepo) Transition(ctx context.Context, id string, to domain.OrderStatus) (bool, error) {
	if !to.IsTerminal() {
		return false, fmt.Errorf("order repo: transition to non-terminal status %s", to)
	}
	if !validID(id) {
		return false, domain.ErrNotFound
	}
	const q = `
UPDATE orders
SET status = $2,
    updated_at = now(),
    payment_verified_at = CASE WHEN $2 = 'paid' THEN now() ELSE payment_verified_at END
WHERE id = $1 AND status = 'pending'
`
	cmd, err := r.pool.Exec(ctx, q, id, string(to))
	if err != nil {
		r.logger.Printf("order repo: transition id=%s to=%s error=%v", id, to, err)
		return false, err
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

const paymentColumns = `id::text, order_id::text, reference, amount_cents, currency, status,
       verified_amount_cents, verified_at, created_at`

func (r *postgresRepo) AttachPayment(ctx context.Context, p domain.Payment) (*domain.Payment, error) {
	var out *domain.Payment
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		q := `
INSERT INTO payments (order_id, reference, amount_cents, currency, status)
VALUES ($1, $2, $3, $4, 'initialized')
RETURNING ` + paymentColumns
		var err error
		out, err = scanPayment(tx.QueryRow(ctx, q, p.OrderID, p.Reference, p.AmountCents, p.Currency))
		if err != nil {
			return err
		}
		cmd, err := tx.Exec(ctx, `
UPDATE orders SET gateway_reference = $2, updated_at = now()
WHERE id = $1 AND gateway_reference IS NULL`, p.OrderID, p.Reference)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrAlreadyExists
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Printf("order repo: attach payment order_id=%s reference=%s error=%v", p.OrderID, p.Reference, err)
		return nil, err
	}
	return out, nil
}

func (r *postgresRepo) GetPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`
	return scanPayment(r.pool.QueryRow(ctx, q, reference))
}

func (r *postgresRepo) RecordVerification(ctx context.Context, reference string, status domain.PaymentStatus, verifiedAmountCents *int64) error {
	const q = `
UPDATE payments
SET status = $2, verified_amount_cents = $3, verified_at = COALESCE(verified_at, now())
WHERE reference = $1 AND status = 'initialized'
`
	if _, err := r.pool.Exec(ctx, q, reference, string(status), verifiedAmountCents); err != nil {
		r.logger.Printf("order repo: record verification reference=%s error=%v", reference, err)
		return err
	}
	return nil
}

func (r *postgresRepo) scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o            domain.Order
		cartJSON     []byte
		discountJSON []byte
		status       string
	)
	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.Email,
		&cartJSON,
		&discountJSON,
		&o.SubtotalCents,
		&o.DiscountCents,
		&o.TotalCents,
		&o.Currency,
		&o.GatewayReference,
		&status,
		&o.PaymentVerifiedAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}
	if err := json.Unmarshal(cartJSON, &o.Cart); err != nil {
		r.logger.Printf("order repo: decode cart id=%s err=%v", o.ID, err)
		return nil, err
	}
	if len(discountJSON) > 0 {
		var d domain.AppliedDiscount
		if err := json.Unmarshal(discountJSON, &d); err != nil {
			r.logger.Printf("order repo: decode discount id=%s err=%v", o.ID, err)
			return nil, err
		}
		o.Discount = &d
	}
	restored, err := domain.RestoreOrder(o, status)
	if err != nil {
		return nil, err
	}
	return &restored, nil
}

// validID keeps malformed ids from reaching a uuid column as a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p      domain.Payment
		status string
	)
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Reference,
		&p.AmountCents,
		&p.Currency,
		&status,
		&p.VerifiedAmountCents,
		&p.VerifiedAt,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}
