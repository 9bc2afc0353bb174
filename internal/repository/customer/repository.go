package customer

import (
	"context"

	"templatestore/internal/domain"
)

// Repository persists and fetches customers.
type Repository interface {
	Upsert(ctx context.Context, c domain.Customer) (*domain.Customer, error)
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
	GetByEmail(ctx context.Context, email string) (*domain.Customer, error)
}
