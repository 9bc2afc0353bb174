package download

import (
	"context"
	"time"

	"templatestore/internal/domain"
)

// Repository stores download tokens and the product files they point at.
type Repository interface {
	Create(ctx context.Context, t domain.DownloadToken) error
	// CreateOnce inserts candidate unless a live token already exists for the
	// same order and file, in which case that token is returned with false.
	// Concurrent calls for one pair are serialized by an advisory lock.
	CreateOnce(ctx context.Context, candidate domain.DownloadToken, now time.Time) (*domain.DownloadToken, bool, error)
	Get(ctx context.Context, token string) (*domain.DownloadToken, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.DownloadToken, error)
	// Redeem consumes one download and passes the file to open inside the same
	// transaction. Any error from open rolls the consumption back.
	Redeem(ctx context.Context, token string, now time.Time, open func(domain.ProductFile) error) (*domain.DownloadToken, *domain.ProductFile, error)

	GetFile(ctx context.Context, id string) (*domain.ProductFile, error)
	ListFilesByProducts(ctx context.Context, productIDs []string) ([]domain.ProductFile, error)
	UpsertFile(ctx context.Context, f domain.ProductFile) (*domain.ProductFile, error)
}
