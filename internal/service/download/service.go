package download

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"templatestore/internal/domain"
)

type tokenRepo interface {
	Create(ctx context.Context, t domain.DownloadToken) error
	CreateOnce(ctx context.Context, candidate domain.DownloadToken, now time.Time) (*domain.DownloadToken, bool, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.DownloadToken, error)
	Redeem(ctx context.Context, token string, now time.Time, open func(domain.ProductFile) error) (*domain.DownloadToken, *domain.ProductFile, error)
	ListFilesByProducts(ctx context.Context, productIDs []string) ([]domain.ProductFile, error)
}

// BlobOpener reads stored file content. A missing object is ErrFileMissing.
type BlobOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

var errTokenCollision = errors.New("token collision")

// Service issues and redeems download tokens.
type Service struct {
	repo     tokenRepo
	blobs    BlobOpener
	logger   *log.Logger
	now      func() time.Time
	newToken func() (string, error)
}

func New(repo tokenRepo, blobs BlobOpener, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{repo: repo, blobs: blobs, logger: logger, now: time.Now, newToken: randomToken}
}

// Download is a redeemed file. The caller must close Body.
type Download struct {
	Token domain.DownloadToken
	File  domain.ProductFile
	Body  io.ReadCloser
}

// Issue always mints a new token for the order and file.
func (s *Service) Issue(ctx context.Context, orderID, fileID string, maxDownloads int, ttl time.Duration) (*domain.DownloadToken, error) {
	if err := validateGrant(maxDownloads, ttl); err != nil {
		return nil, err
	}
	for i := 0; i < tokenAttempts; i++ {
		t, err := s.candidate(orderID, fileID, maxDownloads, ttl)
		if err != nil {
			return nil, err
		}
		err = s.repo.Create(ctx, t)
		if err == nil {
			s.logger.Printf("download: issued order_id=%s file_id=%s max=%d", orderID, fileID, maxDownloads)
			return &t, nil
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			continue
		}
		return nil, err
	}
	return nil, errTokenCollision
}

// IssueOnce returns the live token for the order and file, minting one only
// when none exists. Replays never accumulate tokens.
func (s *Service) IssueOnce(ctx context.Context, orderID, fileID string, maxDownloads int, ttl time.Duration) (*domain.DownloadToken, error) {
	if err := validateGrant(maxDownloads, ttl); err != nil {
		return nil, err
	}
	for i := 0; i < tokenAttempts; i++ {
		cand, err := s.candidate(orderID, fileID, maxDownloads, ttl)
		if err != nil {
			return nil, err
		}
		t, created, err := s.repo.CreateOnce(ctx, cand, s.now())
		if err == nil {
			if created {
				s.logger.Printf("download: issued order_id=%s file_id=%s max=%d", orderID, fileID, maxDownloads)
			}
			return t, nil
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			continue
		}
		return nil, err
	}
	return nil, errTokenCollision
}

func (s *Service) candidate(orderID, fileID string, maxDownloads int, ttl time.Duration) (domain.DownloadToken, error) {
	tok, err := s.newToken()
	if err != nil {
		return domain.DownloadToken{}, err
	}
	return domain.DownloadToken{
		Token:        tok,
		OrderID:      orderID,
		FileID:       fileID,
		MaxDownloads: maxDownloads,
		ExpiresAt:    s.now().Add(ttl),
	}, nil
}

func validateGrant(maxDownloads int, ttl time.Duration) error {
	if maxDownloads <= 0 {
		return domain.Invalid("maxDownloads", "must be positive")
	}
	if ttl <= 0 {
		return domain.Invalid("ttl", "must be positive")
	}
	return nil
}

// Redeem consumes one download of token and opens the file. Nothing is
// consumed when the token is unusable or the file cannot be opened.
func (s *Service) Redeem(ctx context.Context, token string) (*Download, error) {
	if token == "" {
		return nil, domain.Invalid("token", "required")
	}
	var body io.ReadCloser
	tok, file, err := s.repo.Redeem(ctx, token, s.now(), func(f domain.ProductFile) error {
		rc, err := s.blobs.Open(ctx, f.StorageKey)
		if err != nil {
			return err
		}
		body = rc
		return nil
	})
	if err != nil {
		if body != nil {
			body.Close()
		}
		if errors.Is(err, domain.ErrFileMissing) {
			s.logger.Printf("download: file missing token=%s error=%v", redact(token), err)
		}
		return nil, err
	}
	s.logger.Printf("download: redeemed order_id=%s file_id=%s count=%d/%d", tok.OrderID, tok.FileID, tok.DownloadCount, tok.MaxDownloads)
	return &Download{Token: *tok, File: *file, Body: body}, nil
}

// ListForOrder returns the order's tokens that can still be redeemed.
func (s *Service) ListForOrder(ctx context.Context, orderID string) ([]domain.DownloadToken, error) {
	all, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	live := all[:0]
	for _, t := range all {
		if t.Live(now) {
			live = append(live, t)
		}
	}
	return live, nil
}

// AllForOrder returns every token ever issued for the order, live or not.
func (s *Service) AllForOrder(ctx context.Context, orderID string) ([]domain.DownloadToken, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// FilesForProducts lists the downloadable files of the given products.
func (s *Service) FilesForProducts(ctx context.Context, productIDs []string) ([]domain.ProductFile, error) {
	return s.repo.ListFilesByProducts(ctx, productIDs)
}

func redact(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:6] + "***"
}
