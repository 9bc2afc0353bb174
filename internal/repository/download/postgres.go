package download

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const tokenColumns = `token, order_id::text, file_id::text, max_downloads, download_count, expires_at, created_at`

const insertToken = `
INSERT INTO download_tokens (token, order_id, file_id, max_downloads, download_count, expires_at)
VALUES ($1, $2, $3, $4, 0, $5)
RETURNING ` + tokenColumns

func (r *postgresRepo) Create(ctx context.Context, t domain.DownloadToken) error {
	_, err := r.pool.Exec(ctx, insertToken, t.Token, t.OrderID, t.FileID, t.MaxDownloads, t.ExpiresAt)
	return mapWriteErr(err)
}

func (r *postgresRepo) CreateOnce(ctx context.Context, candidate domain.DownloadToken, now time.Time) (*domain.DownloadToken, bool, error) {
	var (
		out     *domain.DownloadToken
		created bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "download:"+candidate.OrderID+":"+candidate.FileID); err != nil {
			return err
		}

		q := `SELECT ` + tokenColumns + `
FROM download_tokens
WHERE order_id = $1 AND file_id = $2 AND expires_at >= $3 AND download_count < max_downloads
ORDER BY created_at
LIMIT 1`
		existing, err := scanToken(tx.QueryRow(ctx, q, candidate.OrderID, candidate.FileID, now))
		switch {
		case err == nil:
			out = existing
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		out, err = scanToken(tx.QueryRow(ctx, insertToken,
			candidate.Token, candidate.OrderID, candidate.FileID, candidate.MaxDownloads, candidate.ExpiresAt))
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		if err = mapWriteErr(err); !errors.Is(err, domain.ErrAlreadyExists) {
			r.logger.Printf("download repo: create once order_id=%s file_id=%s error=%v", candidate.OrderID, candidate.FileID, err)
		}
		return nil, false, err
	}
	return out, created, nil
}

func (r *postgresRepo) Get(ctx context.Context, token string) (*domain.DownloadToken, error) {
	q := `SELECT ` + tokenColumns + ` FROM download_tokens WHERE token = $1 LIMIT 1`
	return scanToken(r.pool.QueryRow(ctx, q, token))
}

func (r *postgresRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.DownloadToken, error) {
	q := `SELECT ` + tokenColumns + ` FROM download_tokens WHERE order_id::text = $1 ORDER BY created_at, token`
	rows, err := r.pool.Query(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DownloadToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *postgresRepo) Redeem(ctx context.Context, token string, now time.Time, open func(domain.ProductFile) error) (*domain.DownloadToken, *domain.ProductFile, error) {
	var (
		tok  *domain.DownloadToken
		file *domain.ProductFile
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		q := `
UPDATE download_tokens
SET download_count = download_count + 1
WHERE token = $1 AND expires_at >= $2 AND download_count < max_downloads
RETURNING ` + tokenColumns
		var err error
		tok, err = scanToken(tx.QueryRow(ctx, q, token, now))
		if errors.Is(err, domain.ErrNotFound) {
			return classify(ctx, tx, token, now)
		}
		if err != nil {
			return err
		}

		fq := `
UPDATE product_files SET download_count = download_count + 1
WHERE id = $1
RETURNING ` + fileColumns
		file, err = scanFile(tx.QueryRow(ctx, fq, tok.FileID))
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrFileMissing
		}
		if err != nil {
			return err
		}
		return open(*file)
	})
	if err != nil {
		return nil, nil, err
	}
	return tok, file, nil
}

// classify explains why the conditional update in Redeem matched no row.
func classify(ctx context.Context, tx pgx.Tx, token string, now time.Time) error {
	q := `SELECT ` + tokenColumns + ` FROM download_tokens WHERE token = $1`
	t, err := scanToken(tx.QueryRow(ctx, q, token))
	if err != nil {
		return err
	}
	if err := t.RedeemError(now); err != nil {
		return err
	}
	return domain.ErrLimitExceeded
}

const fileColumns = `id::text, product_id::text, file_name, content_type, size_bytes, storage_key, download_count, created_at`

func (r *postgresRepo) GetFile(ctx context.Context, id string) (*domain.ProductFile, error) {
	q := `SELECT ` + fileColumns + ` FROM product_files WHERE id::text = $1`
	return scanFile(r.pool.QueryRow(ctx, q, id))
}

func (r *postgresRepo) ListFilesByProducts(ctx context.Context, productIDs []string) ([]domain.ProductFile, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + fileColumns + ` FROM product_files WHERE product_id::text = ANY($1) ORDER BY product_id, file_name`
	rows, err := r.pool.Query(ctx, q, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProductFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (r *postgresRepo) UpsertFile(ctx context.Context, f domain.ProductFile) (*domain.ProductFile, error) {
	q := `
INSERT INTO product_files (product_id, file_name, content_type, size_bytes, storage_key)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (product_id, file_name) DO UPDATE SET
    content_type = EXCLUDED.content_type,
    size_bytes = EXCLUDED.size_bytes,
    storage_key = EXCLUDED.storage_key
RETURNING ` + fileColumns
	out, err := scanFile(r.pool.QueryRow(ctx, q, f.ProductID, f.FileName, f.ContentType, f.SizeBytes, f.StorageKey))
	if err != nil {
		r.logger.Printf("download repo: upsert file product_id=%s name=%s error=%v", f.ProductID, f.FileName, err)
		return nil, err
	}
	return out, nil
}

func scanToken(row pgx.Row) (*domain.DownloadToken, error) {
	var t domain.DownloadToken
	if err := row.Scan(&t.Token, &t.OrderID, &t.FileID, &t.MaxDownloads, &t.DownloadCount, &t.ExpiresAt, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func scanFile(row pgx.Row) (*domain.ProductFile, error) {
	var f domain.ProductFile
	if err := row.Scan(&f.ID, &f.ProductID, &f.FileName, &f.ContentType, &f.SizeBytes, &f.StorageKey, &f.DownloadCount, &f.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}
