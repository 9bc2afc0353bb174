package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
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

func (r *postgresRepo) Insert(ctx context.Context, n domain.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return false, err
	}
	const q = `
INSERT INTO notification_queue (id, recipient, subject, template, data, priority, dedupe_key)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
ON CONFLICT (dedupe_key) DO NOTHING
`
	cmd, err := r.pool.Exec(ctx, q, n.ID, n.Recipient, n.Subject, n.Template, data, int16(n.Priority), n.DedupeKey)
	if err != nil {
		r.logger.Printf("notification repo: insert template=%s error=%v", n.Template, err)
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

type claimedRow struct {
	n   domain.Notification
	seq int64
}

func (r *postgresRepo) Claim(ctx context.Context, priorities []domain.Priority, limit int, lease time.Duration) ([]domain.Notification, error) {
	if limit <= 0 || len(priorities) == 0 {
		return nil, nil
	}
	prios := make([]int16, len(priorities))
	for i, p := range priorities {
		prios[i] = int16(p)
	}

	const q = `
WITH picked AS (
    SELECT id
    FROM notification_queue
    WHERE status = 'pending'
      AND priority = ANY($1)
      AND (claimed_until IS NULL OR claimed_until < now())
    ORDER BY priority, seq
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
UPDATE notification_queue q
SET claimed_until = now() + make_interval(secs => $3)
FROM picked
WHERE q.id = picked.id
RETURNING q.id::text, q.recipient, q.subject, q.template, q.data, q.priority, COALESCE(q.dedupe_key, ''),
          q.attempts, q.status, COALESCE(q.last_error, ''), q.created_at, q.sent_at, q.seq
`
	rows, err := r.pool.Query(ctx, q, prios, limit, lease.Seconds())
	if err != nil {
		r.logger.Printf("notification repo: claim limit=%d error=%v", limit, err)
		return nil, err
	}
	defer rows.Close()

	var claimed []claimedRow
	for rows.Next() {
		var (
			row      claimedRow
			data     []byte
			priority int16
			status   string
		)
		if err := rows.Scan(&row.n.ID, &row.n.Recipient, &row.n.Subject, &row.n.Template, &data, &priority,
			&row.n.DedupeKey, &row.n.Attempts, &status, &row.n.LastError, &row.n.CreatedAt, &row.n.SentAt, &row.seq); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &row.n.Data); err != nil {
				r.logger.Printf("notification repo: decode data id=%s err=%v", row.n.ID, err)
				return nil, err
			}
		}
		row.n.Priority = domain.Priority(priority)
		row.n.Status = domain.NotificationStatus(status)
		claimed = append(claimed, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery order.
	sort.Slice(claimed, func(i, j int) bool {
		if claimed[i].n.Priority != claimed[j].n.Priority {
			return claimed[i].n.Priority < claimed[j].n.Priority
		}
		return claimed[i].seq < claimed[j].seq
	})
	out := make([]domain.Notification, len(claimed))
	for i, c := range claimed {
		out[i] = c.n
	}
	return out, nil
}

func (r *postgresRepo) MarkSent(ctx context.Context, id string) error {
	const q = `
UPDATE notification_queue
SET status = 'sent', sent_at = now(), claimed_until = NULL, last_error = NULL
WHERE id::text = $1 AND status = 'pending'
`
	cmd, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) MarkAttemptFailed(ctx context.Context, id, reason string, maxAttempts int) (domain.NotificationStatus, error) {
	const q = `
UPDATE notification_queue
SET attempts = attempts + 1,
    last_error = $2,
    claimed_until = NULL,
    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END
WHERE id::text = $1 AND status = 'pending'
RETURNING status
`
	var status string
	if err := r.pool.QueryRow(ctx, q, id, reason, maxAttempts).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return domain.NotificationStatus(status), nil
}

func (r *postgresRepo) Stats(ctx context.Context) (domain.QueueStats, error) {
	stats := domain.QueueStats{PendingByPriority: map[string]int64{}}
	for _, p := range []domain.Priority{domain.PriorityHigh, domain.PriorityNormal, domain.PriorityLow} {
		stats.PendingByPriority[p.String()] = 0
	}

	rows, err := r.pool.Query(ctx, `
SELECT status, priority, count(*)
FROM notification_queue
GROUP BY status, priority`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status   string
			priority int16
			count    int64
		)
		if err := rows.Scan(&status, &priority, &count); err != nil {
			return stats, err
		}
		switch domain.NotificationStatus(status) {
		case domain.NotificationPending:
			stats.Pending += count
			stats.PendingByPriority[domain.Priority(priority).String()] += count
		case domain.NotificationSent:
			stats.Sent += count
		case domain.NotificationFailed:
			stats.Failed += count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	const oldest = `
SELECT COALESCE(EXTRACT(EPOCH FROM now() - min(created_at))::bigint, 0)
FROM notification_queue
WHERE status = 'pending'`
	if err := r.pool.QueryRow(ctx, oldest).Scan(&stats.OldestPendingSeconds); err != nil {
		return stats, err
	}
	return stats, nil
}
