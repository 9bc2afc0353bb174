package notification

import (
	"context"
	"time"

	"templatestore/internal/domain"
)

// Repository is the durable notification queue.
type Repository interface {
	// Insert queues n. It reports false when n carries a dedupe key that is
	// already queued.
	Insert(ctx context.Context, n domain.Notification) (bool, error)
	// Claim leases up to limit pending rows of the given priorities, oldest
	// first within a priority. Rows claimed by another caller are skipped.
	Claim(ctx context.Context, priorities []domain.Priority, limit int, lease time.Duration) ([]domain.Notification, error)
	MarkSent(ctx context.Context, id string) error
	// MarkAttemptFailed records a failed send, releases the claim and returns
	// the resulting status: failed once attempts reach maxAttempts.
	MarkAttemptFailed(ctx context.Context, id, reason string, maxAttempts int) (domain.NotificationStatus, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
}
