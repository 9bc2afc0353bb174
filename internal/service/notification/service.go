package notification

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"templatestore/internal/domain"
	"templatestore/internal/mail"
)

type queueRepo interface {
	Insert(ctx context.Context, n domain.Notification) (bool, error)
	Claim(ctx context.Context, priorities []domain.Priority, limit int, lease time.Duration) ([]domain.Notification, error)
	MarkSent(ctx context.Context, id string) error
	MarkAttemptFailed(ctx context.Context, id, reason string, maxAttempts int) (domain.NotificationStatus, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
}

// Sender delivers one rendered message. It does not retry.
type Sender interface {
	Send(ctx context.Context, msg mail.Message) error
}

type Mode string

const (
	ModeNormal     Mode = "normal"
	ModeAggressive Mode = "aggressive"
)

// Policy bounds a drain.
type Policy struct {
	HighLaneLimit   int
	AggressiveBatch int
	MaxAttempts     int
	SendTimeout     time.Duration
	ClaimLease      time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		HighLaneLimit:   500,
		AggressiveBatch: 100,
		MaxAttempts:     5,
		SendTimeout:     15 * time.Second,
		ClaimLease:      300 * time.Second,
	}
}

type DrainResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Retried int `json:"retried"`
}

func (r *DrainResult) add(o DrainResult) {
	r.Sent += o.Sent
	r.Failed += o.Failed
	r.Retried += o.Retried
}

// Service is the transactional notification queue. Enqueue never sends;
// delivery happens only in Drain.
type Service struct {
	repo   queueRepo
	sender Sender
	policy Policy
	logger *log.Logger
}

func New(repo queueRepo, sender Sender, policy Policy, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{repo: repo, sender: sender, policy: policy, logger: logger}
}

// Enqueue stores n for later delivery. It reports false when n's dedupe key
// was already queued, which is not an error.
func (s *Service) Enqueue(ctx context.Context, n domain.Notification) (bool, error) {
	n.Recipient = strings.TrimSpace(n.Recipient)
	if n.Recipient == "" {
		return false, domain.Invalid("recipient", "required")
	}
	if n.Template == "" {
		return false, domain.Invalid("template", "required")
	}
	if !n.Priority.Valid() {
		return false, domain.Invalid("priority", "unknown priority")
	}
	queued, err := s.repo.Insert(ctx, n)
	if err != nil {
		s.logger.Printf("notification: enqueue template=%s error=%v", n.Template, err)
		return false, err
	}
	if !queued {
		s.logger.Printf("notification: duplicate skipped dedupe_key=%s", n.DedupeKey)
	}
	return queued, nil
}

// EnqueueOTP queues a one-time code on the high-priority lane.
func (s *Service) EnqueueOTP(ctx context.Context, email, code string) error {
	if strings.TrimSpace(code) == "" {
		return domain.Invalid("code", "required")
	}
	_, err := s.Enqueue(ctx, domain.Notification{
		Recipient: email,
		Subject:   "Your verification code",
		Template:  domain.TemplateOTPCode,
		Data:      map[string]any{"code": code},
		Priority:  domain.PriorityHigh,
	})
	return err
}

// Drain sends every pending high-priority message (up to HighLaneLimit), then
// up to batchSize normal and low messages in priority then FIFO order.
// Aggressive mode raises the batch to at least AggressiveBatch. Failed sends
// are retried by later drains until MaxAttempts is reached.
func (s *Service) Drain(ctx context.Context, batchSize int, mode Mode) (DrainResult, error) {
	if batchSize <= 0 {
		return DrainResult{}, domain.Invalid("batchSize", "must be positive")
	}
	effective := batchSize
	if mode == ModeAggressive && s.policy.AggressiveBatch > effective {
		effective = s.policy.AggressiveBatch
	}

	var res DrainResult
	high, err := s.repo.Claim(ctx, []domain.Priority{domain.PriorityHigh}, s.policy.HighLaneLimit, s.policy.ClaimLease)
	if err != nil {
		return res, err
	}
	res.add(s.sendAll(ctx, high))

	rest, err := s.repo.Claim(ctx, []domain.Priority{domain.PriorityNormal, domain.PriorityLow}, effective, s.policy.ClaimLease)
	if err != nil {
		return res, err
	}
	res.add(s.sendAll(ctx, rest))

	if res != (DrainResult{}) {
		s.logger.Printf("notification: drain mode=%s batch=%d sent=%d retried=%d failed=%d", mode, effective, res.Sent, res.Retried, res.Failed)
	}
	return res, nil
}

func (s *Service) sendAll(ctx context.Context, batch []domain.Notification) DrainResult {
	var res DrainResult
	for _, n := range batch {
		// Unsent claims are picked up again once their lease expires.
		if ctx.Err() != nil {
			break
		}
		res.add(s.sendOne(ctx, n))
	}
	return res
}

func (s *Service) sendOne(ctx context.Context, n domain.Notification) DrainResult {
	sendCtx, cancel := context.WithTimeout(ctx, s.policy.SendTimeout)
	err := s.sender.Send(sendCtx, mail.Message{
		To:       n.Recipient,
		Subject:  n.Subject,
		Template: n.Template,
		Data:     n.Data,
	})
	cancel()

	if err == nil {
		if markErr := s.repo.MarkSent(ctx, n.ID); markErr != nil {
			s.logger.Printf("notification: mark sent id=%s error=%v", n.ID, markErr)
		}
		return DrainResult{Sent: 1}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		err = domain.External("mail", err)
	}
	status, markErr := s.repo.MarkAttemptFailed(ctx, n.ID, err.Error(), s.policy.MaxAttempts)
	if markErr != nil {
		s.logger.Printf("notification: record failure id=%s error=%v", n.ID, markErr)
		return DrainResult{Retried: 1}
	}
	if status == domain.NotificationFailed {
		s.logger.Printf("notification: giving up id=%s template=%s attempts=%d error=%v", n.ID, n.Template, n.Attempts+1, err)
		return DrainResult{Failed: 1}
	}
	s.logger.Printf("notification: send failed id=%s attempt=%d error=%v", n.ID, n.Attempts+1, err)
	return DrainResult{Retried: 1}
}

func (s *Service) Stats(ctx context.Context) (domain.QueueStats, error) {
	return s.repo.Stats(ctx)
}
