package domain

import (
	"fmt"
	"time"
)

// Priority orders notifications; lower values drain first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

var priorityNames = map[Priority]string{
	PriorityHigh:   "high",
	PriorityNormal: "normal",
	PriorityLow:    "low",
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

const (
	TemplatePaymentConfirmed = "payment_confirmed"
	TemplateOTPCode          = "otp_code"
)

// Notification is a queued transactional message.
type Notification struct {
	ID        string
	Recipient string
	Subject   string
	Template  string
	Data      map[string]any
	Priority  Priority
	// DedupeKey, when set, makes enqueue a no-op for a key already queued.
	DedupeKey string
	Attempts  int
	Status    NotificationStatus
	LastError string
	CreatedAt time.Time
	SentAt    *time.Time
}

// QueueStats is a point-in-time snapshot of the notification backlog.
type QueueStats struct {
	Pending              int64            `json:"pending"`
	Sent                 int64            `json:"sent"`
	Failed               int64            `json:"failed"`
	PendingByPriority    map[string]int64 `json:"pendingByPriority"`
	OldestPendingSeconds int64            `json:"oldestPendingSeconds"`
}
