// Package royalty provides the application-level services for royalty record
// operations. It sits between the HTTP/CLI interfaces and the domain engine,
// adding caching, metrics, notifications, and bulk import/export on top of
// the domain lifecycle service.
package royalty

import (
	"context"
	"io"
	"time"

	"github.com/minegov/royalty-engine/pkg/types/common"
)

// CachePort is the read-through cache used for record lookups and list
// results. The redis cache satisfies it directly.
type CachePort interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

// NotificationType classifies outbound notifications.
type NotificationType string

const (
	NotifyRecordCreated  NotificationType = "record_created"
	NotifyStatusChanged  NotificationType = "status_changed"
	NotifyPaymentDueSoon NotificationType = "payment_due_soon"
	NotifyOverdue        NotificationType = "overdue"
)

// Notification is the payload delivered to downstream channels when a
// record reaches a state worth telling someone about.
type Notification struct {
	Type     NotificationType `json:"type"`
	RecordID common.ID        `json:"record_id"`
	Entity   string           `json:"entity"`
	Mineral  string           `json:"mineral"`
	Amount   float64          `json:"amount"`
	DueDate  time.Time        `json:"due_date"`
	Message  string           `json:"message"`
}

// Notifier delivers notifications. Delivery failures are logged by callers
// and never abort the triggering operation.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// ObjectStore persists export artifacts. The minio repository satisfies it.
type ObjectStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error)
}
