// Package inbox stores in-app notifications in per-device Redis lists.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/notification_service/domain"
)

// DefaultSize is the number of entries kept per device.
const DefaultSize = 100

// ListStore is the part of *redis.Client the inbox needs.
type ListStore interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// RedisInbox pushes the newest entry to the head of inapp:<device_id> and
// trims the list to size.
type RedisInbox struct {
	store ListStore
	size  int64
	now   func() time.Time
}

func NewRedisInbox(store ListStore, size int) *RedisInbox {
	if size <= 0 {
		size = DefaultSize
	}
	return &RedisInbox{store: store, size: int64(size), now: time.Now}
}

// Key returns the list key for a device.
func Key(deviceID string) string { return domain.InboxKeyPrefix + deviceID }

func (r *RedisInbox) Send(ctx context.Context, msg core.OutboundMessage) error {
	if len(msg.Recipients) == 0 || msg.Recipients[0] == "" {
		return domain.ErrNoRecipients
	}
	entry, err := json.Marshal(domain.InboxEntry{
		MessageID: msg.ID,
		Sender:    msg.Sender,
		Title:     msg.Subject,
		Body:      msg.Body,
		QueuedAt:  r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal inbox entry: %w", err)
	}

	key := Key(msg.Recipients[0])
	if err := r.store.LPush(ctx, key, entry).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", key, err)
	}
	if err := r.store.LTrim(ctx, key, 0, r.size-1).Err(); err != nil {
		return fmt.Errorf("trim %s: %w", key, err)
	}
	return nil
}
