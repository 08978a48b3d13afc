package redis

import (
	"context"
	"fmt"
	"time"
)

// WebhookSeen remembers provider webhook ids that were processed successfully, so
// redeliveries can be acknowledged without touching the database. The store's
// idempotency stays authoritative; a miss here only costs a replay.
type WebhookSeen struct {
	client RedisClient
	ttl    time.Duration
}

func NewWebhookSeen(client RedisClient, ttl time.Duration) *WebhookSeen {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &WebhookSeen{client: client, ttl: ttl}
}

func (w *WebhookSeen) key(id string) string {
	return fmt.Sprintf("webhook_seen:%s", id)
}

// Seen reports whether id was marked. Redis errors read as not seen.
func (w *WebhookSeen) Seen(ctx context.Context, id string) bool {
	_, err := w.client.Get(ctx, w.key(id))
	return err == nil
}

// Mark records id after it was handled.
func (w *WebhookSeen) Mark(ctx context.Context, id string) error {
	_, err := w.client.SetNX(ctx, w.key(id), "1", w.ttl)
	return err
}
