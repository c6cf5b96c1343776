package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type redisLedger struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisLedger keeps processed ids as keys without expiration: "<prefix>:processed:<eventID>"
func NewRedisLedger(client redis.Cmdable, prefix string) Ledger {
	return &redisLedger{client: client, prefix: prefix, now: time.Now}
}

func (r *redisLedger) key(eventID string) string {
	return fmt.Sprintf("%s:processed:%s", r.prefix, eventID)
}

func (r *redisLedger) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.key(eventID)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "checking processed event %s", eventID)
	}

	return exists > 0, nil
}

func (r *redisLedger) MarkProcessed(ctx context.Context, eventID string) error {
	if err := r.client.SetNX(ctx, r.key(eventID), r.now().UnixNano(), 0).Err(); err != nil {
		return errors.Wrapf(err, "marking event %s as processed", eventID)
	}

	return nil
}
