package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"wagerledger/internal/ledger"
)

// Publisher is the slice of *redis.Client the Redis sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes each event envelope as JSON on a pub/sub channel for
// external indexers.
type Redis struct {
	pub     Publisher
	channel string
	now     func() time.Time
}

// NewRedis creates a sink publishing on channel.
func NewRedis(pub Publisher, channel string) *Redis {
	return &Redis{pub: pub, channel: channel, now: time.Now}
}

func (r *Redis) Notify(ctx context.Context, ev ledger.Event) error {
	env, err := Wrap(ev, r.now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	if err := r.pub.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", r.channel, err)
	}
	return nil
}
