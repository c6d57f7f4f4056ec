package ticket

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/persistence"
)

// RedisIndex serves ticket lookup from a key-value store keyed by
// (opener, category), avoiding a full channel scan per request. External
// behavior is identical to TopicIndex: the channel topic still carries the
// authoritative metadata.
type RedisIndex struct {
	store *persistence.Redis
}

// NewRedisIndex builds the key-value backed index.
func NewRedisIndex(store *persistence.Redis) *RedisIndex {
	return &RedisIndex{store: store}
}

func openKey(openerID, categoryValue string) string {
	return fmt.Sprintf("ticket:open:%s:%s", openerID, categoryValue)
}

// FindOpen looks up an existing open ticket.
func (x *RedisIndex) FindOpen(ctx context.Context, openerID, categoryValue string) (string, bool, error) {
	channelID, err := x.store.Client.Get(ctx, openKey(openerID, categoryValue)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return channelID, true, nil
}

// Add records the ticket's channel under its (opener, category) key.
func (x *RedisIndex) Add(ctx context.Context, t domain.Ticket) error {
	return x.store.Client.Set(ctx, openKey(t.OpenerID, t.CategoryValue), t.ChannelID, 0).Err()
}

// Remove forgets the ticket on close.
func (x *RedisIndex) Remove(ctx context.Context, t domain.Ticket) error {
	return x.store.Client.Del(ctx, openKey(t.OpenerID, t.CategoryValue)).Err()
}
