// Package presence mirrors relay room membership into Redis so the REST
// surface can report live peer counts without reaching into the relay.
package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const peerSetTTL = 24 * time.Hour

// Tracker records which peers are currently in which room.
type Tracker interface {
	Add(room, peerID string)
	Remove(room, peerID string)
	Count(room string) int
}

// Noop is used when no Redis is configured; the relay's own table remains
// the source of truth.
type Noop struct{}

func (Noop) Add(room, peerID string)    {}
func (Noop) Remove(room, peerID string) {}
func (Noop) Count(room string) int      { return 0 }

// RedisTracker keeps peer sets under room:<id>:peers.
type RedisTracker struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisTracker(rdb *redis.Client, log zerolog.Logger) *RedisTracker {
	return &RedisTracker{rdb: rdb, log: log.With().Str("component", "presence").Logger()}
}

func (t *RedisTracker) Add(room, peerID string) {
	ctx := context.Background()
	key := "room:" + room + ":peers"
	if err := t.rdb.SAdd(ctx, key, peerID).Err(); err != nil {
		t.log.Warn().Err(err).Str("room", room).Msg("failed to record peer")
		return
	}
	t.rdb.Expire(ctx, key, peerSetTTL)
}

func (t *RedisTracker) Remove(room, peerID string) {
	if err := t.rdb.SRem(context.Background(), "room:"+room+":peers", peerID).Err(); err != nil {
		t.log.Warn().Err(err).Str("room", room).Msg("failed to remove peer")
	}
}

func (t *RedisTracker) Count(room string) int {
	n, err := t.rdb.SCard(context.Background(), "room:"+room+":peers").Result()
	if err != nil {
		return 0
	}
	return int(n)
}
