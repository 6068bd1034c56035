// Package roomstore persists provisioned room metadata and the short join
// codes that map to room ids.
package roomstore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kiko-beam/beamlink/config"
	"github.com/kiko-beam/beamlink/internal/models"
)

const (
	CodeLength = 6
	roomTTL    = 24 * time.Hour
	codeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no ambiguous chars
)

var ErrNotFound = errors.New("room not found")

// Store holds room metadata keyed by id and join code.
type Store interface {
	Save(ctx context.Context, room models.RoomMetadata) error
	// Resolve accepts a room id or a join code and returns the metadata.
	Resolve(ctx context.Context, identifier string) (models.RoomMetadata, error)
	Delete(ctx context.Context, room models.RoomMetadata) error
}

// GenerateCode returns a random shareable join code.
func GenerateCode() string {
	code := make([]byte, CodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// RedisStore keeps metadata under room:<id> and the code mapping under
// code:<code>, both with a TTL so abandoned rooms age out.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, room models.RoomMetadata) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room metadata: %w", err)
	}
	if err := s.rdb.Set(ctx, "room:"+room.ID, data, roomTTL).Err(); err != nil {
		return fmt.Errorf("store room: %w", err)
	}
	if err := s.rdb.Set(ctx, "code:"+room.Code, room.ID, roomTTL).Err(); err != nil {
		return fmt.Errorf("store room code: %w", err)
	}
	return nil
}

func (s *RedisStore) Resolve(ctx context.Context, identifier string) (models.RoomMetadata, error) {
	roomID := identifier
	if len(identifier) == CodeLength {
		id, err := s.rdb.Get(ctx, "code:"+identifier).Result()
		if err == nil {
			roomID = id
		}
	}

	data, err := s.rdb.Get(ctx, "room:"+roomID).Result()
	if err != nil {
		return models.RoomMetadata{}, ErrNotFound
	}
	var room models.RoomMetadata
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return models.RoomMetadata{}, fmt.Errorf("parse room metadata: %w", err)
	}
	return room, nil
}

func (s *RedisStore) Delete(ctx context.Context, room models.RoomMetadata) error {
	s.rdb.Del(ctx, "room:"+room.ID)
	s.rdb.Del(ctx, "code:"+room.Code)
	s.rdb.Del(ctx, "room:"+room.ID+":peers")
	return nil
}
