package roomstore

import (
	"context"
	"sync"

	"github.com/kiko-beam/beamlink/internal/models"
)

// MemoryStore is an in-process Store for tests and Redis-less deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]models.RoomMetadata
	codes map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]models.RoomMetadata),
		codes: make(map[string]string),
	}
}

func (s *MemoryStore) Save(ctx context.Context, room models.RoomMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	s.codes[room.Code] = room.ID
	return nil
}

func (s *MemoryStore) Resolve(ctx context.Context, identifier string) (models.RoomMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roomID := identifier
	if id, ok := s.codes[identifier]; ok {
		roomID = id
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return models.RoomMetadata{}, ErrNotFound
	}
	return room, nil
}

func (s *MemoryStore) Delete(ctx context.Context, room models.RoomMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room.ID)
	delete(s.codes, room.Code)
	return nil
}
