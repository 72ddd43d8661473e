package redis

import (
	"context"
	"time"

	"duelazo-match-service/internal/app"
	"duelazo-match-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
)

// RoomStore is a Redis-aware room registry.
// Notes:
//   - Rooms themselves stay in a local in-memory map so the per-room lock and
//     broadcast flow keep working unchanged.
//   - Redis holds liveness markers per room code, which lets an operator see
//     active rooms across restarts and could be extended to cross-instance
//     code reservation.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	local  *memory.RoomStore
}

func NewRoomStore(client *redis.Client, ttl time.Duration, build memory.RoomBuilder) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		local:  memory.NewRoomStore(build),
	}
}

func (s *RoomStore) Create(creator string, maxPlayers int) (*app.Room, error) {
	room, err := s.local.Create(creator, maxPlayers)
	if err != nil {
		return nil, err
	}
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(room.Code()), creator, s.ttl).Err()
	return room, nil
}

func (s *RoomStore) Get(code string) (*app.Room, bool) {
	return s.local.Get(code)
}

func (s *RoomStore) DeleteIfRemovable(code string) {
	room, ok := s.local.Get(code)
	if !ok {
		return
	}
	if room.Removable() {
		s.local.Delete(code)
		_ = s.client.Del(context.Background(), s.key(code)).Err()
	}
}

func (s *RoomStore) Delete(code string) {
	s.local.Delete(code)
	_ = s.client.Del(context.Background(), s.key(code)).Err()
}

func (s *RoomStore) key(code string) string {
	return "duelazo:room:" + code
}

var _ app.RoomRegistry = (*RoomStore)(nil)
