package memory

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"duelazo-match-service/internal/app"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
	// codeAttempts bounds collision retries; exhausting it means the
	// namespace is effectively full, which is practically unreachable.
	codeAttempts = 1000
)

// RoomBuilder constructs a room for a freshly generated code.
type RoomBuilder func(code, creator string, maxPlayers int) *app.Room

// RoomStore is the in-memory implementation of app.RoomRegistry. The map is
// guarded by one coarse lock held only for map operations; each room carries
// its own lock for state mutation.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*app.Room
	build RoomBuilder
	rnd   *rand.Rand
}

func NewRoomStore(build RoomBuilder) *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*app.Room),
		build: build,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *RoomStore) Create(creator string, maxPlayers int) (*app.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.uniqueCodeLocked()
	if err != nil {
		return nil, err
	}
	room := s.build(code, creator, maxPlayers)
	s.rooms[code] = room
	return room, nil
}

func (s *RoomStore) Get(code string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	return room, ok
}

func (s *RoomStore) DeleteIfRemovable(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return
	}
	if room.Removable() {
		delete(s.rooms, code)
	}
}

func (s *RoomStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

func (s *RoomStore) uniqueCodeLocked() (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code := s.randomCodeLocked()
		if _, taken := s.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("room code namespace exhausted after %d attempts", codeAttempts)
}

func (s *RoomStore) randomCodeLocked() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[s.rnd.Intn(len(codeAlphabet))]
	}
	return string(buf)
}

var _ app.RoomRegistry = (*RoomStore)(nil)

// DefaultRoomBuilder builds rooms with stock options.
func DefaultRoomBuilder(code, creator string, maxPlayers int) *app.Room {
	return app.NewRoom(code, creator, maxPlayers)
}

var _ RoomBuilder = DefaultRoomBuilder
