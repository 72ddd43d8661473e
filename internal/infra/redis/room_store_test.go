package redis

import (
	"testing"
	"time"

	"duelazo-match-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRoomStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRoomStore(client, time.Minute, memory.DefaultRoomBuilder)

	room, err := store.Create("Alice", 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("duelazo:room:" + room.Code()) {
		t.Fatalf("expected redis liveness key to be set")
	}

	store.DeleteIfRemovable(room.Code())
	if mr.Exists("duelazo:room:" + room.Code()) {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get(room.Code()); ok {
		t.Fatalf("expected room removed from local map")
	}
}
