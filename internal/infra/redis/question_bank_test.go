package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"duelazo-match-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingSource struct {
	loads int
	pools map[domain.Difficulty][]domain.Question
}

func (s *countingSource) LoadPool(_ context.Context, d domain.Difficulty) ([]domain.Question, error) {
	s.loads++
	return s.pools[d], nil
}

func TestQuestionBankCachesPoolsInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	source := &countingSource{pools: testPools()}
	bank := NewQuestionBank(client, source, 10*time.Minute)

	ctx := context.Background()
	questions, err := bank.Draw(ctx, domain.Round1Mix)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if len(questions) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(questions))
	}
	if source.loads != 3 {
		t.Fatalf("expected one load per difficulty, got %d", source.loads)
	}

	for _, d := range []domain.Difficulty{domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard} {
		if !mr.Exists("duelazo:pool:" + string(d)) {
			t.Fatalf("expected cached pool for %s", d)
		}
	}

	// Second draw must come from the cache.
	if _, err := bank.Draw(ctx, domain.Round1Mix); err != nil {
		t.Fatalf("cached draw: %v", err)
	}
	if source.loads != 3 {
		t.Fatalf("expected cache hit, got %d loads", source.loads)
	}
}

func TestQuestionBankFailsOnShortPool(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pools := testPools()
	pools[domain.DifficultyHard] = pools[domain.DifficultyHard][:2]
	bank := NewQuestionBank(client, &countingSource{pools: pools}, time.Minute)

	_, err = bank.Draw(context.Background(), domain.Round1Mix)
	if !errors.Is(err, domain.ErrQuestionSupply) {
		t.Fatalf("expected ErrQuestionSupply, got %v", err)
	}
}

func testPools() map[domain.Difficulty][]domain.Question {
	pools := make(map[domain.Difficulty][]domain.Question)
	var id int64
	add := func(d domain.Difficulty, n int) {
		for i := 0; i < n; i++ {
			id++
			pools[d] = append(pools[d], domain.Question{
				ID:            id,
				Text:          fmt.Sprintf("%s question %d", d, i),
				Options:       []string{"right", "wrong", "worse", "worst"},
				CorrectAnswer: "right",
				Difficulty:    d,
			})
		}
	}
	add(domain.DifficultyEasy, 4)
	add(domain.DifficultyMedium, 5)
	add(domain.DifficultyHard, 8)
	return pools
}
