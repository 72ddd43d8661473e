package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"duelazo-match-service/internal/domain"
	"duelazo-match-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionBank caches per-difficulty question pools in Redis and falls back
// to a PoolSource on cache miss.
// Pools are stored as: SET duelazo:pool:{difficulty} {json array}
type QuestionBank struct {
	client *redis.Client
	source memory.PoolSource
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionBank(client *redis.Client, source memory.PoolSource, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Draw concatenates an independently randomized sample per tier, failing
// loudly when a tier cannot satisfy its count.
func (b *QuestionBank) Draw(ctx context.Context, mix []domain.DrawSpec) ([]domain.Question, error) {
	var out []domain.Question
	for _, spec := range mix {
		pool, err := b.pool(ctx, spec.Difficulty)
		if err != nil {
			return nil, err
		}
		if len(pool) < spec.Count {
			return nil, fmt.Errorf("%w: need %d %s questions, have %d",
				domain.ErrQuestionSupply, spec.Count, spec.Difficulty, len(pool))
		}
		out = append(out, b.sample(pool, spec.Count)...)
	}
	return out, nil
}

func (b *QuestionBank) pool(ctx context.Context, difficulty domain.Difficulty) ([]domain.Question, error) {
	key := b.poolKey(difficulty)

	raw, err := b.client.Get(ctx, key).Bytes()
	if err == nil {
		return decodePool(raw)
	}

	result, err, _ := b.sf.Do(string(difficulty), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		raw, err := b.client.Get(ctx, key).Bytes()
		if err == nil {
			return decodePool(raw)
		}

		questions, err := b.source.LoadPool(ctx, difficulty)
		if err != nil {
			return nil, err
		}

		encoded, err := json.Marshal(questions)
		if err != nil {
			return nil, err
		}
		_ = b.client.Set(ctx, key, encoded, b.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) sample(pool []domain.Question, count int) []domain.Question {
	b.mu.Lock()
	indices := b.rnd.Perm(len(pool))
	b.mu.Unlock()

	out := make([]domain.Question, 0, count)
	for _, idx := range indices[:count] {
		out = append(out, pool[idx])
	}
	return out
}

func (b *QuestionBank) poolKey(difficulty domain.Difficulty) string {
	return "duelazo:pool:" + string(difficulty)
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

func decodePool(raw []byte) ([]domain.Question, error) {
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode cached pool: %w", err)
	}
	return questions, nil
}
