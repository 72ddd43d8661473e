package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"duelazo-match-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// PoolSource fetches the full question pool for one difficulty tier from a
// backing store (e.g. Postgres).
type PoolSource interface {
	LoadPool(ctx context.Context, difficulty domain.Difficulty) ([]domain.Question, error)
}

// QuestionBank caches per-difficulty pools with TTL and samples draws from
// them, deduping concurrent pool fills.
type QuestionBank struct {
	source PoolSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.Mutex
	cache map[domain.Difficulty]cachedPool
}

type cachedPool struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(source PoolSource, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[domain.Difficulty]cachedPool),
	}
}

// Draw concatenates an independently randomized sample per tier. It fails
// loudly when any tier cannot satisfy its count; callers never receive a
// short set.
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
	now := b.clock()

	b.mu.Lock()
	if entry, ok := b.cache[difficulty]; ok && entry.expiresAt.After(now) {
		b.mu.Unlock()
		return entry.questions, nil
	}
	b.mu.Unlock()

	result, err, _ := b.sf.Do(string(difficulty), func() (interface{}, error) {
		now := b.clock()
		b.mu.Lock()
		if entry, ok := b.cache[difficulty]; ok && entry.expiresAt.After(now) {
			b.mu.Unlock()
			return entry.questions, nil
		}
		b.mu.Unlock()

		questions, err := b.source.LoadPool(ctx, difficulty)
		if err != nil {
			return nil, err
		}

		expiresAt := now.Add(b.ttlWithJitter())
		b.mu.Lock()
		b.cache[difficulty] = cachedPool{
			questions: questions,
			expiresAt: expiresAt,
		}
		b.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// sample picks count distinct questions uniformly from the pool.
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

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// StaticPoolSource serves pools from an in-memory map (tests/demos).
type StaticPoolSource struct {
	pools map[domain.Difficulty][]domain.Question
}

func NewStaticPoolSource(pools map[domain.Difficulty][]domain.Question) *StaticPoolSource {
	return &StaticPoolSource{pools: pools}
}

func (s *StaticPoolSource) LoadPool(_ context.Context, difficulty domain.Difficulty) ([]domain.Question, error) {
	return s.pools[difficulty], nil
}
