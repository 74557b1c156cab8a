package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eval-cache/configs"
	"eval-cache/internal/domain/models"
	"eval-cache/internal/domain/repositories/mocks"
	"eval-cache/internal/infrastructure/stores/memory"
	"eval-cache/pkg/logger"
)

func newTestCache(t *testing.T) (*ResultCache, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, nil, logger.Discard()), store
}

// fixedClock 每次调用前进一秒，保证创建时间严格递增
func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func TestResultCache_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	saved, err := c.Save(ctx,
		map[string]any{"model": "x", "temp": 0.5},
		map[string]any{"text": "hi", "Score": 0.9})
	require.NoError(t, err)
	assert.True(t, saved.Stored)
	assert.Equal(t, SavedMessage, saved.Message)
	assert.NotEmpty(t, saved.ID)

	res, err := c.Lookup(ctx, map[string]any{"model": "x", "temp": 0.5})
	require.NoError(t, err)
	require.True(t, res.Hit)
	assert.Equal(t, 0.9, res.Entry.Response["Score"])
	assert.Equal(t, "hi", res.Entry.Response["text"])
	assert.Equal(t, int64(1), res.Entry.HitCount)
	assert.Equal(t, saved.ID, res.Entry.ID)

	res, err = c.Lookup(ctx, map[string]any{"model": "y"})
	require.NoError(t, err)
	assert.False(t, res.Hit)
	assert.Nil(t, res.Entry)
}

func TestResultCache_MissDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)

	saved, err := c.Save(ctx, map[string]any{"model": "x"}, map[string]any{"Score": 1})
	require.NoError(t, err)

	res, err := c.Lookup(ctx, map[string]any{"model": "z"})
	require.NoError(t, err)
	assert.False(t, res.Hit)

	e, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.HitCount)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestResultCache_SelectsHighestScore(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)
	key := map[string]any{"model": "x"}

	high, err := c.Save(ctx, key, map[string]any{"Score": 0.8, "text": "high"})
	require.NoError(t, err)
	low, err := c.Save(ctx, key, map[string]any{"Score": 0.3, "text": "low"})
	require.NoError(t, err)

	res, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, res.Hit)
	assert.Equal(t, high.ID, res.Entry.ID)
	assert.Equal(t, "high", res.Entry.Response["text"])

	// 只有被选中的条目计数
	e, err := store.Get(ctx, low.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.HitCount)
}

func TestResultCache_TieBreakMostRecent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)
	c.now = fixedClock()
	key := map[string]any{"model": "x"}

	_, err := c.Save(ctx, key, map[string]any{"Score": 0.5, "text": "older"})
	require.NoError(t, err)
	newer, err := c.Save(ctx, key, map[string]any{"Score": 0.5, "text": "newer"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := c.Lookup(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, res.Entry.ID)
	}
}

func TestResultCache_RepeatedLookupsIncrement(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)
	key := map[string]any{"model": "x", "temp": 0.5}

	_, err := c.Save(ctx, key, map[string]any{"Score": 0.9})
	require.NoError(t, err)

	for want := int64(1); want <= 5; want++ {
		res, err := c.Lookup(ctx, key)
		require.NoError(t, err)
		require.True(t, res.Hit)
		assert.Equal(t, want, res.Entry.HitCount)
	}
}

func TestResultCache_PartialKey(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	saved, err := c.Save(ctx,
		map[string]any{"a": "v", "b": 2, "c": []any{"x"}},
		map[string]any{"Score": 0.4})
	require.NoError(t, err)

	res, err := c.Lookup(ctx, map[string]any{"a": "v"})
	require.NoError(t, err)
	require.True(t, res.Hit)
	assert.Equal(t, saved.ID, res.Entry.ID)

	// 未设置的字段（null）不构成约束
	res, err = c.Lookup(ctx, map[string]any{"a": "v", "d": nil})
	require.NoError(t, err)
	assert.True(t, res.Hit)

	res, err = c.Lookup(ctx, map[string]any{"a": "v", "d": 1})
	require.NoError(t, err)
	assert.False(t, res.Hit)
}

func TestResultCache_LargeIntegerKeys(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	_, err := c.Save(ctx, map[string]any{"seed": int64(1<<62 + 1)}, map[string]any{"Score": 1})
	require.NoError(t, err)

	res, err := c.Lookup(ctx, map[string]any{"seed": int64(1 << 62)})
	require.NoError(t, err)
	assert.False(t, res.Hit)

	res, err = c.Lookup(ctx, map[string]any{"seed": json.Number("4611686018427387905")})
	require.NoError(t, err)
	require.True(t, res.Hit)
	assert.Equal(t, int64(1<<62+1), res.Entry.Request["seed"])
}

func TestResultCache_NormalizationEquivalence(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	_, err := c.Save(ctx,
		map[string]any{"model": "x", "n": 3, "params": map[string]any{"top_k": int64(5), "stop": []string{"a"}}},
		map[string]any{"Score": 1})
	require.NoError(t, err)

	// 相同的逻辑键：字段顺序不同、数值表示不同、经过 JSON 往返
	var decoded map[string]any
	d := json.NewDecoder(strings.NewReader(`{"params":{"stop":["a"],"top_k":5.0},"n":3.0,"model":"x"}`))
	d.UseNumber()
	require.NoError(t, d.Decode(&decoded))

	res, err := c.Lookup(ctx, decoded)
	require.NoError(t, err)
	assert.True(t, res.Hit)

	res, err = c.Lookup(ctx, map[string]any{"n": float32(3), "model": "x"})
	require.NoError(t, err)
	assert.True(t, res.Hit)
}

func TestResultCache_ConcurrentLookups(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)
	key := map[string]any{"model": "x"}

	saved, err := c.Save(ctx, key, map[string]any{"Score": 0.9})
	require.NoError(t, err)

	const callers = 50
	var wg sync.WaitGroup
	seen := make(chan int64, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Lookup(ctx, key)
			if err == nil && res.Hit {
				seen <- res.Entry.HitCount
			}
		}()
	}
	wg.Wait()
	close(seen)

	// 每个调用方看到的计数各不相同，覆盖 1..C
	counts := make(map[int64]bool)
	for n := range seen {
		counts[n] = true
	}
	assert.Len(t, counts, callers)

	e, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(callers), e.HitCount)
}

func TestResultCache_SaveAlwaysInserts(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)
	key := map[string]any{"model": "x"}

	first, err := c.Save(ctx, key, map[string]any{"Score": 0.5})
	require.NoError(t, err)
	second, err := c.Save(ctx, key, map[string]any{"Score": 0.5})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestResultCache_MalformedInput(t *testing.T) {
	ctx := context.Background()
	m := new(mocks.DocumentStore)
	c := New(m, nil, logger.Discard())

	tests := []struct {
		name     string
		key      map[string]any
		response map[string]any
	}{
		{"nil key", nil, map[string]any{"Score": 1}},
		{"nil response", map[string]any{"a": 1}, nil},
		{"missing score", map[string]any{"a": 1}, map[string]any{"text": "x"}},
		{"string score", map[string]any{"a": 1}, map[string]any{"Score": "high"}},
		{"unsupported key value", map[string]any{"a": struct{}{}}, map[string]any{"Score": 1}},
		{"empty field name", map[string]any{"": 1}, map[string]any{"Score": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Save(ctx, tt.key, tt.response)
			require.ErrorIs(t, err, models.ErrMalformedInput)
			assert.False(t, models.IsStorageError(err))
		})
	}

	_, err := c.Lookup(ctx, map[string]any{"a": make(chan int)})
	require.ErrorIs(t, err, models.ErrMalformedInput)

	// 非法输入不会触达存储
	m.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "FindMatching", mock.Anything, mock.Anything, mock.Anything)
}

func TestResultCache_StorageErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")

	t.Run("find", func(t *testing.T) {
		m := new(mocks.DocumentStore)
		m.On("FindMatching", mock.Anything, mock.Anything, 0).Return(nil, boom)
		c := New(m, nil, logger.Discard())

		_, err := c.Lookup(ctx, map[string]any{"a": 1})
		require.Error(t, err)
		assert.True(t, models.IsStorageError(err))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("increment", func(t *testing.T) {
		m := new(mocks.DocumentStore)
		m.On("FindMatching", mock.Anything, mock.Anything, 0).
			Return([]*models.CacheEntry{{ID: "e1", Score: 1}}, nil)
		m.On("IncrementHitCount", mock.Anything, "e1").Return(int64(0), boom)
		c := New(m, nil, logger.Discard())

		_, err := c.Lookup(ctx, map[string]any{"a": 1})
		var se *models.StorageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "increment", se.Op)
	})

	t.Run("insert", func(t *testing.T) {
		m := new(mocks.DocumentStore)
		m.On("Insert", mock.Anything, mock.Anything).Return("", boom)
		c := New(m, nil, logger.Discard())

		res, err := c.Save(ctx, map[string]any{"a": 1}, map[string]any{"Score": 1})
		assert.Nil(t, res)
		var se *models.StorageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "insert", se.Op)
	})
}

func TestResultCache_CandidateLimitAndScorePath(t *testing.T) {
	ctx := context.Background()
	m := new(mocks.DocumentStore)
	c := New(m, &configs.CacheConfig{ScorePath: "metrics.quality", CandidateLimit: 10}, logger.Discard())

	m.On("Insert", mock.Anything, mock.MatchedBy(func(e *models.CacheEntry) bool {
		return e.Score == 0.75 && e.HitCount == 0
	})).Return("id-1", nil)
	m.On("FindMatching", mock.Anything, mock.Anything, 10).Return(nil, nil)

	saved, err := c.Save(ctx, map[string]any{"a": 1}, map[string]any{"metrics": map[string]any{"quality": 0.75}})
	require.NoError(t, err)
	assert.Equal(t, "id-1", saved.ID)

	res, err := c.Lookup(ctx, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.False(t, res.Hit)

	m.AssertExpectations(t)
}

func TestResultCache_GetAndStatistics(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	saved, err := c.Save(ctx, map[string]any{"a": 1}, map[string]any{"Score": 1})
	require.NoError(t, err)

	_, err = c.Lookup(ctx, map[string]any{"a": 1})
	require.NoError(t, err)
	_, err = c.Lookup(ctx, map[string]any{"a": 2})
	require.NoError(t, err)

	e, err := c.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.HitCount, "get does not count as a hit")

	_, err = c.Get(ctx, "unknown")
	assert.ErrorIs(t, err, models.ErrEntryNotFound)
	assert.False(t, models.IsStorageError(err))

	_, err = c.Get(ctx, "")
	assert.ErrorIs(t, err, models.ErrMalformedInput)

	stats, err := c.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, "memory", stats.Store)
}

func TestResultCache_Health(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)

	h := c.Health(ctx)
	assert.True(t, h.Healthy)
	assert.Equal(t, "healthy", h.Status)

	require.NoError(t, store.Close(ctx))
	h = c.Health(ctx)
	assert.False(t, h.Healthy)
	assert.Equal(t, "unhealthy", h.Status)
	assert.NotEmpty(t, h.Error)
}
