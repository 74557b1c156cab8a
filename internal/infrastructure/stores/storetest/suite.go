// Package storetest 提供所有 DocumentStore 实现共用的行为测试
package storetest

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eval-cache/internal/domain/models"
	"eval-cache/internal/domain/repositories"
)

// Factory 为每个子测试创建一个空的存储
type Factory func(t *testing.T) repositories.DocumentStore

// Run 对存储实现运行完整的行为测试
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("GetUnknown", func(t *testing.T) { testGetUnknown(t, newStore(t)) })
	t.Run("FindExact", func(t *testing.T) { testFindExact(t, newStore(t)) })
	t.Run("FindPartialKey", func(t *testing.T) { testFindPartialKey(t, newStore(t)) })
	t.Run("FindNoMatch", func(t *testing.T) { testFindNoMatch(t, newStore(t)) })
	t.Run("FindNestedAndArrays", func(t *testing.T) { testFindNestedAndArrays(t, newStore(t)) })
	t.Run("FindLargeIntegers", func(t *testing.T) { testFindLargeIntegers(t, newStore(t)) })
	t.Run("FindNegativeZero", func(t *testing.T) { testFindNegativeZero(t, newStore(t)) })
	t.Run("FindEmptyKeyMatchesAll", func(t *testing.T) { testFindEmptyKey(t, newStore(t)) })
	t.Run("Ordering", func(t *testing.T) { testOrdering(t, newStore(t)) })
	t.Run("Limit", func(t *testing.T) { testLimit(t, newStore(t)) })
	t.Run("IncrementHitCount", func(t *testing.T) { testIncrement(t, newStore(t)) })
	t.Run("IncrementUnknown", func(t *testing.T) { testIncrementUnknown(t, newStore(t)) })
	t.Run("ConcurrentIncrement", func(t *testing.T) { testConcurrentIncrement(t, newStore(t)) })
	t.Run("Count", func(t *testing.T) { testCount(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// Entry 构造一条已规范化的条目
func Entry(t *testing.T, key, response map[string]any, score float64, createdAt time.Time) *models.CacheEntry {
	t.Helper()
	k, err := models.NormalizeKey(key)
	require.NoError(t, err)
	r, err := models.NormalizeResponse(response)
	require.NoError(t, err)
	return &models.CacheEntry{
		Request:   k,
		Response:  r,
		Score:     score,
		CreatedAt: createdAt,
	}
}

// Key 构造一个已规范化的键
func Key(t *testing.T, key map[string]any) models.CacheKey {
	t.Helper()
	k, err := models.NormalizeKey(key)
	require.NoError(t, err)
	return k
}

func insert(t *testing.T, store repositories.DocumentStore, e *models.CacheEntry) string {
	t.Helper()
	id, err := store.Insert(context.Background(), e)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func testInsertAndGet(t *testing.T, store repositories.DocumentStore) {
	ctx := context.Background()
	e := Entry(t,
		map[string]any{"model": "x", "temp": 0.5},
		map[string]any{"text": "hi", "Score": 0.9, "meta": map[string]any{"tokens": 12}},
		0.9, base)

	id := insert(t, store, e)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, e.Request, got.Request)
	assert.Equal(t, e.Response, got.Response)
	assert.Equal(t, 0.9, got.Score)
	assert.Equal(t, int64(0), got.HitCount)
	assert.True(t, base.Equal(got.CreatedAt), "created_at = %v", got.CreatedAt)

	second := insert(t, store, e)
	assert.NotEqual(t, id, second, "ids must never be reused")
}

func testGetUnknown(t *testing.T, store repositories.DocumentStore) {
	_, err := store.Get(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, models.ErrEntryNotFound)
}

func testFindExact(t *testing.T, store repositories.DocumentStore) {
	id := insert(t, store, Entry(t, map[string]any{"model": "x", "n": 2}, map[string]any{"Score": 1}, 1, base))
	insert(t, store, Entry(t, map[string]any{"model": "y", "n": 2}, map[string]any{"Score": 1}, 1, base))

	// 整数与浮点表示同一个值时必须能匹配
	found, err := store.FindMatching(context.Background(), Key(t, map[string]any{"n": 2.0, "model": "x"}), 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)
}

func testFindPartialKey(t *testing.T, store repositories.DocumentStore) {
	a := insert(t, store, Entry(t, map[string]any{"a": 1, "b": "one"}, map[string]any{"Score": 1}, 1, base))
	b := insert(t, store, Entry(t, map[string]any{"a": 1, "c": true}, map[string]any{"Score": 2}, 2, base))
	insert(t, store, Entry(t, map[string]any{"a": 2, "b": "one"}, map[string]any{"Score": 3}, 3, base))

	found, err := store.FindMatching(context.Background(), Key(t, map[string]any{"a": int64(1)}), 0)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, b, found[0].ID)
	assert.Equal(t, a, found[1].ID)
}

func testFindNoMatch(t *testing.T, store repositories.DocumentStore) {
	ctx := context.Background()
	insert(t, store, Entry(t, map[string]any{"model": "x"}, map[string]any{"Score": 1}, 1, base))

	found, err := store.FindMatching(ctx, Key(t, map[string]any{"model": "y"}), 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	// 存储的键缺少查询字段时不匹配
	found, err = store.FindMatching(ctx, Key(t, map[string]any{"model": "x", "temp": 0.1}), 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	// 值类型不同不匹配
	found, err = store.FindMatching(ctx, Key(t, map[string]any{"model": 1}), 0)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func testFindNestedAndArrays(t *testing.T, store repositories.DocumentStore) {
	ctx := context.Background()
	id := insert(t, store, Entry(t,
		map[string]any{
			"params": map[string]any{"top_p": 1, "stop": []any{"a", "b"}},
			"tags":   []string{"x", "y"},
		},
		map[string]any{"Score": 1}, 1, base))

	found, err := store.FindMatching(ctx, Key(t, map[string]any{
		"params": map[string]any{"stop": []any{"a", "b"}, "top_p": 1.0},
	}), 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)

	found, err = store.FindMatching(ctx, Key(t, map[string]any{"tags": []any{"x", "y"}}), 0)
	require.NoError(t, err)
	require.Len(t, found, 1)

	// 嵌套对象按整体比较，子集不匹配
	found, err = store.FindMatching(ctx, Key(t, map[string]any{"params": map[string]any{"top_p": 1}}), 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	// 数组顺序敏感
	found, err = store.FindMatching(ctx, Key(t, map[string]any{"tags": []any{"y", "x"}}), 0)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func testFindLargeIntegers(t *testing.T, store repositories.DocumentStore) {
	ctx := context.Background()
	e := Entry(t,
		map[string]any{"model": "x", "seed": json.Number("9007199254740993"), "nonce": json.Number("18446744073709551617")},
		map[string]any{"Score": 1}, 1, base)
	id := insert(t, store, e)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, e.Request, got.Request, "request must round-trip exactly")

	// 超过 2^53 的相邻整数是不同的键
	found, err := store.FindMatching(ctx, Key(t, map[string]any{"model": "x", "seed": json.Number("9007199254740992")}), 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = store.FindMatching(ctx, Key(t, map[string]any{"nonce": json.Number("18446744073709551616")}), 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = store.FindMatching(ctx, Key(t, map[string]any{"seed": int64(9007199254740993), "nonce": json.Number("18446744073709551617")}), 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)
}

func testFindNegativeZero(t *testing.T, store repositories.DocumentStore) {
	id := insert(t, store, Entry(t, map[string]any{"temp": 0}, map[string]any{"Score": 1}, 1, base))

	found, err := store.FindMatching(context.Background(), Key(t, map[string]any{"temp": math.Copysign(0, -1)}), 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)
}

func testFindEmptyKey(t *testing.T, store repositories.DocumentStore) {
	insert(t, store, Entry(t, map[string]any{"a": 1}, map[string]any{"Score": 1}, 1, base))
	insert(t, store, Entry(t, map[string]any{"b": 2}, map[string]any{"Score": 2}, 2, base))

	found, err := store.FindMatching(context.Background(), Key(t, map[string]any{}), 0)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func testOrdering(t *testing.T, store repositories.DocumentStore) {
	key := map[string]any{"model": "x"}
	low := insert(t, store, Entry(t, key, map[string]any{"Score": 0.1}, 0.1, base.Add(time.Hour)))
	highOld := insert(t, store, Entry(t, key, map[string]any{"Score": 0.9}, 0.9, base))
	highNew := insert(t, store, Entry(t, key, map[string]any{"Score": 0.9}, 0.9, base.Add(time.Minute)))
	mid := insert(t, store, Entry(t, key, map[string]any{"Score": 0.5}, 0.5, base))

	found, err := store.FindMatching(context.Background(), Key(t, key), 0)
	require.NoError(t, err)
	require.Len(t, found, 4)

	ids := []string{found[0].ID, found[1].ID, found[2].ID, found[3].ID}
	assert.Equal(t, []string{highNew, highOld, mid, low}, ids)
}

func testLimit(t *testing.T, store repositories.DocumentStore) {
	key := map[string]any{"model": "x"}
	for i := 0; i < 5; i++ {
		insert(t, store, Entry(t, key, map[string]any{"Score": i}, float64(i), base))
	}

	found, err := store.FindMatching(context.Background(), Key(t, key), 2)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, 4.0, found[0].Score)
	assert.Equal(t, 3.0, found[1].Score)
}

func testIncrement(t *testing.T, store repositories.DocumentStore) {
	ctx := context.Background()
	id := insert(t, store, Entry(t, map[string]any{"a": 1}, map[string]any{"Score": 1}, 1, base))

	for want := int64(1); want <= 3; want++ {
		got, err := store.IncrementHitCount(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	e, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.HitCount)
	assert.Equal(t, 1.0, e.Score, "score must not change")
}

func testIncrementUnknown(t *testing.T, store repositories.DocumentStore) {
	ctx := context.Background()
	_, err := store.IncrementHitCount(ctx, "does-not-exist")
	require.ErrorIs(t, err, models.ErrEntryNotFound)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "increment must not create entries")
}

func testConcurrentIncrement(t *testing.T, store repositories.DocumentStore) {
	ctx := context.Background()
	id := insert(t, store, Entry(t, map[string]any{"a": 1}, map[string]any{"Score": 1}, 1, base))

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.IncrementHitCount(ctx, id); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	e, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(callers), e.HitCount)
}

func testCount(t *testing.T, store repositories.DocumentStore) {
	ctx := context.Background()
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	insert(t, store, Entry(t, map[string]any{"a": 1}, map[string]any{"Score": 1}, 1, base))
	insert(t, store, Entry(t, map[string]any{"a": 1}, map[string]any{"Score": 1}, 1, base))

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
