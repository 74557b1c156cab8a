package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"eval-cache/configs"
	"eval-cache/internal/domain/repositories"
	"eval-cache/internal/infrastructure/stores/storetest"
)

func TestKeys(t *testing.T) {
	s := NewWithClient(nil, "evalcache", nil)

	assert.Equal(t, "evalcache:entry:abc", s.entryKey("abc"))
	assert.Equal(t, "evalcache:all", s.allKey())

	k, err := s.indexKey("model", "gpt")
	require.NoError(t, err)
	assert.Equal(t, `evalcache:idx:"model":"gpt"`, k)

	// 嵌套对象按键排序编码，相同的值得到相同的索引键
	k1, err := s.indexKey("params", map[string]any{"b": 1.0, "a": 2.0})
	require.NoError(t, err)
	k2, err := s.indexKey("params", map[string]any{"a": 2.0, "b": 1.0})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Equal(t, `evalcache:idx:"params":{"a":2,"b":1}`, k1)

	keys, err := s.indexKeys(storetest.Key(t, map[string]any{"z": 1, "a": true}))
	require.NoError(t, err)
	assert.Equal(t, []string{`evalcache:idx:"a":true`, `evalcache:idx:"z":1`}, keys)
}

func TestParseEntry(t *testing.T) {
	e, err := parseEntry("id-1", map[string]string{
		"request":    `{"model":"x","n":2}`,
		"response":   `{"Score":0.5,"text":"hi"}`,
		"score":      "0.5",
		"hit_count":  "3",
		"created_at": "1714564800000000000",
	})
	require.NoError(t, err)

	assert.Equal(t, "id-1", e.ID)
	assert.Equal(t, int64(2), e.Request["n"])
	assert.Equal(t, "hi", e.Response["text"])
	assert.Equal(t, 0.5, e.Score)
	assert.Equal(t, int64(3), e.HitCount)
	assert.True(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Equal(e.CreatedAt))

	_, err = parseEntry("id-2", map[string]string{"request": `{}`, "response": `{}`, "score": "x"})
	assert.Error(t, err)
}

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	addr := fmt.Sprintf("%s:%s", host, port.Port())

	n := 0
	storetest.Run(t, func(t *testing.T) repositories.DocumentStore {
		n++
		// 每个子测试使用独立前缀，互不干扰
		s, err := New(ctx, &configs.RedisConfig{Addr: addr, KeyPrefix: fmt.Sprintf("test%d:", n)}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close(context.Background()) })
		return s
	})

	t.Run("IncrementDoesNotCreateHash", func(t *testing.T) {
		s, err := New(ctx, &configs.RedisConfig{Addr: addr, KeyPrefix: "ghost:"}, nil)
		require.NoError(t, err)
		defer s.Close(ctx)

		_, err = s.IncrementHitCount(ctx, "missing")
		require.Error(t, err)

		raw := goredis.NewClient(&goredis.Options{Addr: addr})
		defer raw.Close()
		exists, err := raw.Exists(ctx, "ghost:entry:missing").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(0), exists)
	})
}
