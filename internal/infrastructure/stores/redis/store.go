// Package redis 基于 Redis 的文档存储实现。
//
// 每个条目保存为一个 hash；每个 (字段, 规范化值) 对应一个 id 集合，
// 部分键匹配即对这些集合求交集。
//
//	<prefix>entry:<id>              hash: request, response, score, hit_count, created_at
//	<prefix>idx:<field>:<value>     set:  id
//	<prefix>all                     set:  id
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"eval-cache/configs"
	"eval-cache/internal/domain/models"
	"eval-cache/internal/domain/repositories"
)

var _ repositories.DocumentStore = (*Store)(nil)

// incrScript 只对已存在的条目自增，避免 HINCRBY 凭空创建 hash
var incrScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.call('HINCRBY', KEYS[1], 'hit_count', 1)
end
return false
`)

// Store Redis 文档存储
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// New 按配置连接 Redis 并用 ping 确认可用
func New(ctx context.Context, cfg *configs.RedisConfig, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         strings.TrimSpace(cfg.Addr),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.ErrorContext(ctx, "Redis连接失败", "addr", cfg.Addr, "error", err)
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.InfoContext(ctx, "Redis连接成功", "addr", cfg.Addr, "db", cfg.DB, "prefix", cfg.KeyPrefix)
	return NewWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewWithClient 使用已有客户端创建存储
func NewWithClient(client *redis.Client, prefix string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	prefix = strings.TrimSpace(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Store{client: client, prefix: prefix, logger: logger}
}

// Name 存储类型名称
func (s *Store) Name() string { return "redis" }

func (s *Store) entryKey(id string) string {
	return s.prefix + "entry:" + id
}

func (s *Store) allKey() string {
	return s.prefix + "all"
}

// indexKey 字段名以 JSON 字符串形式写入，保证字段名与值之间的分隔没有歧义
func (s *Store) indexKey(field string, value any) (string, error) {
	name, err := json.Marshal(field)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	encoded, err := models.CanonicalJSON(value)
	if err != nil {
		return "", err
	}
	return s.prefix + "idx:" + string(name) + ":" + encoded, nil
}

func (s *Store) indexKeys(key models.CacheKey) ([]string, error) {
	keys := make([]string, 0, len(key))
	for _, field := range key.Fields() {
		k, err := s.indexKey(field, key[field])
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) FindMatching(ctx context.Context, key models.CacheKey, limit int) ([]*models.CacheEntry, error) {
	idxKeys, err := s.indexKeys(key)
	if err != nil {
		return nil, err
	}

	var ids []string
	if len(idxKeys) == 0 {
		ids, err = s.client.SMembers(ctx, s.allKey()).Result()
	} else {
		ids, err = s.client.SInter(ctx, idxKeys...).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("resolve matching ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.entryKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load matching entries: %w", err)
	}

	entries := make([]*models.CacheEntry, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// 索引存在但条目已不存在
			s.logger.WarnContext(ctx, "索引指向不存在的条目", "id", ids[i])
			continue
		}
		e, err := parseEntry(ids[i], fields)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return models.Outranks(entries[i], entries[j])
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Insert 在 MULTI/EXEC 事务中写入条目和全部索引
func (s *Store) Insert(ctx context.Context, entry *models.CacheEntry) (string, error) {
	if entry == nil {
		return "", fmt.Errorf("entry cannot be nil")
	}

	request, err := json.Marshal(entry.Request)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	response, err := json.Marshal(entry.Response)
	if err != nil {
		return "", fmt.Errorf("encode response: %w", err)
	}
	idxKeys, err := s.indexKeys(entry.Request)
	if err != nil {
		return "", err
	}

	uid, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	id := uid.String()

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.entryKey(id),
			"request", string(request),
			"response", string(response),
			"score", strconv.FormatFloat(entry.Score, 'g', -1, 64),
			"hit_count", entry.HitCount,
			"created_at", entry.CreatedAt.UTC().UnixNano(),
		)
		for _, k := range idxKeys {
			pipe.SAdd(ctx, k, id)
		}
		pipe.SAdd(ctx, s.allKey(), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("insert cache entry: %w", err)
	}
	return id, nil
}

func (s *Store) IncrementHitCount(ctx context.Context, id string) (int64, error) {
	n, err := incrScript.Run(ctx, s.client, []string{s.entryKey(id)}).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, models.ErrEntryNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment hit count: %w", err)
	}
	return n, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.CacheEntry, error) {
	fields, err := s.client.HGetAll(ctx, s.entryKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrEntryNotFound
	}
	return parseEntry(id, fields)
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.client.SCard(ctx, s.allKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}

func parseEntry(id string, fields map[string]string) (*models.CacheEntry, error) {
	e := &models.CacheEntry{ID: id}

	// 存储内容损坏属于存储故障，不沿用输入错误的哨兵
	request, err := models.DecodeObject([]byte(fields["request"]), "request")
	if err != nil {
		return nil, fmt.Errorf("decode request of %s: %v", id, err)
	}
	response, err := models.DecodeObject([]byte(fields["response"]), "response")
	if err != nil {
		return nil, fmt.Errorf("decode response of %s: %v", id, err)
	}
	e.Request = models.CacheKey(request)
	e.Response = models.ResponsePayload(response)

	if e.Score, err = strconv.ParseFloat(fields["score"], 64); err != nil {
		return nil, fmt.Errorf("decode score of %s: %w", id, err)
	}
	if e.HitCount, err = strconv.ParseInt(fields["hit_count"], 10, 64); err != nil {
		return nil, fmt.Errorf("decode hit_count of %s: %w", id, err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode created_at of %s: %w", id, err)
	}
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	return e, nil
}
