// Package sqlite 基于 SQLite 的文档存储实现。
// 键字段单独存放在 cache_key_fields 表中，每个查询字段对应一个 EXISTS 子查询，
// 因此部分键匹配可以走 (field, value_json) 索引。
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"eval-cache/configs"
	"eval-cache/internal/domain/models"
	"eval-cache/internal/domain/repositories"
)

var _ repositories.DocumentStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	id         TEXT PRIMARY KEY,
	request    TEXT NOT NULL,
	response   TEXT NOT NULL,
	score      REAL NOT NULL,
	hit_count  INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_rank
	ON cache_entries (score DESC, created_at DESC, id DESC);
CREATE TABLE IF NOT EXISTS cache_key_fields (
	entry_id   TEXT NOT NULL REFERENCES cache_entries (id) ON DELETE CASCADE,
	field      TEXT NOT NULL,
	value_json TEXT NOT NULL,
	PRIMARY KEY (entry_id, field)
);
CREATE INDEX IF NOT EXISTS idx_cache_key_fields_value
	ON cache_key_fields (field, value_json);
`

const selectColumns = `SELECT e.id, e.request, e.response, e.score, e.hit_count, e.created_at FROM cache_entries e`

// Store SQLite 文档存储
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New 打开（必要时创建）数据库文件并初始化表结构
func New(ctx context.Context, cfg *configs.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sqlite config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sqlite config: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}

	logger.InfoContext(ctx, "SQLite文档存储初始化成功", "path", cfg.Path)
	return &Store{db: db, logger: logger}, nil
}

func dsn(cfg *configs.SQLiteConfig) string {
	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()),
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
	}
	return "file:" + cfg.Path + "?" + strings.Join(pragmas, "&")
}

// Name 存储类型名称
func (s *Store) Name() string { return "sqlite" }

// FindMatching 查找满足键全部字段约束的条目，按分数、创建时间、ID 降序返回
func (s *Store) FindMatching(ctx context.Context, key models.CacheKey, limit int) ([]*models.CacheEntry, error) {
	query, args, err := buildFindQuery(key, limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cache entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.CacheEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache entries: %w", err)
	}
	return entries, nil
}

func buildFindQuery(key models.CacheKey, limit int) (string, []any, error) {
	var b strings.Builder
	b.WriteString(selectColumns)

	args := make([]any, 0, len(key)*2+1)
	for i, field := range key.Fields() {
		value, err := models.CanonicalJSON(key[field])
		if err != nil {
			return "", nil, err
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString("EXISTS (SELECT 1 FROM cache_key_fields f WHERE f.entry_id = e.id AND f.field = ? AND f.value_json = ?)")
		args = append(args, field, value)
	}

	b.WriteString(" ORDER BY e.score DESC, e.created_at DESC, e.id DESC")
	if limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	return b.String(), args, nil
}

// Insert 在一个事务中写入条目及其键字段
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

	uid, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	id := uid.String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cache_entries (id, request, response, score, hit_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(request), string(response), entry.Score, entry.HitCount, entry.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert cache entry: %w", err)
	}

	for _, field := range entry.Request.Fields() {
		value, err := models.CanonicalJSON(entry.Request[field])
		if err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cache_key_fields (entry_id, field, value_json) VALUES (?, ?, ?)`,
			id, field, value,
		); err != nil {
			return "", fmt.Errorf("insert key field %s: %w", field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit insert: %w", err)
	}
	return id, nil
}

// IncrementHitCount 单条 UPDATE ... RETURNING 语句完成自增并返回新值
func (s *Store) IncrementHitCount(ctx context.Context, id string) (int64, error) {
	var hitCount int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE cache_entries SET hit_count = hit_count + 1 WHERE id = ? RETURNING hit_count`, id,
	).Scan(&hitCount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrEntryNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment hit count: %w", err)
	}
	return hitCount, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE e.id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrEntryNotFound
	}
	return e, err
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.CacheEntry, error) {
	var (
		e                 models.CacheEntry
		request, response string
		createdAt         int64
	)
	if err := row.Scan(&e.ID, &request, &response, &e.Score, &e.HitCount, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}

	rawRequest, err := models.DecodeObject([]byte(request), "request")
	if err != nil {
		return nil, fmt.Errorf("decode request of %s: %v", e.ID, err)
	}
	rawResponse, err := models.DecodeObject([]byte(response), "response")
	if err != nil {
		return nil, fmt.Errorf("decode response of %s: %v", e.ID, err)
	}

	e.Request = models.CacheKey(rawRequest)
	e.Response = models.ResponsePayload(rawResponse)
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	return &e, nil
}
