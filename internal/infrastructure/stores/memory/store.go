package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"eval-cache/internal/domain/models"
	"eval-cache/internal/domain/repositories"
)

var _ repositories.DocumentStore = (*Store)(nil)

// Store 进程内文档存储，用于测试和本地运行。
// 所有操作在同一把锁下完成，命中计数的自增天然是原子的。
type Store struct {
	mu      sync.RWMutex
	entries map[string]*models.CacheEntry
	closed  bool
}

// New 创建内存存储
func New() *Store {
	return &Store{entries: make(map[string]*models.CacheEntry)}
}

// Name 存储类型名称
func (s *Store) Name() string { return "memory" }

func (s *Store) FindMatching(ctx context.Context, key models.CacheKey, limit int) ([]*models.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	var matched []*models.CacheEntry
	for _, e := range s.entries {
		if key.Matches(e.Request) {
			matched = append(matched, e.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return models.Outranks(matched[i], matched[j])
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) Insert(ctx context.Context, entry *models.CacheEntry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if entry == nil {
		return "", fmt.Errorf("entry cannot be nil")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}

	stored := entry.Clone()
	stored.ID = id.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errClosed
	}
	s.entries[stored.ID] = stored
	return stored.ID, nil
}

func (s *Store) IncrementHitCount(ctx context.Context, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}
	e, ok := s.entries[id]
	if !ok {
		return 0, models.ErrEntryNotFound
	}
	e.HitCount++
	return e.HitCount, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	e, ok := s.entries[id]
	if !ok {
		return nil, models.ErrEntryNotFound
	}
	return e.Clone(), nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed
	}
	return int64(len(s.entries)), nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var errClosed = errors.New("memory store is closed")
