// Package mocks 提供仓储接口的 testify mock 实现
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"eval-cache/internal/domain/models"
	"eval-cache/internal/domain/repositories"
)

var _ repositories.DocumentStore = (*DocumentStore)(nil)

// DocumentStore repositories.DocumentStore 的 mock
type DocumentStore struct {
	mock.Mock
}

func (m *DocumentStore) FindMatching(ctx context.Context, key models.CacheKey, limit int) ([]*models.CacheEntry, error) {
	args := m.Called(ctx, key, limit)
	var entries []*models.CacheEntry
	if v := args.Get(0); v != nil {
		entries = v.([]*models.CacheEntry)
	}
	return entries, args.Error(1)
}

func (m *DocumentStore) Insert(ctx context.Context, entry *models.CacheEntry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}

func (m *DocumentStore) IncrementHitCount(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *DocumentStore) Get(ctx context.Context, id string) (*models.CacheEntry, error) {
	args := m.Called(ctx, id)
	var entry *models.CacheEntry
	if v := args.Get(0); v != nil {
		entry = v.(*models.CacheEntry)
	}
	return entry, args.Error(1)
}

func (m *DocumentStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *DocumentStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *DocumentStore) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
