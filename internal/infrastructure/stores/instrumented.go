package stores

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"eval-cache/internal/domain/models"
	"eval-cache/internal/domain/repositories"
)

var (
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evalcache_store_operation_duration_seconds",
			Help:    "Document store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	storeOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalcache_store_errors_total",
			Help: "Total number of failed document store operations",
		},
		[]string{"store", "operation"},
	)
)

var _ repositories.DocumentStore = (*instrumentedStore)(nil)

// instrumentedStore 为每次存储操作记录耗时和失败次数。
// 条目不存在属于正常结果，不计入失败。
type instrumentedStore struct {
	next repositories.DocumentStore
	name string
}

// Instrument 用 Prometheus 指标包装存储
func Instrument(store repositories.DocumentStore, name string) repositories.DocumentStore {
	return &instrumentedStore{next: store, name: name}
}

func (s *instrumentedStore) Name() string { return s.name }

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	storeOperationDuration.WithLabelValues(s.name, op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, models.ErrEntryNotFound) {
		storeOperationErrors.WithLabelValues(s.name, op).Inc()
	}
}

func (s *instrumentedStore) FindMatching(ctx context.Context, key models.CacheKey, limit int) ([]*models.CacheEntry, error) {
	start := time.Now()
	entries, err := s.next.FindMatching(ctx, key, limit)
	s.observe("find", start, err)
	return entries, err
}

func (s *instrumentedStore) Insert(ctx context.Context, entry *models.CacheEntry) (string, error) {
	start := time.Now()
	id, err := s.next.Insert(ctx, entry)
	s.observe("insert", start, err)
	return id, err
}

func (s *instrumentedStore) IncrementHitCount(ctx context.Context, id string) (int64, error) {
	start := time.Now()
	n, err := s.next.IncrementHitCount(ctx, id)
	s.observe("increment", start, err)
	return n, err
}

func (s *instrumentedStore) Get(ctx context.Context, id string) (*models.CacheEntry, error) {
	start := time.Now()
	e, err := s.next.Get(ctx, id)
	s.observe("get", start, err)
	return e, err
}

func (s *instrumentedStore) Count(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.next.Count(ctx)
	s.observe("count", start, err)
	return n, err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *instrumentedStore) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}
