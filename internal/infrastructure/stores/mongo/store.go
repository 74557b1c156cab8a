package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"eval-cache/configs"
	"eval-cache/internal/domain/models"
	"eval-cache/internal/domain/repositories"
)

var _ repositories.DocumentStore = (*Store)(nil)

// entryDoc 集合中的缓存条目文档
type entryDoc struct {
	ID        bson.ObjectID `bson:"_id"`
	Request   bson.D        `bson:"request"`
	Response  bson.D        `bson:"response"`
	Score     float64       `bson:"score"`
	HitCount  int64         `bson:"hit_count"`
	CreatedAt time.Time     `bson:"created_at"`
}

// rankSort 与 models.Outranks 一致的排序：分数、创建时间、ID 均降序
var rankSort = bson.D{
	{Key: "score", Value: -1},
	{Key: "created_at", Value: -1},
	{Key: "_id", Value: -1},
}

// Store MongoDB 文档存储
type Store struct {
	client *Client
	logger *slog.Logger
}

// New 连接 MongoDB 并确保排序索引存在
func New(ctx context.Context, cfg *configs.MongoConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Store{client: client, logger: logger}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.client.Coll().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    rankSort,
		Options: options.Index().SetName("rank"),
	})
	if err != nil {
		return fmt.Errorf("create rank index: %w", err)
	}
	return nil
}

// Name 存储类型名称
func (s *Store) Name() string { return "mongo" }

func (s *Store) FindMatching(ctx context.Context, key models.CacheKey, limit int) ([]*models.CacheEntry, error) {
	opts := options.Find().SetSort(rankSort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.client.Coll().Find(ctx, buildFilter(key), opts)
	if err != nil {
		s.logger.DebugContext(ctx, "FindMatching failed", "error", err)
		return nil, fmt.Errorf("find cache entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []entryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode cache entries: %w", err)
	}

	entries := make([]*models.CacheEntry, 0, len(docs))
	for i := range docs {
		entries = append(entries, docs[i].toEntry())
	}
	return entries, nil
}

func (s *Store) Insert(ctx context.Context, entry *models.CacheEntry) (string, error) {
	if entry == nil {
		return "", fmt.Errorf("entry cannot be nil")
	}

	doc := entryDoc{
		ID:        bson.NewObjectID(),
		Request:   sortedDoc(entry.Request),
		Response:  sortedDoc(entry.Response),
		Score:     entry.Score,
		HitCount:  entry.HitCount,
		CreatedAt: entry.CreatedAt.UTC(),
	}
	if _, err := s.client.Coll().InsertOne(ctx, doc); err != nil {
		s.logger.DebugContext(ctx, "Insert failed", "error", err)
		return "", fmt.Errorf("insert cache entry: %w", err)
	}
	return doc.ID.Hex(), nil
}

// IncrementHitCount 使用 findOneAndUpdate + $inc 原子自增，并返回更新后的计数
func (s *Store) IncrementHitCount(ctx context.Context, id string) (int64, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return 0, models.ErrEntryNotFound
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: "hit_count", Value: 1}})

	var updated struct {
		HitCount int64 `bson:"hit_count"`
	}
	err = s.client.Coll().FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "hit_count", Value: int64(1)}}}},
		opts,
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, models.ErrEntryNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment hit count: %w", err)
	}
	return updated.HitCount, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.CacheEntry, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrEntryNotFound
	}

	var doc entryDoc
	err = s.client.Coll().FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return doc.toEntry(), nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.client.Coll().CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (d *entryDoc) toEntry() *models.CacheEntry {
	return &models.CacheEntry{
		ID:        d.ID.Hex(),
		Request:   models.CacheKey(fromDoc(d.Request)),
		Response:  models.ResponsePayload(fromDoc(d.Response)),
		Score:     d.Score,
		HitCount:  d.HitCount,
		CreatedAt: d.CreatedAt.UTC(),
	}
}
