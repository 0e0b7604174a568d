package trackstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xtrack/pkg/business/xtracking"
	"github.com/omeyang/xtrack/pkg/storage/xmongo"
)

const (
	// DefaultCollection 默认集合名。
	DefaultCollection = "tracking_numbers"

	indexTrackingNumber = "uk_tracking_number"
	indexCreatedAt      = "idx_created_at"
)

var (
	// ErrNilMongo 传入的 xmongo 包装器为 nil。
	ErrNilMongo = errors.New("trackstore: nil mongo")

	// ErrEmptyDatabase 数据库名为空。
	ErrEmptyDatabase = errors.New("trackstore: empty database name")
)

// Store 运单记录存储。可并发使用。
type Store struct {
	mongo xmongo.Mongo
	coll  *mongo.Collection
}

var _ xtracking.Store = (*Store)(nil)

// New 创建存储，collection 为空时使用 DefaultCollection。
func New(m xmongo.Mongo, database, collection string) (*Store, error) {
	if m == nil {
		return nil, ErrNilMongo
	}
	if database == "" {
		return nil, ErrEmptyDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{
		mongo: m,
		coll:  m.Client().Database(database).Collection(collection),
	}, nil
}

// Collection 返回底层集合。
func (s *Store) Collection() *mongo.Collection {
	return s.coll
}

// EnsureIndexes 创建 tracking_number 唯一索引和 created_at 降序索引，已存在时为空操作。
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: fieldTrackingNumber, Value: 1}},
			Options: options.Index().SetName(indexTrackingNumber).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: fieldCreatedAt, Value: -1}},
			Options: options.Index().SetName(indexCreatedAt),
		},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("trackstore: ensure indexes: %w", err)
	}
	return nil
}

// Exists 判断运单号是否已持久化。
func (s *Store) Exists(ctx context.Context, trackingNumber string) (bool, error) {
	n, err := s.mongo.Count(ctx, s.coll, bson.D{{Key: fieldTrackingNumber, Value: trackingNumber}}, 1)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get 按运单号读取记录，不存在时返回 xtracking.ErrNotFound。
func (s *Store) Get(ctx context.Context, trackingNumber string) (*xtracking.Record, error) {
	var docs []document
	err := s.mongo.Find(ctx, s.coll,
		bson.D{{Key: fieldTrackingNumber, Value: trackingNumber}},
		xmongo.FindOptions{Limit: 1}, &docs)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, xtracking.ErrNotFound
	}
	r, err := docs[0].record()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Put 插入记录。唯一索引冲突返回同时包裹 xtracking.ErrDuplicate 和驱动错误的错误。
func (s *Store) Put(ctx context.Context, record *xtracking.Record) error {
	if record == nil {
		return xmongo.ErrNilDocument
	}
	err := s.mongo.InsertOne(ctx, s.coll, fromRecord(record))
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("trackstore: %s: %w: %w", record.TrackingNumber, xtracking.ErrDuplicate, err)
	}
	return err
}

// Query 按条件查询，结果按 created_at 降序，limit 为 0 表示不限制。
func (s *Store) Query(ctx context.Context, criteria xtracking.Criteria, limit int64) ([]xtracking.Record, error) {
	var docs []document
	err := s.mongo.Find(ctx, s.coll, filterFor(criteria), xmongo.FindOptions{
		Sort:  sortFor(xtracking.OrderCreatedAtDesc),
		Limit: limit,
	}, &docs)
	if err != nil {
		return nil, err
	}
	return records(docs)
}

// Count 返回记录总数。
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.mongo.Count(ctx, s.coll, bson.D{}, 0)
}

// List 按 opts 排序分页读取，Take 为 0 表示读取 Skip 之后的全部记录。
func (s *Store) List(ctx context.Context, opts xtracking.ListOptions) ([]xtracking.Record, error) {
	var docs []document
	err := s.mongo.Find(ctx, s.coll, bson.D{}, xmongo.FindOptions{
		Sort:  sortFor(opts.OrderBy),
		Skip:  opts.Skip,
		Limit: opts.Take,
	}, &docs)
	if err != nil {
		return nil, err
	}
	return records(docs)
}

// Health 检查 MongoDB 连接。
func (s *Store) Health(ctx context.Context) error {
	return s.mongo.Health(ctx)
}
