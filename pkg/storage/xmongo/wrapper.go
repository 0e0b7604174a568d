package xmongo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/omeyang/xtrack/internal/storageopt"
	"github.com/omeyang/xtrack/pkg/observability/xmetrics"
)

const component = "xmongo"

// session *mongo.Client 满足此接口，测试中替换。
type session interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Disconnect(ctx context.Context) error
	NumberSessionsInProgress() int
}

// collection *mongo.Collection 经 collAdapter 满足此接口，测试中替换。
type collection interface {
	CountDocuments(ctx context.Context, filter any, opts ...mopts.Lister[mopts.CountOptions]) (int64, error)
	Find(ctx context.Context, filter any, opts ...mopts.Lister[mopts.FindOptions]) (*mongo.Cursor, error)
	InsertOne(ctx context.Context, doc any, opts ...mopts.Lister[mopts.InsertOneOptions]) (*mongo.InsertOneResult, error)
	Name() string
	DatabaseName() string
}

type collAdapter struct{ *mongo.Collection }

func (a collAdapter) DatabaseName() string { return a.Database().Name() }

type wrapper struct {
	client  *mongo.Client
	session session
	opts    options

	pings   storageopt.Counter
	queries storageopt.Counter
	closed  atomic.Bool
}

func newWrapper(client *mongo.Client, s session, opts ...Option) *wrapper {
	o := options{
		healthTimeout: storageopt.DefaultHealthTimeout,
		queryTimeout:  DefaultQueryTimeout,
		writeTimeout:  DefaultWriteTimeout,
		observer:      xmetrics.NoopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &wrapper{client: client, session: s, opts: o}
}

func (w *wrapper) Client() *mongo.Client { return w.client }

func (w *wrapper) Health(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	if w.closed.Load() {
		return ErrClosed
	}
	ctx, span := xmetrics.Start(ctx, w.opts.observer, xmetrics.SpanOptions{
		Component: component,
		Operation: "health",
		Kind:      xmetrics.KindClient,
		Attrs:     []xmetrics.Attr{xmetrics.String("db.system", "mongodb")},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	ctx, cancel := storageopt.WithTimeout(ctx, w.opts.healthTimeout)
	defer cancel()

	err = w.session.Ping(ctx, readpref.Primary())
	w.pings.Observe(err)
	if err != nil {
		return fmt.Errorf("xmongo: ping: %w", err)
	}
	return nil
}

func (w *wrapper) Stats() Stats {
	s := Stats{
		PingCount:   w.pings.Total(),
		PingErrors:  w.pings.Failed(),
		Queries:     w.queries.Total(),
		QueryErrors: w.queries.Failed(),
	}
	if w.session != nil {
		s.Sessions = w.session.NumberSessionsInProgress()
	}
	return s
}

// Close nil ctx 按 Background 处理。Disconnect 失败后仍视为已关闭。
func (w *wrapper) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !w.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if w.session == nil {
		return nil
	}
	if err := w.session.Disconnect(ctx); err != nil {
		return fmt.Errorf("xmongo: disconnect: %w", err)
	}
	return nil
}

func (w *wrapper) Find(ctx context.Context, coll *mongo.Collection, filter any, opts FindOptions, results any) error {
	if err := w.check(ctx, coll); err != nil {
		return err
	}
	return w.find(ctx, collAdapter{coll}, filter, opts, results)
}

func (w *wrapper) Count(ctx context.Context, coll *mongo.Collection, filter any, limit int64) (int64, error) {
	if err := w.check(ctx, coll); err != nil {
		return 0, err
	}
	return w.count(ctx, collAdapter{coll}, filter, limit)
}

func (w *wrapper) InsertOne(ctx context.Context, coll *mongo.Collection, doc any) error {
	if err := w.check(ctx, coll); err != nil {
		return err
	}
	return w.insertOne(ctx, collAdapter{coll}, doc)
}

func (w *wrapper) check(ctx context.Context, coll *mongo.Collection) error {
	switch {
	case ctx == nil:
		return ErrNilContext
	case w.closed.Load():
		return ErrClosed
	case coll == nil:
		return ErrNilCollection
	}
	return nil
}

// run 在超时兜底与观测 span 内执行一次集合操作，并计入查询统计。
func (w *wrapper) run(ctx context.Context, coll collection, op string, timeout time.Duration, fn func(ctx context.Context) error) (err error) {
	ctx, cancel := storageopt.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := xmetrics.Start(ctx, w.opts.observer, xmetrics.SpanOptions{
		Component: component,
		Operation: op,
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String("db.system", "mongodb"),
			xmetrics.String("db.name", coll.DatabaseName()),
			xmetrics.String("db.collection", coll.Name()),
		},
	})
	defer func() {
		w.queries.Observe(err)
		span.End(xmetrics.Result{Err: err})
	}()

	if err = fn(ctx); err != nil {
		return fmt.Errorf("xmongo: %s %s.%s: %w", op, coll.DatabaseName(), coll.Name(), err)
	}
	return nil
}

func orEmpty(filter any) any {
	if filter == nil {
		return bson.D{}
	}
	return filter
}

func (w *wrapper) find(ctx context.Context, coll collection, filter any, opts FindOptions, results any) error {
	fo := mopts.Find()
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	if len(opts.Sort) > 0 {
		fo.SetSort(opts.Sort)
	}
	return w.run(ctx, coll, "find", w.opts.queryTimeout, func(ctx context.Context) (err error) {
		cur, err := coll.Find(ctx, orEmpty(filter), fo)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, cur.Close(ctx)) }()
		if err = cur.All(ctx, results); err != nil {
			return err
		}
		nonNilSlice(results)
		return nil
	})
}

func (w *wrapper) count(ctx context.Context, coll collection, filter any, limit int64) (int64, error) {
	co := mopts.Count()
	if limit > 0 {
		co.SetLimit(limit)
	}
	var n int64
	err := w.run(ctx, coll, "count", w.opts.queryTimeout, func(ctx context.Context) (err error) {
		n, err = coll.CountDocuments(ctx, orEmpty(filter), co)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (w *wrapper) insertOne(ctx context.Context, coll collection, doc any) error {
	if doc == nil {
		return ErrNilDocument
	}
	return w.run(ctx, coll, "insert_one", w.opts.writeTimeout, func(ctx context.Context) error {
		_, err := coll.InsertOne(ctx, doc)
		return err
	})
}

// nonNilSlice 把 nil 切片换成空切片，JSON 输出 [] 而不是 null。
func nonNilSlice(results any) {
	v := reflect.ValueOf(results)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	if e := v.Elem(); e.Kind() == reflect.Slice && e.IsNil() {
		e.Set(reflect.MakeSlice(e.Type(), 0, 0))
	}
}
