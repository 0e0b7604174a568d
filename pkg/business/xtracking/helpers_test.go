package xtracking

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xtrack/pkg/observability/xlog"
	"github.com/omeyang/xtrack/pkg/observability/xmetrics"
	"github.com/omeyang/xtrack/pkg/resilience/xretry"
	"github.com/omeyang/xtrack/pkg/storage/xcache"
)

// =============================================================================
// 内存 Store
// =============================================================================

// memStore 内存实现的 Store，语义与 MongoDB 实现一致。
type memStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]Record)}
}

func (s *memStore) Exists(_ context.Context, tn string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[tn]
	return ok, nil
}

func (s *memStore) Get(_ context.Context, tn string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[tn]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *memStore) Put(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.TrackingNumber]; ok {
		return fmt.Errorf("mem: %w", ErrDuplicate)
	}
	s.records[r.TrackingNumber] = *r
	return nil
}

func (s *memStore) sorted(desc bool) []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TrackingNumber < out[j].TrackingNumber
		}
		if desc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (s *memStore) Query(_ context.Context, c Criteria, limit int64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.sorted(true) {
		var match bool
		switch {
		case c.TrackingNumber != "":
			match = r.TrackingNumber == c.TrackingNumber
		case c.CustomerName != "":
			match = containsFold(r.CustomerName, c.CustomerName)
		case c.CustomerSlug != "":
			match = containsFold(r.CustomerSlug, c.CustomerSlug)
		default:
			match = (c.Origin == "" || r.Origin == c.Origin) &&
				(c.Destination == "" || r.Destination == c.Destination)
		}
		if match {
			out = append(out, r)
		}
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func (s *memStore) List(_ context.Context, opts ListOptions) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.sorted(opts.OrderBy == OrderCreatedAtDesc)
	if opts.Skip >= int64(len(all)) {
		return []Record{}, nil
	}
	all = all[opts.Skip:]
	if opts.Take > 0 && opts.Take < int64(len(all)) {
		all = all[:opts.Take]
	}
	return all, nil
}

// =============================================================================
// 测试依赖
// =============================================================================

// seqIDs 顺序递增的记录主键。
type seqIDs struct{ n atomic.Int64 }

func (g *seqIDs) NewString(context.Context) (string, error) {
	return fmt.Sprintf("id-%d", g.n.Add(1)), nil
}

// zeroReader 永远返回 0 字节，随机段固定为 alphabet[0]。
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// fixedClock 返回固定时间。
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// stepClock 每次调用前进一秒。
func stepClock(start time.Time) func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

// recordingObserver 记录已结束的跨度。
type recordingObserver struct {
	mu    sync.Mutex
	spans []recordedSpan
}

type recordedSpan struct {
	opts   xmetrics.SpanOptions
	result xmetrics.Result
}

type recordingSpan struct {
	o    *recordingObserver
	opts xmetrics.SpanOptions
}

func (o *recordingObserver) Start(ctx context.Context, opts xmetrics.SpanOptions) (context.Context, xmetrics.Span) {
	return ctx, &recordingSpan{o: o, opts: opts}
}

func (s *recordingSpan) End(result xmetrics.Result) {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	s.o.spans = append(s.o.spans, recordedSpan{opts: s.opts, result: result})
}

func (o *recordingObserver) byOperation(op string) []recordedSpan {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []recordedSpan
	for _, s := range o.spans {
		if s.opts.Operation == op {
			out = append(out, s)
		}
	}
	return out
}

func attrValue(attrs []xmetrics.Attr, key string) any {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value
		}
	}
	return nil
}

func discardLogger(t *testing.T) xlog.Logger {
	t.Helper()
	logger, cleanup, err := xlog.New().SetOutput(io.Discard).SetLevel(xlog.LevelDebug).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })
	return logger
}

// logBuffer 返回写入 buf 的 JSON logger。
func logBuffer(t *testing.T) (xlog.Logger, *lockedBuffer) {
	t.Helper()
	buf := &lockedBuffer{}
	logger, cleanup, err := xlog.New().SetOutput(buf).SetFormat("json").SetLevel(xlog.LevelDebug).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })
	return logger, buf
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestCache(t *testing.T) (xcache.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:         mr.Addr(),
		DialTimeout:  200 * time.Millisecond,
		ReadTimeout:  200 * time.Millisecond,
		WriteTimeout: 200 * time.Millisecond,
		MaxRetries:   -1,
	})
	cache, err := xcache.NewRedis(client)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

// testOptions 快速、确定的默认测试选项。
func testOptions(t *testing.T, extra ...Option) []Option {
	t.Helper()
	opts := []Option{
		WithLogger(discardLogger(t)),
		WithIDGenerator(&seqIDs{}),
		WithBackoff(xretry.NewNoBackoff()),
	}
	return append(opts, extra...)
}

type testEnv struct {
	svc   *Service
	cache xcache.Redis
	mr    *miniredis.Miniredis
	store *memStore
}

func newTestEnv(t *testing.T, extra ...Option) *testEnv {
	t.Helper()
	cache, mr := newTestCache(t)
	store := newMemStore()
	svc, err := NewService(cache, store, testOptions(t, extra...)...)
	require.NoError(t, err)
	return &testEnv{svc: svc, cache: cache, mr: mr, store: store}
}

func sampleInput() GenerationInput {
	return GenerationInput{
		Origin:       "MY",
		Destination:  "ID",
		CustomerID:   uuid.MustParse("de619854-b59b-425e-9db4-943979e1bd49"),
		CustomerName: "RedBox Logistics",
		CustomerSlug: "redbox-logistics",
		Weight:       1.234,
		CreatedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

// seedRecords 直接向 store 写入 n 条记录，CreatedAt 从 base 起按秒递增。
func seedRecords(t *testing.T, s *memStore, n int, base time.Time) []Record {
	t.Helper()
	out := make([]Record, n)
	for i := range n {
		r := Record{
			ID:             fmt.Sprintf("seed-%d", i),
			TrackingNumber: fmt.Sprintf("SEED%04d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
			OrderCreatedAt: base,
			Origin:         "MY",
			Destination:    "ID",
			Weight:         1,
			CustomerID:     uuid.New(),
			CustomerName:   fmt.Sprintf("Customer %d", i),
			CustomerSlug:   fmt.Sprintf("customer-%d", i),
		}
		require.NoError(t, s.Put(context.Background(), &r))
		out[i] = r
	}
	return out
}
