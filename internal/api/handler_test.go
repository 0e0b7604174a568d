package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xtrack/pkg/business/xtracking"
	"github.com/omeyang/xtrack/pkg/context/xctx"
	"github.com/omeyang/xtrack/pkg/observability/xlog"
)

// =============================================================================
// 测试替身
// =============================================================================

type fakeTracker struct {
	allocate   func(ctx context.Context, in xtracking.GenerationInput) (*xtracking.Record, error)
	search     func(ctx context.Context, c xtracking.Criteria) (*xtracking.ResultSet, error)
	list       func(ctx context.Context, page, size int64) (*xtracking.Page, error)
	lookup     func(ctx context.Context, tn string) (*xtracking.RecordInfo, error)
	invalidate func(ctx context.Context) error

	calls atomic.Int32
}

func (f *fakeTracker) Allocate(ctx context.Context, in xtracking.GenerationInput) (*xtracking.Record, error) {
	f.calls.Add(1)
	return f.allocate(ctx, in)
}

func (f *fakeTracker) Search(ctx context.Context, c xtracking.Criteria) (*xtracking.ResultSet, error) {
	f.calls.Add(1)
	return f.search(ctx, c)
}

func (f *fakeTracker) List(ctx context.Context, page, size int64) (*xtracking.Page, error) {
	f.calls.Add(1)
	return f.list(ctx, page, size)
}

func (f *fakeTracker) Lookup(ctx context.Context, tn string) (*xtracking.RecordInfo, error) {
	f.calls.Add(1)
	return f.lookup(ctx, tn)
}

func (f *fakeTracker) Invalidate(ctx context.Context) error {
	f.calls.Add(1)
	return f.invalidate(ctx)
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func discardLogger(t *testing.T) xlog.Logger {
	t.Helper()
	logger, cleanup, err := xlog.New().SetOutput(io.Discard).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })
	return logger
}

func newTestRouter(t *testing.T, tracker Tracker, checks map[string]HealthChecker) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(NewHandler(tracker, checks), discardLogger(t))
}

func do(t *testing.T, r http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func validNextQuery() url.Values {
	return url.Values{
		"origin_country_id":      {"MY"},
		"destination_country_id": {"ID"},
		"weight":                 {"1.234"},
		"created_at":             {"2018-11-20T19:29:32+08:00"},
		"customer_id":            {"de619854-b59b-425e-9db4-943979e1bd49"},
		"customer_name":          {"RedBox Logistics"},
		"customer_slug":          {"redbox-logistics"},
	}
}

const nextPath = "/api/v1/tracking/next-tracking-number?"

// =============================================================================
// 分配
// =============================================================================

func TestNext_Success(t *testing.T) {
	created := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	var (
		got     xtracking.GenerationInput
		gotSlug string
	)
	tracker := &fakeTracker{
		allocate: func(ctx context.Context, in xtracking.GenerationInput) (*xtracking.Record, error) {
			got = in
			gotSlug = xctx.CustomerSlug(ctx)
			return &xtracking.Record{TrackingNumber: "MIG7K2QWERTY", CreatedAt: created}, nil
		},
	}
	r := newTestRouter(t, tracker, nil)

	w := do(t, r, http.MethodGet, nextPath+validNextQuery().Encode())
	require.Equal(t, http.StatusOK, w.Code)

	var resp AllocateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "MIG7K2QWERTY", resp.TrackingNumber)
	assert.True(t, created.Equal(resp.CreatedAt))
	assert.Equal(t, "success", resp.Status)

	assert.Equal(t, "MY", got.Origin)
	assert.Equal(t, "ID", got.Destination)
	assert.InDelta(t, 1.234, got.Weight, 1e-9)
	assert.Equal(t, uuid.MustParse("de619854-b59b-425e-9db4-943979e1bd49"), got.CustomerID)
	assert.Equal(t, "redbox-logistics", got.CustomerSlug)
	assert.Equal(t, "redbox-logistics", gotSlug)
	assert.True(t, got.CreatedAt.Equal(time.Date(2018, 11, 20, 11, 29, 32, 0, time.UTC)))
}

func TestNext_InvalidParameters(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"missing origin", "origin_country_id", ""},
		{"lowercase origin", "origin_country_id", "my"},
		{"three letter destination", "destination_country_id", "IDN"},
		{"digit in destination", "destination_country_id", "I1"},
		{"zero weight", "weight", "0"},
		{"weight above max", "weight", "1000"},
		{"weight too many decimals", "weight", "1.2345"},
		{"weight not a number", "weight", "abc"},
		{"weight NaN", "weight", "NaN"},
		{"bad timestamp", "created_at", "2018-11-20 19:29:32"},
		{"bad uuid", "customer_id", "not-a-uuid"},
		{"blank name", "customer_name", "   "},
		{"long name", "customer_name", strings.Repeat("a", 101)},
		{"slug with uppercase", "customer_slug", "RedBox"},
		{"slug with double hyphen", "customer_slug", "red--box"},
		{"slug with trailing hyphen", "customer_slug", "redbox-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := &fakeTracker{}
			r := newTestRouter(t, tracker, nil)

			q := validNextQuery()
			q.Set(tt.key, tt.value)
			w := do(t, r, http.MethodGet, nextPath+q.Encode())

			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, CodeInvalidParameters, decodeError(t, w).ErrorCode)
			assert.Zero(t, tracker.calls.Load())
		})
	}
}

func TestNext_BoundaryWeights(t *testing.T) {
	for _, weight := range []string{"0.001", "999.999", "5", "12.5"} {
		t.Run(weight, func(t *testing.T) {
			tracker := &fakeTracker{
				allocate: func(context.Context, xtracking.GenerationInput) (*xtracking.Record, error) {
					return &xtracking.Record{TrackingNumber: "MIG00000000"}, nil
				},
			}
			r := newTestRouter(t, tracker, nil)
			q := validNextQuery()
			q.Set("weight", weight)
			w := do(t, r, http.MethodGet, nextPath+q.Encode())
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestNext_ServiceErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "exhausted",
			err:      fmt.Errorf("%w: after 5 attempts", xtracking.ErrGenerationExhausted),
			wantCode: http.StatusConflict,
			wantBody: CodeGenerationFailed,
		},
		{
			name:     "infrastructure",
			err:      &xtracking.InfrastructureError{Op: "cache.exists", Err: errors.New("dial tcp: refused")},
			wantCode: http.StatusInternalServerError,
			wantBody: CodeInternalError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := &fakeTracker{
				allocate: func(context.Context, xtracking.GenerationInput) (*xtracking.Record, error) {
					return nil, tt.err
				},
			}
			r := newTestRouter(t, tracker, nil)
			w := do(t, r, http.MethodGet, nextPath+validNextQuery().Encode())

			require.Equal(t, tt.wantCode, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.wantBody, resp.ErrorCode)
			assert.NotContains(t, resp.Message, "refused")
			assert.False(t, resp.Timestamp.IsZero())
		})
	}
}

// =============================================================================
// 搜索、列表、查询
// =============================================================================

func TestSearch(t *testing.T) {
	var got xtracking.Criteria
	tracker := &fakeTracker{
		search: func(_ context.Context, c xtracking.Criteria) (*xtracking.ResultSet, error) {
			got = c
			return &xtracking.ResultSet{
				Results:    []xtracking.RecordInfo{{TrackingNumber: "MIG1"}},
				TotalFound: 1,
				Source:     xtracking.SourceStore,
			}, nil
		},
	}
	r := newTestRouter(t, tracker, nil)

	w := do(t, r, http.MethodGet, "/api/v1/tracking/search?customer_name=red&origin_country_id=MY")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xtracking.Criteria{CustomerName: "red", Origin: "MY"}, got)

	var rs xtracking.ResultSet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rs))
	assert.Equal(t, 1, rs.TotalFound)
	assert.Equal(t, xtracking.SourceStore, rs.Source)
}

func TestSearch_StoreFailure(t *testing.T) {
	tracker := &fakeTracker{
		search: func(context.Context, xtracking.Criteria) (*xtracking.ResultSet, error) {
			return nil, &xtracking.InfrastructureError{Op: "store.query", Err: errors.New("timeout")}
		},
	}
	r := newTestRouter(t, tracker, nil)
	w := do(t, r, http.MethodGet, "/api/v1/tracking/search")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestList(t *testing.T) {
	var gotPage, gotSize int64
	tracker := &fakeTracker{
		list: func(_ context.Context, page, size int64) (*xtracking.Page, error) {
			gotPage, gotSize = page, size
			return &xtracking.Page{CurrentPage: page, PageSize: size, TotalElements: 25, TotalPages: 3, HasNext: true}, nil
		},
	}
	r := newTestRouter(t, tracker, nil)

	w := do(t, r, http.MethodGet, "/api/v1/tracking/all")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, gotPage)
	assert.EqualValues(t, 10, gotSize)

	w = do(t, r, http.MethodGet, "/api/v1/tracking/all?page=2&size=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, gotPage)
	assert.EqualValues(t, 5, gotSize)

	var p xtracking.Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.EqualValues(t, 3, p.TotalPages)
	assert.True(t, p.HasNext)
}

func TestList_InvalidPaging(t *testing.T) {
	for _, q := range []string{"page=-1", "size=0", "size=101", "page=abc"} {
		t.Run(q, func(t *testing.T) {
			tracker := &fakeTracker{}
			r := newTestRouter(t, tracker, nil)
			w := do(t, r, http.MethodGet, "/api/v1/tracking/all?"+q)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Zero(t, tracker.calls.Load())
		})
	}
}

func TestList_ServiceRejectsPage(t *testing.T) {
	tracker := &fakeTracker{
		list: func(context.Context, int64, int64) (*xtracking.Page, error) {
			return nil, fmt.Errorf("%w: page 1", xtracking.ErrInvalidPage)
		},
	}
	r := newTestRouter(t, tracker, nil)
	w := do(t, r, http.MethodGet, "/api/v1/tracking/all?page=1")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidParameters, decodeError(t, w).ErrorCode)
}

func TestGet(t *testing.T) {
	tracker := &fakeTracker{
		lookup: func(_ context.Context, tn string) (*xtracking.RecordInfo, error) {
			if tn == "MIG1" {
				return &xtracking.RecordInfo{TrackingNumber: tn}, nil
			}
			return nil, xtracking.ErrNotFound
		},
	}
	r := newTestRouter(t, tracker, nil)

	w := do(t, r, http.MethodGet, "/api/v1/tracking/MIG1")
	require.Equal(t, http.StatusOK, w.Code)
	var info xtracking.RecordInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "MIG1", info.TrackingNumber)

	w = do(t, r, http.MethodGet, "/api/v1/tracking/NOPE")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, w).ErrorCode)
}

func TestInvalidateCache(t *testing.T) {
	fail := false
	tracker := &fakeTracker{
		invalidate: func(context.Context) error {
			if fail {
				return &xtracking.InfrastructureError{Op: "cache.delete", Err: errors.New("down")}
			}
			return nil
		},
	}
	r := newTestRouter(t, tracker, nil)

	w := do(t, r, http.MethodDelete, "/api/v1/tracking/cache")
	assert.Equal(t, http.StatusNoContent, w.Code)

	fail = true
	w = do(t, r, http.MethodDelete, "/api/v1/tracking/cache")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// =============================================================================
// 健康检查与中间件
// =============================================================================

func TestHealth(t *testing.T) {
	ok := healthFunc(func(context.Context) error { return nil })
	down := healthFunc(func(context.Context) error { return errors.New("connection refused") })

	r := newTestRouter(t, &fakeTracker{}, map[string]HealthChecker{"redis": ok, "mongo": ok})
	w := do(t, r, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	r = newTestRouter(t, &fakeTracker{}, map[string]HealthChecker{"redis": down, "mongo": ok})
	w = do(t, r, http.MethodGet, "/health")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "ok", body.Checks["mongo"])
	assert.Contains(t, body.Checks["redis"], "refused")
}

func TestRequestID(t *testing.T) {
	tracker := &fakeTracker{
		search: func(context.Context, xtracking.Criteria) (*xtracking.ResultSet, error) {
			return &xtracking.ResultSet{}, nil
		},
	}
	r := newTestRouter(t, tracker, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tracking/search", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))

	w = do(t, r, http.MethodGet, "/api/v1/tracking/search")
	assert.Len(t, w.Header().Get(HeaderRequestID), 32)
}

func TestRecovery(t *testing.T) {
	tracker := &fakeTracker{
		lookup: func(context.Context, string) (*xtracking.RecordInfo, error) {
			panic("boom")
		},
	}
	r := newTestRouter(t, tracker, nil)
	w := do(t, r, http.MethodGet, "/api/v1/tracking/MIG1")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeInternalError, decodeError(t, w).ErrorCode)
}

func TestNoRoute(t *testing.T) {
	r := newTestRouter(t, &fakeTracker{}, nil)
	w := do(t, r, http.MethodGet, "/api/v2/unknown")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, w).ErrorCode)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracker := &fakeTracker{
		search: func(context.Context, xtracking.Criteria) (*xtracking.ResultSet, error) {
			return &xtracking.ResultSet{}, nil
		},
	}
	r := NewRouter(NewHandler(tracker, nil), discardLogger(t),
		WithCORS(CORSConfig{AllowOrigins: []string{"https://console.example.org"}, MaxAge: time.Hour}))

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/tracking/cache", nil)
		req.Header.Set("Origin", "https://console.example.org")
		req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://console.example.org", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
		assert.Zero(t, tracker.calls.Load())
	})

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tracking/search", nil)
		req.Header.Set("Origin", "https://console.example.org")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://console.example.org", w.Header().Get("Access-Control-Allow-Origin"))
		assert.True(t, headerListHas(w.Header().Get("Access-Control-Expose-Headers"), HeaderRequestID),
			"expose headers %q", w.Header().Get("Access-Control-Expose-Headers"))
	})

	t.Run("rejected origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tracking/search", nil)
		req.Header.Set("Origin", "https://evil.example.net")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

// headerListHas 在逗号分隔的头名列表中查找 name，头名不区分大小写。
func headerListHas(list, name string) bool {
	for _, h := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return true
		}
	}
	return false
}

func TestHeaderListHas(t *testing.T) {
	assert.True(t, headerListHas("X-Request-Id", HeaderRequestID))
	assert.True(t, headerListHas("Content-Type, x-request-id", HeaderRequestID))
	assert.False(t, headerListHas("X-Request-Ids", HeaderRequestID))
	assert.False(t, headerListHas("", HeaderRequestID))
}

func TestCORS_DisabledWithoutOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(NewHandler(&fakeTracker{}, nil), discardLogger(t), WithCORS(CORSConfig{}))
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tracking/cache", nil)
	req.Header.Set("Origin", "https://console.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
