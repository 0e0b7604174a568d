package xmetrics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omeyang/xtrack/pkg/observability/xmetrics"
)

type nilObserver struct{}

func (nilObserver) Start(context.Context, xmetrics.SpanOptions) (context.Context, xmetrics.Span) {
	return nil, nil
}

type recordingObserver struct {
	opts   []xmetrics.SpanOptions
	result []xmetrics.Result
}

func (r *recordingObserver) Start(ctx context.Context, opts xmetrics.SpanOptions) (context.Context, xmetrics.Span) {
	r.opts = append(r.opts, opts)
	return ctx, recordingSpan{r}
}

type recordingSpan struct{ r *recordingObserver }

func (s recordingSpan) End(res xmetrics.Result) { s.r.result = append(s.r.result, res) }

func TestStart_NilObserver(t *testing.T) {
	//nolint:staticcheck // 验证 nil context 兜底
	ctx, span := xmetrics.Start(nil, nil, xmetrics.SpanOptions{})
	assert.NotNil(t, ctx)
	assert.IsType(t, xmetrics.NoopSpan{}, span)
}

func TestStart_ObserverReturnsNil(t *testing.T) {
	ctx := context.Background()
	got, span := xmetrics.Start(ctx, nilObserver{}, xmetrics.SpanOptions{})
	assert.Equal(t, ctx, got)
	assert.NotNil(t, span)
	assert.NotPanics(t, func() { span.End(xmetrics.Result{}) })
}

func TestNoopObserver(t *testing.T) {
	//nolint:staticcheck // 验证 nil context 兜底
	ctx, span := xmetrics.NoopObserver{}.Start(nil, xmetrics.SpanOptions{})
	assert.NotNil(t, ctx)
	span.End(xmetrics.Result{Err: errors.New("ignored")})
}

func TestObserve(t *testing.T) {
	rec := &recordingObserver{}
	wantErr := errors.New("exhausted")

	err := xmetrics.Observe(context.Background(), rec, xmetrics.SpanOptions{
		Component: "xtracking",
		Operation: "allocate",
	}, func(context.Context) error { return wantErr })

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, "allocate", rec.opts[0].Operation)
	assert.ErrorIs(t, rec.result[0].Err, wantErr)
}
