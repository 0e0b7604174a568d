package xrun

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func waitDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestGroup_Wait(t *testing.T) {
	cause := errors.New("shutdown requested")
	tests := []struct {
		name    string
		svcs    []Service
		cancel  error
		doCancel bool
		want    error
	}{
		{
			name: "error cancels others",
			svcs: []Service{{Name: "waiter", Run: waitDone}, {Name: "failing", Run: func(context.Context) error { return errBoom }}},
			want: errBoom,
		},
		{
			name:    "cancel cause returned",
			svcs:    []Service{{Name: "waiter", Run: func(ctx context.Context) error { <-ctx.Done(); return nil }}},
			cancel:  cause,
			doCancel: true,
			want:    cause,
		},
		{
			name:    "cancel without cause",
			svcs:    []Service{{Name: "waiter", Run: waitDone}},
			doCancel: true,
		},
		{
			name: "service canceled on its own",
			svcs: []Service{{Name: "self", Run: func(context.Context) error { return context.Canceled }}},
			want: context.Canceled,
		},
		{
			name: "nil run",
			svcs: []Service{{Name: "empty"}},
			want: ErrNilFunc,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := NewGroup(context.Background(), WithName("test"))
			for _, s := range tt.svcs {
				g.Go(s)
			}
			if tt.doCancel {
				g.Cancel(tt.cancel)
			}
			err := g.Wait()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGroup_ParentCanceled(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	g, ctx := NewGroup(parent)
	g.Go(Service{Name: "waiter", Run: waitDone})
	cancel()
	assert.NoError(t, g.Wait())
	assert.Error(t, ctx.Err())

	//nolint:staticcheck // nil ctx 归一化
	g, ctx = NewGroup(nil, nil)
	require.NotNil(t, ctx)
	assert.NoError(t, g.Wait())
}

// fakeSignal 让 Run 订阅信号后立即收到 sig。
func fakeSignal(t *testing.T, sig os.Signal) *[]os.Signal {
	t.Helper()
	origNotify, origStop := notify, stop
	t.Cleanup(func() { notify, stop = origNotify, origStop })

	var subscribed []os.Signal
	notify = func(c chan<- os.Signal, sigs ...os.Signal) {
		subscribed = append(subscribed, sigs...)
		if sig != nil {
			c <- sig
		}
	}
	stop = func(chan<- os.Signal) {}
	return &subscribed
}

func TestRun_Signal(t *testing.T) {
	subscribed := fakeSignal(t, syscall.SIGTERM)

	err := Run(context.Background(), []Option{WithSignals(syscall.SIGTERM)}, Service{Name: "waiter", Run: waitDone})

	assert.ErrorIs(t, err, ErrSignal)
	var sigErr *SignalError
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, syscall.SIGTERM, sigErr.Signal)
	assert.Equal(t, []os.Signal{syscall.SIGTERM}, *subscribed)
}

func TestRun_DefaultSignals(t *testing.T) {
	subscribed := fakeSignal(t, nil)
	require.NoError(t, Run(context.Background(), []Option{WithSignals()}))
	assert.Equal(t, defaultSignals, *subscribed)
}

func TestRun_ServiceError(t *testing.T) {
	fakeSignal(t, nil)
	err := Run(context.Background(), nil, Service{Name: "failing", Run: func(context.Context) error { return errBoom }})
	assert.ErrorIs(t, err, errBoom)
}

func TestRun_AllServicesDone(t *testing.T) {
	fakeSignal(t, nil)
	err := Run(context.Background(), nil,
		Service{Name: "a", Run: func(context.Context) error { return nil }},
		Service{Name: "b", Run: func(context.Context) error { return nil }},
	)
	assert.NoError(t, err)
}

func TestSignalError(t *testing.T) {
	assert.Contains(t, (&SignalError{Signal: syscall.SIGINT}).Error(), "interrupt")
	assert.ErrorIs(t, &SignalError{}, ErrSignal)
}
