package xbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

type (
	// State 熔断器状态
	State = gobreaker.State

	// Counts 当前统计周期内的请求计数
	Counts = gobreaker.Counts
)

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// TripPolicy ReadyToTrip 返回 true 时熔断器从 Closed 切到 Open。
type TripPolicy interface {
	ReadyToTrip(counts Counts) bool
}

// SuccessPolicy 判定一次调用是否计为成功，未设置时 err == nil 即成功。
type SuccessPolicy interface {
	IsSuccessful(err error) bool
}

type settings struct {
	trip          TripPolicy
	success       SuccessPolicy
	timeout       time.Duration
	interval      time.Duration
	maxRequests   uint32
	onStateChange func(name string, from, to State)
}

// BreakerOption 熔断器选项
type BreakerOption func(*settings)

// WithTripPolicy 默认连续失败 5 次熔断。
func WithTripPolicy(p TripPolicy) BreakerOption {
	return func(s *settings) {
		if p != nil {
			s.trip = p
		}
	}
}

// WithSuccessPolicy 设置成功判定。
func WithSuccessPolicy(p SuccessPolicy) BreakerOption {
	return func(s *settings) { s.success = p }
}

// WithTimeout Open 持续多久后进入 HalfOpen，默认 60s。
func WithTimeout(d time.Duration) BreakerOption {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithInterval Closed 状态下清零计数的周期，默认 0 表示不清零。
func WithInterval(d time.Duration) BreakerOption {
	return func(s *settings) {
		if d >= 0 {
			s.interval = d
		}
	}
}

// WithMaxRequests HalfOpen 状态下放行的探测请求数，默认 1。
func WithMaxRequests(n uint32) BreakerOption {
	return func(s *settings) {
		if n > 0 {
			s.maxRequests = n
		}
	}
}

// WithOnStateChange 状态切换回调，通常用于记录日志。
func WithOnStateChange(f func(name string, from, to State)) BreakerOption {
	return func(s *settings) { s.onStateChange = f }
}

// Breaker 包装 gobreaker，为下游依赖（如 Redis）提供快速失败。
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker 创建熔断器，name 出现在错误信息和状态回调中。
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	s := settings{
		trip:        NewConsecutiveFailures(5),
		timeout:     60 * time.Second,
		maxRequests: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: s.maxRequests,
		Interval:    s.interval,
		Timeout:     s.timeout,
		ReadyToTrip: s.trip.ReadyToTrip,
	}
	if s.success != nil {
		st.IsSuccessful = s.success.IsSuccessful
	}
	if s.onStateChange != nil {
		st.OnStateChange = s.onStateChange
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker[struct{}](st)}
}

// Do 在熔断器保护下执行 fn。
// ctx 已结束时不执行也不计数；Open 状态下返回 *BreakerError。
// fn 失败且此时 ctx 已结束的调用交给 SuccessPolicy 判定，IgnoreContextErrors 不计为失败。
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (struct{}, error) {
		err := fn()
		if err != nil && ctx.Err() != nil {
			return struct{}{}, &callerDoneError{err: err}
		}
		return struct{}{}, err
	})
	var done *callerDoneError
	if errors.As(err, &done) {
		return done.err
	}
	return wrapBreakerError(err, b.name)
}

// Name 熔断器名称
func (b *Breaker) Name() string { return b.name }

// State 当前状态
func (b *Breaker) State() State { return b.cb.State() }

// Counts 当前统计计数
func (b *Breaker) Counts() Counts { return b.cb.Counts() }
