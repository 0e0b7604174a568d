package xbreaker

import "errors"

// ConsecutiveFailures 连续失败达到阈值时熔断。
type ConsecutiveFailures uint32

// NewConsecutiveFailures threshold 为 0 时按 1 处理。
func NewConsecutiveFailures(threshold uint32) ConsecutiveFailures {
	return ConsecutiveFailures(max(threshold, 1))
}

func (p ConsecutiveFailures) ReadyToTrip(counts Counts) bool {
	return counts.ConsecutiveFailures >= uint32(p)
}

// IgnoreContextErrors 调用方 ctx 在 fn 返回时已结束的失败不计数。
// 判定依据是调用方 ctx 而不是错误本身，网络 i/o timeout 也满足 errors.Is(err, context.DeadlineExceeded)。
type IgnoreContextErrors struct{}

func (IgnoreContextErrors) IsSuccessful(err error) bool {
	var done *callerDoneError
	return err == nil || errors.As(err, &done)
}

// callerDoneError 由 Breaker.Do 标记调用方 ctx 已结束时的失败，返回前解包。
type callerDoneError struct{ err error }

func (e *callerDoneError) Error() string { return e.err.Error() }

func (e *callerDoneError) Unwrap() error { return e.err }

var (
	_ TripPolicy    = ConsecutiveFailures(0)
	_ SuccessPolicy = IgnoreContextErrors{}
)
