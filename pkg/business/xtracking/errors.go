package xtracking

import (
	"errors"
	"fmt"
)

var (
	// ErrCollision 候选号已被预留或持久化。由引擎内部重试，不会返回给调用方。
	ErrCollision = errors.New("xtracking: tracking number collision")

	// ErrGenerationExhausted 碰撞重试次数用尽，不可重试。
	// 不包裹 ErrCollision，errors.Is(err, ErrCollision) 为 false。
	ErrGenerationExhausted = errors.New("xtracking: tracking number generation exhausted")

	// ErrCacheDecode 缓存内容无法反序列化，按未命中处理，仅用于日志。
	ErrCacheDecode = errors.New("xtracking: cache decode failed")

	// ErrInvalidPage 分页参数无效（page < 0 或 size 不在 [1, 100]）。
	ErrInvalidPage = errors.New("xtracking: invalid page request")

	ErrInvalidConfig = errors.New("xtracking: invalid config")

	// ErrNotFound 记录不存在。Store.Get 与 Service.Lookup 返回。
	ErrNotFound = errors.New("xtracking: record not found")

	// ErrDuplicate Store.Put 遇到唯一索引冲突，引擎视为碰撞。
	ErrDuplicate = errors.New("xtracking: duplicate tracking number")

	ErrNilCache = errors.New("xtracking: nil cache")
	ErrNilStore = errors.New("xtracking: nil store")

	// ErrEntropy 随机源读取失败。
	ErrEntropy = errors.New("xtracking: entropy source failed")
)

// InfrastructureError 缓存或存储调用失败，原样返回给调用方，引擎不重试。
type InfrastructureError struct {
	// Op 失败的操作，如 "cache.exists"、"store.put"
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("xtracking: %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

func infraErr(op string, err error) error {
	return &InfrastructureError{Op: op, Err: err}
}

// IsInfrastructure 判断 err 是否为缓存或存储故障。
func IsInfrastructure(err error) bool {
	var ie *InfrastructureError
	return errors.As(err, &ie)
}
