package xcache

import "errors"

var (
	ErrNilClient = errors.New("xcache: nil client")
	ErrClosed    = errors.New("xcache: closed")

	// ErrEmptyKey 空 key 在 Redis 中合法，但在本项目中一定是拼 key 出错。
	ErrEmptyKey     = errors.New("xcache: empty key")
	ErrInvalidTTL   = errors.New("xcache: ttl must be positive")
	ErrEmptyPattern = errors.New("xcache: empty pattern")
)
