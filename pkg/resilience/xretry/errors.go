package xretry

import "errors"

var (
	// ErrNilRetryer Retryer 为 nil
	ErrNilRetryer = errors.New("xretry: nil retryer")

	// ErrNilContext context 参数为 nil
	ErrNilContext = errors.New("xretry: nil context")

	// ErrNilFunc 重试函数为 nil
	ErrNilFunc = errors.New("xretry: nil function")
)

// RetryableError 自带重试语义的错误。
// 例如熔断打开时返回的错误实现该接口并声明不可重试。
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable nil 返回 false；错误链上存在 RetryableError 时以其声明为准；其余返回 true。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}
