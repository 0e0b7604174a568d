package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal Run 因收到退出信号而返回，使用 errors.Is 判断。
	ErrSignal = errors.New("xrun: received signal")

	ErrInvalidInterval = errors.New("xrun: interval must be positive")
	ErrNilFunc         = errors.New("xrun: nil service func")
	ErrNilServer       = errors.New("xrun: nil http server")
)

// SignalError 携带触发退出的信号，errors.Is(err, ErrSignal) 成立。
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("xrun: received signal %v", e.Signal)
}

func (e *SignalError) Unwrap() error { return ErrSignal }
