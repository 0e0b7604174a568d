// Package xretry 为"只重试特定错误"的场景提供重试执行器。
//
// 典型场景是候选值冲突：生成、预占、冲突则换一个候选重试，
// 而连接失败、超时等基础设施错误直接返回，不消耗重试次数。
//
// 组成：
//   - RetryPolicy 决定一次失败后是否继续，内置 MatchPolicy（NewRetryOn）
//   - BackoffPolicy 决定两次尝试之间的等待，内置 ExponentialBackoff 与 NoBackoff
//   - Retryer 组合二者，底层由 [avast/retry-go/v5] 驱动
//
// 用法：
//
//	r := xretry.NewRetryer(
//	    xretry.WithRetryPolicy(xretry.NewRetryOn(5, isCollision)),
//	    xretry.WithBackoffPolicy(xretry.NewExponentialBackoff(xretry.WithJitter(0))),
//	)
//	rec, err := xretry.DoWithResult(ctx, r, attempt)
//
// 实现 RetryableError 且 Retryable() 返回 false 的错误永远不会被重试，
// 即使匹配函数认为它可以重试。
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
