// Package xbreaker 基于 [sony/gobreaker/v2] 的熔断器。
//
// 本服务用它包裹全部 Redis 调用。Redis 连续失败后熔断器打开，
// 之后的调用直接返回 [BreakerError]，上层据此走降级路径（查询回落到 MongoDB），
// 不再等待每次调用超时。
//
// 推荐组合：
//
//	b := xbreaker.NewBreaker("redis",
//	    xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(5)),
//	    xbreaker.WithSuccessPolicy(xbreaker.IgnoreContextErrors{}),
//	    xbreaker.WithTimeout(30*time.Second),
//	)
//
// BreakerError 实现 Retryable() 并返回 false，与 xretry 组合时不会被重试。
//
// [sony/gobreaker/v2]: https://github.com/sony/gobreaker
package xbreaker
