// Package xcache 提供基于 Redis 的 lookaside 缓存。
//
// # 设计理念
//
// xcache 只暴露业务真正需要的键值原语，并补充 go-redis 原生不具备的增值功能：
//   - 原子条件写（SetIfAbsent，即 SET NX EX），作为并发预留的唯一串行化点
//   - 基于 SCAN 的模式匹配（KeysMatching），兼容集群模式
//   - 可选的 xbreaker 熔断保护，Redis 故障时快速失败
//   - 可选的 key 命名空间前缀
//
// 底层客户端通过 Client() 直接暴露，其余操作请直接使用 go-redis。
//
// # 快速开始
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	cache, err := xcache.NewRedis(client,
//	    xcache.WithBreaker(xbreaker.NewBreaker("redis")),
//	)
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
//
//	ok, err := cache.SetIfAbsent(ctx, "tracking:MIG4X7A2B9C", "reserved", 24*time.Hour)
//
// # 缺失语义
//
// Get 对不存在的 key 返回 ("", false, nil)，不返回 redis.Nil。
// 缓存未命中不计入熔断失败统计。
package xcache
