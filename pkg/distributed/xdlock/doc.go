// Package xdlock 基于 redsync 提供 Redis 分布式锁。
//
// 主要用于多副本部署下的周期任务互斥：每个周期只有抢到锁的副本执行，
// 其余副本跳过。锁带过期时间，持有者崩溃后自动释放。
//
// # 基本用法
//
//	factory, err := xdlock.NewRedisFactory(client)
//	if err != nil {
//	    return err
//	}
//	handle, err := factory.TryLock(ctx, "snapshot-warm", xdlock.WithExpiry(time.Minute))
//	if err != nil {
//	    return err // Redis 不可用
//	}
//	if handle == nil {
//	    return nil // 其他副本持有
//	}
//	defer handle.Unlock(ctx)
//
// 单个客户端为普通 Redis 锁，多个客户端使用 Redlock（过半节点成功才算获取）。
// 工厂不管理 Redis 客户端的生命周期。
package xdlock
