// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xdlock: Redis 分布式锁（redsync），用于多副本周期任务互斥
//
// 设计原则：
//   - 锁带过期时间，持有者崩溃后自动释放
//   - 锁被占用是正常结果，不作为错误返回
package distributed
