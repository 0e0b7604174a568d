// Package xtracking 提供全局唯一运单号的分配与查询。
//
// # 组成
//
//   - FormatPolicy：由路由、客户、时间和随机四段生成候选号
//   - Engine：校验候选号唯一性，SET NX 预留后持久化，碰撞时指数退避重试
//   - Consistency：维护全量快照缓存（分页列表）与搜索结果缓存
//   - Service：组合以上组件的门面，分配成功后使派生缓存失效
//
// # 缓存状态
//
// 每个运单号在缓存中对应 tracking:<运单号>，值为 reserved 或 permanent，TTL 默认 24 小时。
// 预留之后的持久化失败不做补偿删除，reserved 条目随 TTL 过期。
//
// # 错误
//
// 调用方只会看到 ErrGenerationExhausted、*InfrastructureError、ErrInvalidPage、
// ErrNotFound 和上下文错误。碰撞与缓存反序列化失败在内部吸收。
//
// # 依赖
//
// Cache 和 Store 是端口接口：xcache.Redis 满足 Cache，internal/trackstore 的 MongoDB
// 实现满足 Store。
package xtracking
