// Package trackstore 是运单记录在 MongoDB 上的存储实现，满足 xtracking.Store。
//
// 读写经由 xmongo 包装器执行，复用其超时兜底、统计与观测。集合上需要
// tracking_number 唯一索引（EnsureIndexes 创建），并发分配在持久化阶段的
// 最终冲突由该索引裁决，返回包裹 xtracking.ErrDuplicate 的错误。
package trackstore
