// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xcache: Redis lookaside 缓存，条件写入与熔断
//   - xmongo: MongoDB 客户端封装
//
// 设计原则：
//   - 提供窄接口，业务层按端口依赖
//   - 内置可观测性（指标、追踪）
//   - 调用超时由包装层统一设置
package storage
