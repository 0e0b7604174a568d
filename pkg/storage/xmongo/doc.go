// Package xmongo 为 mongo-driver v2 的 Client 补充运单存储需要的几项能力：
// 带观测与统计的 Find、Count、InsertOne，健康检查，以及调用方未设置 deadline 时的超时兜底
// （查询 30 秒，写入 10 秒）。
//
// 建索引、事务、Write Concern 等直接通过 Client() 使用驱动 API，这些调用不计入统计。
// Close 之后除 Client 与 Stats 外的方法都返回 ErrClosed。
package xmongo
