// Package api 提供运单号服务的 HTTP 接口（gin）。
//
// 路由：
//
//	GET    /api/v1/tracking/next-tracking-number   分配运单号
//	GET    /api/v1/tracking/search                 多字段搜索
//	GET    /api/v1/tracking/all                    分页列表
//	GET    /api/v1/tracking/:trackingNumber        单号查询
//	DELETE /api/v1/tracking/cache                  使快照和搜索缓存失效
//	GET    /health                                 Redis / MongoDB 健康检查
//
// 错误响应统一为 {errorCode, message, timestamp}。
package api
