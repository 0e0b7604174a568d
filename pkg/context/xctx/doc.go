// Package xctx 在 context 中传递请求级字段：trace_id、span_id、request_id、
// trace_flags，以及申请运单号的客户 customer_id、customer_slug。
//
// WithXxx 在 ctx 为 nil 时返回 ErrNilContext，读取函数对 nil ctx 返回空字符串。
// xlog 的 enrich handler 通过 AppendTraceAttrs 与 AppendCustomerAttrs 把这些字段
// 写入每条日志。
package xctx
