package xmetrics

// 运单领域属性键
const (
	// AttrSource 结果来源（cache / store），同时作为指标维度
	AttrSource       = "xtrack.source"
	AttrAttempts     = "xtrack.attempts"
	AttrCustomerSlug = "xtrack.customer_slug"
	AttrResultCount  = "xtrack.result_count"
)

// String 字符串属性
func String(key, value string) Attr { return Attr{Key: key, Value: value} }

// Int 整数属性
func Int(key string, value int) Attr { return Attr{Key: key, Value: value} }

// Int64 int64 属性
func Int64(key string, value int64) Attr { return Attr{Key: key, Value: value} }
