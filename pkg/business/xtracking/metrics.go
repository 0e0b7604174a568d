package xtracking

const (
	// MetricsComponent 组件名称。
	MetricsComponent = "xtracking"

	// 操作名称
	MetricsOpAllocate        = "allocate"
	MetricsOpSearch          = "search"
	MetricsOpList            = "list"
	MetricsOpLookup          = "lookup"
	MetricsOpRefreshSnapshot = "refresh_snapshot"
	MetricsOpInvalidate      = "invalidate"
)
