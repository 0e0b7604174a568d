package xtracking

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// 缓存 key 与状态
// =============================================================================

const (
	// TrackingKeyPrefix 单个运单号的缓存 key 前缀，值为 CacheState。
	TrackingKeyPrefix = "tracking:"

	// SearchKeyPrefix 搜索结果缓存 key 前缀。
	SearchKeyPrefix = "search:"

	// SnapshotKey 全量快照缓存 key。
	SnapshotKey = "all_tracking_numbers"
)

// CacheState 运单号在缓存中的状态，缓存中不存在即为 absent。
type CacheState string

const (
	// StateReserved 候选号已通过校验并被预留，持久化尚未确认。
	StateReserved CacheState = "reserved"

	// StatePermanent 持久化已确认。
	StatePermanent CacheState = "permanent"
)

// Source 结果来源。
type Source string

const (
	SourceCache Source = "cache"
	SourceStore Source = "store"
)

func trackingKey(trackingNumber string) string {
	return TrackingKeyPrefix + trackingNumber
}

// =============================================================================
// 生成输入与记录
// =============================================================================

// GenerationInput 一次号码分配请求的输入，字段格式已在上层校验。
// 只有 Origin、Destination、CustomerSlug 和引擎时钟参与候选号生成。
type GenerationInput struct {
	Origin       string
	Destination  string
	CustomerID   uuid.UUID
	CustomerName string
	CustomerSlug string
	// Weight 千克，最多 3 位小数
	Weight float64
	// CreatedAt 订单创建时间（调用方提供）
	CreatedAt time.Time
}

// Record 已持久化的运单记录，创建后不再修改。
type Record struct {
	// ID 内部记录主键（xid）
	ID             string
	TrackingNumber string
	// CreatedAt 分配时的服务端时间
	CreatedAt      time.Time
	OrderCreatedAt time.Time
	Origin         string
	Destination    string
	Weight         float64
	CustomerID     uuid.UUID
	CustomerName   string
	CustomerSlug   string
}

// RecordInfo 运单记录的对外/缓存形态。
type RecordInfo struct {
	TrackingNumber       string    `json:"trackingNumber"`
	CreatedAt            time.Time `json:"createdAt"`
	OriginCountryID      string    `json:"originCountryId"`
	DestinationCountryID string    `json:"destinationCountryId"`
	Weight               float64   `json:"weight"`
	CustomerID           uuid.UUID `json:"customerId"`
	CustomerName         string    `json:"customerName"`
	CustomerSlug         string    `json:"customerSlug"`
}

// Info 转换为对外形态。
func (r *Record) Info() RecordInfo {
	return RecordInfo{
		TrackingNumber:       r.TrackingNumber,
		CreatedAt:            r.CreatedAt,
		OriginCountryID:      r.Origin,
		DestinationCountryID: r.Destination,
		Weight:               r.Weight,
		CustomerID:           r.CustomerID,
		CustomerName:         r.CustomerName,
		CustomerSlug:         r.CustomerSlug,
	}
}

func infos(records []Record) []RecordInfo {
	out := make([]RecordInfo, len(records))
	for i := range records {
		out[i] = records[i].Info()
	}
	return out
}

// =============================================================================
// 查询
// =============================================================================

// Criteria 搜索条件，按以下优先级取第一个非空分组：
//
//  1. TrackingNumber 精确匹配
//  2. CustomerName 包含匹配（不区分大小写）
//  3. CustomerSlug 包含匹配（不区分大小写）
//  4. Origin / Destination 精确匹配，同时给出时取 AND
//
// 全部为空时返回存储中的前 50 条记录。
type Criteria struct {
	TrackingNumber string
	CustomerName   string
	CustomerSlug   string
	Origin         string
	Destination    string
}

// Effective 返回按优先级裁剪后的条件：只保留决定查询的分组，其余字段清空。
// 各字段去除首尾空白。
func (c Criteria) Effective() Criteria {
	tn := strings.TrimSpace(c.TrackingNumber)
	name := strings.TrimSpace(c.CustomerName)
	slug := strings.TrimSpace(c.CustomerSlug)
	origin := strings.TrimSpace(c.Origin)
	dest := strings.TrimSpace(c.Destination)

	switch {
	case tn != "":
		return Criteria{TrackingNumber: tn}
	case name != "":
		return Criteria{CustomerName: name}
	case slug != "":
		return Criteria{CustomerSlug: slug}
	default:
		return Criteria{Origin: origin, Destination: dest}
	}
}

// IsEmpty 所有字段为空（或仅含空白）。
func (c Criteria) IsEmpty() bool {
	return c.Effective() == Criteria{}
}

// ResultSet 搜索结果，同时是搜索缓存的序列化形态。
type ResultSet struct {
	Results    []RecordInfo `json:"results"`
	TotalFound int          `json:"totalFound"`
	Message    string       `json:"message"`
	SearchedAt time.Time    `json:"searchedAt"`
	Source     Source       `json:"source"`
}

func newResultSet(results []RecordInfo, source Source, now time.Time) *ResultSet {
	msg := "No results found"
	if len(results) > 0 {
		msg = "Results found"
	}
	if results == nil {
		results = []RecordInfo{}
	}
	return &ResultSet{
		Results:    results,
		TotalFound: len(results),
		Message:    msg,
		SearchedAt: now,
		Source:     source,
	}
}

// OrderBy 列表排序方式。
type OrderBy int

const (
	// OrderCreatedAtDesc 按 CreatedAt 降序（默认）。
	OrderCreatedAtDesc OrderBy = iota
	OrderCreatedAtAsc
)

// ListOptions 存储列表查询参数，Take 为 0 表示不限制。
type ListOptions struct {
	OrderBy OrderBy
	Skip    int64
	Take    int64
}

// Page 分页结果，页码从 0 开始。
type Page struct {
	Data          []RecordInfo `json:"data"`
	CurrentPage   int64        `json:"currentPage"`
	PageSize      int64        `json:"pageSize"`
	TotalElements int64        `json:"totalElements"`
	TotalPages    int64        `json:"totalPages"`
	HasNext       bool         `json:"hasNext"`
	HasPrevious   bool         `json:"hasPrevious"`
	RetrievedAt   time.Time    `json:"retrievedAt"`
	FromCache     bool         `json:"fromCache"`
}
