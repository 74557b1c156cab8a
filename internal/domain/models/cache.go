package models

import (
	"time"
)

// CacheKey 缓存键，即产生结果的原始评估请求。
// 只有显式设置的顶层字段参与匹配；未设置的字段不构成约束。
// 由 NormalizeKey 构造，创建后不再修改。
type CacheKey map[string]any

// ResponsePayload 评估计算的结果，对缓存来说是不透明的结构化数据。
// 写入后不可变。
type ResponsePayload map[string]any

// CacheEntry 定义了结果缓存中的核心数据单元。
type CacheEntry struct {
	// ID 存储分配的唯一标识，永不复用，仅用于定位命中计数更新
	ID string `json:"id"`

	// Request 产生该结果的原始请求，作为查找谓词
	Request CacheKey `json:"request"`

	// Response 缓存的计算结果
	Response ResponsePayload `json:"response"`

	// Score 从 Response 中提取的分数，仅用于同键条目之间的排序
	Score float64 `json:"score"`

	// HitCount 命中次数，只增不减
	HitCount int64 `json:"hitCount"`

	// CreatedAt 写入时间，分数相同时较新的条目优先
	CreatedAt time.Time `json:"createdAt"`
}

// CacheResult 定义了缓存查询的返回结果。
// 未命中不是错误：Hit 为 false 且 Entry 为 nil。
type CacheResult struct {
	// Hit 是否命中
	Hit bool `json:"cached"`

	// Entry 被选中的条目，HitCount 为自增之后的值
	Entry *CacheEntry `json:"result"`
}

// SaveResult 定义了写入缓存的操作结果。
type SaveResult struct {
	Stored  bool   `json:"stored"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// CacheStatistics 缓存统计信息。
// Hits 和 Misses 为进程生命周期内的计数，Entries 来自存储。
type CacheStatistics struct {
	Entries int64   `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Store   string  `json:"store"`
}

// HealthStatus 健康检查结果
type HealthStatus struct {
	Healthy   bool   `json:"healthy"`
	Status    string `json:"status"`
	Store     string `json:"store"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Clone 返回条目的深拷贝，调用方修改副本不会影响存储中的数据。
func (e *CacheEntry) Clone() *CacheEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.Request = CacheKey(cloneObject(e.Request))
	out.Response = ResponsePayload(cloneObject(e.Response))
	return &out
}

// Outranks 报告 a 是否排在 b 之前。
// 规则：分数高者优先；分数相同则创建时间较新者优先；仍相同则 ID 字典序较大者优先。
func Outranks(a, b *CacheEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
