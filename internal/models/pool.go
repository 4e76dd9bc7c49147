package models

// HandleState 标签页句柄状态
type HandleState string

const (
	HandleIdle   HandleState = "idle"
	HandleInUse  HandleState = "in_use"
	HandleClosed HandleState = "closed"
)

// PoolStats 标签页池占用快照,供健康检查和指标使用
type PoolStats struct {
	Capacity      int   `json:"capacity"`       // 最大并发标签页数
	Live          int   `json:"live"`           // 已创建(含创建中)的标签页数
	Idle          int   `json:"idle"`           // 空闲标签页数
	InUse         int   `json:"in_use"`         // 借出中的标签页数
	Recycling     int   `json:"recycling"`      // 已归还、后台重置中的标签页数
	Waiting       int   `json:"waiting"`        // 等待队列长度
	WaitlistLimit int   `json:"waitlist_limit"` // 等待队列上限
	Generation    int64 `json:"generation"`     // 浏览器代数,每次断开重建后+1
	Closed        bool  `json:"closed"`
}
