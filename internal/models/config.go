package models

import (
	"fmt"
	"time"
)

// Engine 页面引擎
type Engine string

const (
	EngineRod    Engine = "rod"    // 无头Chrome,执行JavaScript (默认)
	EngineStatic Engine = "static" // 纯HTTP抓取,不执行JavaScript
)

// PoolConfig 标签页池配置
type PoolConfig struct {
	Capacity      int `mapstructure:"capacity" json:"capacity"`             // 最大并发标签页数,0表示按CPU/内存自动计算
	MaxCapacity   int `mapstructure:"max_capacity" json:"max_capacity"`     // 自动计算时的上限 (默认:4)
	WaitlistLimit int `mapstructure:"waitlist_limit" json:"waitlist_limit"` // 等待队列上限 (默认:16)
}

// Validate 验证配置
func (c *PoolConfig) Validate() error {
	if c.Capacity < 0 {
		return fmt.Errorf("标签页池容量不能为负数: %d", c.Capacity)
	}
	if c.MaxCapacity < 1 {
		return fmt.Errorf("标签页池自动容量上限必须大于0")
	}
	if c.WaitlistLimit < 0 {
		return fmt.Errorf("等待队列上限不能为负数: %d", c.WaitlistLimit)
	}
	return nil
}

// ScrapeConfig 抓取配置
type ScrapeConfig struct {
	Engine            Engine        `mapstructure:"engine" json:"engine"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" json:"navigation_timeout"` // 单次导航超时 (默认:30s)
	JobDeadline       time.Duration `mapstructure:"job_deadline" json:"job_deadline"`             // 单个任务截止时长 (默认:45s)
	MarkerTimeout     time.Duration `mapstructure:"marker_timeout" json:"marker_timeout"`         // 等待结构标记超时 (默认:10s)
	FallbackWait      time.Duration `mapstructure:"fallback_wait" json:"fallback_wait"`           // 无结构标记时的固定等待 (默认:1.5s)
	ScrollStep        int           `mapstructure:"scroll_step" json:"scroll_step"`               // 每次滚动像素 (默认:900)
	MaxScrolls        int           `mapstructure:"max_scrolls" json:"max_scrolls"`               // 滚动次数上限 (默认:30)
	ScrollDelay       time.Duration `mapstructure:"scroll_delay" json:"scroll_delay"`             // 每次滚动间隔 (默认:120ms)
	RatePerSecond     int           `mapstructure:"rate_per_second" json:"rate_per_second"`       // 每秒导航次数上限,0表示不限
	BlockResources    []string      `mapstructure:"block_resources" json:"block_resources"`       // 拦截的资源类型
}

// Validate 验证配置
func (c *ScrapeConfig) Validate() error {
	if c.Engine != EngineRod && c.Engine != EngineStatic {
		return fmt.Errorf("无效的引擎: %s (必须是 rod 或 static)", c.Engine)
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("导航超时必须大于0")
	}
	if c.JobDeadline <= 0 {
		return fmt.Errorf("任务截止时长必须大于0")
	}
	if c.MarkerTimeout <= 0 {
		return fmt.Errorf("结构标记等待时长必须大于0")
	}
	if c.ScrollStep < 1 {
		return fmt.Errorf("滚动步长必须大于0")
	}
	if c.MaxScrolls < 0 {
		return fmt.Errorf("滚动次数上限不能为负数")
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("导航速率不能为负数")
	}
	return nil
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless       bool              `mapstructure:"headless" json:"headless"`               // 无头模式 (默认:true)
	Bin            string            `mapstructure:"bin" json:"bin"`                         // 浏览器可执行文件,为空时自动查找
	RemoteURL      string            `mapstructure:"remote_url" json:"remote_url"`           // 连接已有浏览器的DevTools地址
	NoSandbox      bool              `mapstructure:"no_sandbox" json:"no_sandbox"`           // 容器内运行时需要
	UserAgent      string            `mapstructure:"user_agent" json:"user_agent"`           // 桌面浏览器UA
	ViewportWidth  int               `mapstructure:"viewport_width" json:"viewport_width"`   // (默认:1280)
	ViewportHeight int               `mapstructure:"viewport_height" json:"viewport_height"` // (默认:2200)
	Headers        map[string]string `mapstructure:"headers" json:"-"`                       // 额外请求头
}

// Validate 验证配置
func (c *BrowserConfig) Validate() error {
	if c.ViewportWidth < 1 || c.ViewportHeight < 1 {
		return fmt.Errorf("视口尺寸无效: %dx%d", c.ViewportWidth, c.ViewportHeight)
	}
	if c.RemoteURL != "" {
		if err := ValidateURL(httpScheme(c.RemoteURL)); err != nil {
			return fmt.Errorf("remote_url 无效: %w", err)
		}
	}
	return nil
}

// httpScheme 将ws(s)地址映射为http(s)以便复用URL校验
func httpScheme(raw string) string {
	switch {
	case len(raw) > 6 && raw[:6] == "wss://":
		return "https://" + raw[6:]
	case len(raw) > 5 && raw[:5] == "ws://":
		return "http://" + raw[5:]
	}
	return raw
}
