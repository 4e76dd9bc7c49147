package crawlers

import (
	"context"
	"strings"
	"time"
)

// NavigationPolicy 单次导航的声明式策略
// 拦截哪些资源、附加哪些头部都在这里描述,由具体引擎负责落实
type NavigationPolicy struct {
	Timeout            time.Duration     // 导航超时,0表示只受ctx约束
	BlockResourceTypes []string          // 拦截的资源类型: Image, Media, Font, Stylesheet ...
	Headers            map[string]string // 额外请求头
	UserAgent          string
}

// Blocks 判断资源类型是否应被拦截(大小写不敏感)
func (p NavigationPolicy) Blocks(resourceType string) bool {
	for _, t := range p.BlockResourceTypes {
		if strings.EqualFold(t, resourceType) {
			return true
		}
	}
	return false
}

// PageHandle 一个可独立使用的浏览器标签页
// 借出期间只属于一个任务,空闲期间只属于标签页池
type PageHandle interface {
	// ID 标签页唯一标识
	ID() string
	// Navigate 加载URL,等待load事件
	Navigate(ctx context.Context, url string, policy NavigationPolicy) error
	// WaitSelector 在timeout内等待选择器出现,超时返回(false, nil)
	WaitSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	// ScrollToBottom 逐步滚动到底部以触发懒加载
	ScrollToBottom(ctx context.Context, step, maxSteps int, delay time.Duration) error
	// HTML 返回当前文档的HTML
	HTML(ctx context.Context) (string, error)
	// URL 当前文档地址,用于补全相对链接
	URL() string
	// Reset 回到空白状态(about:blank + 清理存储和cookie),失败的标签页会被销毁替换
	Reset(ctx context.Context) error
	// Close 关闭标签页,可重复调用
	Close() error
}

// PageFactory 标签页工厂,负责底层浏览器的生命周期
type PageFactory interface {
	NewPage(ctx context.Context) (PageHandle, error)
	Close() error
}

// DisconnectNotifier 可选接口: 底层浏览器意外断开时回调
type DisconnectNotifier interface {
	OnDisconnect(fn func(err error))
}
