package models

import (
	"errors"
	"fmt"
)

// ErrorKind 对外暴露的错误类别,直接写入响应体的error字段
type ErrorKind string

const (
	KindPoolSaturated       ErrorKind = "POOL_SATURATED"            // 等待队列已满,稍后重试
	KindBrowserDisconnected ErrorKind = "BROWSER_DISCONNECTED"      // 浏览器崩溃或断开,下一次获取时自愈
	KindNoContentFound      ErrorKind = "NO_CONTENT_FOUND"          // 页面已加载但结构标记始终未出现
	KindNavigationTimeout   ErrorKind = "NAVIGATION_TIMEOUT"        // 内容就绪前超过截止时间
	KindInvalidURL          ErrorKind = "INVALID_URL"               // 相册参数格式错误
	KindMissingURL          ErrorKind = "MISSING_URL"               // 缺少相册参数
	KindInvalidPage         ErrorKind = "INVALID_PAGE"              // 页码参数错误
	KindInternalExtraction  ErrorKind = "INTERNAL_EXTRACTION_ERROR" // 提取函数意外失败
	KindPoolClosed          ErrorKind = "POOL_CLOSED"               // 服务正在关闭
)

// ScrapeError 抓取错误
type ScrapeError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewScrapeError 创建抓取错误
func NewScrapeError(kind ErrorKind, message string, err error) *ScrapeError {
	return &ScrapeError{Kind: kind, Message: message, Err: err}
}

// Error 实现error接口
func (e *ScrapeError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

// Unwrap 支持errors.Unwrap
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Is 按错误类别匹配,使 errors.Is(err, ErrPoolSaturated) 对任意消息生效
func (e *ScrapeError) Is(target error) bool {
	var t *ScrapeError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// 哨兵错误
var (
	ErrPoolSaturated       = &ScrapeError{Kind: KindPoolSaturated, Message: "等待队列已满"}
	ErrBrowserDisconnected = &ScrapeError{Kind: KindBrowserDisconnected, Message: "浏览器连接已断开"}
	ErrNoContentFound      = &ScrapeError{Kind: KindNoContentFound, Message: "未找到页面内容"}
	ErrNavigationTimeout   = &ScrapeError{Kind: KindNavigationTimeout, Message: "页面加载超时"}
	ErrInvalidURL          = &ScrapeError{Kind: KindInvalidURL, Message: "无效的URL"}
	ErrMissingURL          = &ScrapeError{Kind: KindMissingURL, Message: "缺少URL参数"}
	ErrInternalExtraction  = &ScrapeError{Kind: KindInternalExtraction, Message: "内容提取失败"}
	ErrPoolClosed          = &ScrapeError{Kind: KindPoolClosed, Message: "标签页池已关闭"}
)

// KindOf 返回错误链中第一个ScrapeError的类别
// 非ScrapeError统一视为提取内部错误
func KindOf(err error) ErrorKind {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternalExtraction
}
