package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CliHeaders 命令行 --header 传入的头部,每项格式为 "Name: Value"
type CliHeaders []string

// Parse 解析为 http.Header,同名头部后出现的覆盖先出现的
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header, len(ch))
	for i, line := range ch {
		name, value, err := ParseHeaderLine(line)
		if err != nil {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: %w", i+1, err)
		}
		result.Set(name, value)
	}
	return result, nil
}

// ParseHeaderLine 拆分 "Name: Value",值中可以包含冒号
func ParseHeaderLine(line string) (name, value string, err error) {
	name, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", errors.New("缺少冒号分隔符,应为 'Name: Value'")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", errors.New("头部名称不能为空")
	}
	return name, strings.TrimSpace(value), nil
}

// HeaderProvider 导航请求头来源
// 返回的头部已按优先级合并(默认 < 配置文件 < 命令行)
type HeaderProvider interface {
	GetHeaders() (http.Header, error)
}

// ValidationError 头部验证失败
type ValidationError struct {
	Field      string // "name" 或 "value"
	HeaderName string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Suggestion == "" {
		return fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	}
	return fmt.Sprintf("头部验证失败 [%s]: %s (建议: %s)", e.HeaderName, e.Reason, e.Suggestion)
}
