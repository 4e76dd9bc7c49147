package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
)

// MaxHeaderValueLength HTTP头部值最大长度 (8KB)
const MaxHeaderValueLength = 8192

var (
	// ForbiddenHeaders 由浏览器/HTTP客户端管理,不允许自定义
	ForbiddenHeaders = []string{"Host", "Content-Length", "Transfer-Encoding", "Connection", "Cookie"}

	// SensitiveKeywords 敏感头部名称关键字,日志中脱敏
	SensitiveKeywords = []string{"authorization", "token", "key", "secret", "password", "credential", "cookie"}

	headerNamePattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	headerValuePattern = regexp.MustCompile(`^[\x20-\x7E\t]*$`)
)

// ValidateHeader 验证单个头部(RFC 7230)
func ValidateHeader(name, value string) error {
	for _, forbidden := range ForbiddenHeaders {
		if strings.EqualFold(name, forbidden) {
			return &models.ValidationError{
				Field:      "name",
				HeaderName: name,
				Reason:     "此头部由浏览器自动管理,不允许自定义",
				Suggestion: fmt.Sprintf("移除 '%s' 头部配置", name),
			}
		}
	}

	if name == "" || !headerNamePattern.MatchString(name) {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称为空或包含非法字符 (仅允许字母、数字和连字符)",
			Suggestion: "使用字母、数字和连字符 (如 'Referer', 'X-Custom-Header')",
		}
	}

	if len(value) > MaxHeaderValueLength {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength),
		}
	}

	if !headerValuePattern.MatchString(value) {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     "头部值包含非法字符 (仅允许可打印ASCII字符)",
			Suggestion: "移除控制字符和非ASCII字符",
		}
	}

	return nil
}

// ValidateHeaders 验证全部头部,按名称排序后返回第一个错误
func ValidateHeaders(headers http.Header) error {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range headers[name] {
			if err := ValidateHeader(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsSensitiveHeader 根据名称关键字判断是否敏感
func IsSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range SensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// RedactHeaders 返回脱敏后的头部,用于日志
func RedactHeaders(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		if IsSensitiveHeader(name) {
			switch {
			case strings.HasPrefix(value, "Bearer "):
				value = "Bearer ***"
			case len(value) > 8:
				value = value[:4] + "***" + value[len(value)-4:]
			default:
				value = "***"
			}
		}
		result[name] = value
	}
	return result
}
