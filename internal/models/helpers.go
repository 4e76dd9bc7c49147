package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/idna"
)

// NormalizeHost 主机名转为IDNA ASCII形式并小写,转换失败时只做小写
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	return strings.ToLower(host)
}

// ValidateURL 验证URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

// ValidateAlbumURL 验证相册URL,并限制在允许的主机名内
// allowedHosts为空时不做主机限制
func ValidateAlbumURL(raw string, allowedHosts []string) error {
	if raw == "" {
		return ErrMissingURL
	}
	if err := ValidateURL(raw); err != nil {
		return NewScrapeError(KindInvalidURL, err.Error(), err)
	}
	if len(allowedHosts) == 0 {
		return nil
	}
	parsed, _ := url.Parse(raw)
	got := NormalizeHost(parsed.Hostname())
	for _, host := range allowedHosts {
		if got == NormalizeHost(host) {
			return nil
		}
	}
	return NewScrapeError(KindInvalidURL, fmt.Sprintf("不支持的站点: %s", got), nil)
}

// generateID 生成唯一ID
func generateID() string {
	return uuid.New().String()
}

// shortID 日志中使用的短ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
