package core

import (
	"net/http"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/RecoveryAshes/GalleryScraper/internal/utils"
)

const (
	// DefaultUserAgent 默认桌面浏览器User-Agent
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// HeaderManager 管理导航请求头部
// 实现 HeaderProvider 接口
type HeaderManager struct {
	// defaults 系统默认头部
	defaults http.Header

	// config 配置文件 browser.headers
	config http.Header

	// cli 命令行 --header
	cli http.Header
}

// NewHeaderManager 创建头部管理器
// 参数:
//   - browser: 浏览器配置,提供User-Agent和额外头部
//   - referer: 默认Referer,通常是站点首页
//   - cliHeaders: 命令行传递的 "Name: Value" 列表
func NewHeaderManager(browser models.BrowserConfig, referer string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults: getDefaultHeaders(browser.UserAgent, referer),
		config:   make(http.Header),
		cli:      make(http.Header),
	}

	for name, value := range browser.Headers {
		hm.config.Set(name, value)
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}

	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders(userAgent, referer string) http.Header {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	headers := http.Header{
		"User-Agent":      []string{userAgent},
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": []string{"en-US,en;q=0.9"},
	}
	if referer != "" {
		headers.Set("Referer", referer)
	}
	return headers
}

// Validate 验证所有头部的合法性
// 验证顺序: 默认 → 配置 → 命令行
func (hm *HeaderManager) Validate() error {
	for _, layer := range []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.config},
		{"命令行", hm.cli},
	} {
		if err := utils.ValidateHeaders(layer.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", layer.name, err)
			return err
		}
	}
	return nil
}

// GetMergedHeaders 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetSafeHeaders 返回脱敏后的头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return utils.RedactHeaders(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return hm.GetMergedHeaders(), nil
}

// splitUserAgent 从合并后的头部中拆出User-Agent
// 浏览器通过专门的接口设置UA,其余头部作为额外请求头发送
func splitUserAgent(headers http.Header) (string, map[string]string) {
	extra := make(map[string]string, len(headers))
	userAgent := ""
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		if http.CanonicalHeaderKey(name) == "User-Agent" {
			userAgent = values[0]
			continue
		}
		extra[http.CanonicalHeaderKey(name)] = values[0]
	}
	return userAgent, extra
}
