package crawlers

import (
	"net/url"
	"strings"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/samber/lo"
)

// NormalizeSourceURL 规范化源URL,用作去重键和缓存键
// 协议和主机名小写(主机名转为IDNA ASCII形式),去掉默认端口和片段,路径和查询保持原样
func NormalizeSourceURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.Host == "" {
		return u.String()
	}

	u.Scheme = strings.ToLower(u.Scheme)

	host := models.NormalizeHost(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	u.Host = host

	return u.String()
}

// DedupKey 复合去重键: 类别 + 规范化源URL
func DedupKey(item models.ExtractedItem) string {
	return string(item.ItemKind()) + ":" + NormalizeSourceURL(item.Source())
}

// Dedup 按复合键去重,保留首次出现的顺序
// 对已去重的序列再次调用结果不变
func Dedup(items []models.ExtractedItem) []models.ExtractedItem {
	return lo.UniqBy(items, DedupKey)
}
