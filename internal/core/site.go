package core

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
)

// SiteProfile 目标站点: 每种任务的目标URL和结构标记
type SiteProfile struct {
	base         *url.URL
	homePath     string
	pageTemplate string
	markers      map[models.TargetKind]string
	allowedHosts []string
}

// NewSiteProfile 从配置创建站点描述
func NewSiteProfile(config SiteConfig) (*SiteProfile, error) {
	base, err := url.Parse(config.BaseURL)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("base_url无效: %q", config.BaseURL)
	}
	if config.PageTemplate != "" && strings.Count(config.PageTemplate, "%d") != 1 {
		return nil, fmt.Errorf("page_template必须包含一个%%d: %q", config.PageTemplate)
	}

	// 与NormalizeSourceURL一致,统一为IDNA ASCII小写形式
	allowed := make([]string, 0, len(config.AllowedHosts))
	for _, host := range config.AllowedHosts {
		if host = models.NormalizeHost(host); host != "" {
			allowed = append(allowed, host)
		}
	}
	if len(allowed) == 0 {
		allowed = []string{models.NormalizeHost(base.Hostname())}
	}

	return &SiteProfile{
		base:         base,
		homePath:     config.HomePath,
		pageTemplate: config.PageTemplate,
		markers: map[models.TargetKind]string{
			models.TargetHome:  config.HomeMarker,
			models.TargetAlbum: config.AlbumMarker,
		},
		allowedHosts: allowed,
	}, nil
}

// HomeURL 首页地址,也用作默认Referer
func (sp *SiteProfile) HomeURL() string {
	return sp.base.ResolveReference(&url.URL{Path: sp.homePath}).String()
}

// TargetURL 任务对应的导航地址
// 第1页使用首页地址,之后按page_template生成;没有模板时所有页都使用首页
func (sp *SiteProfile) TargetURL(job models.Job) (string, error) {
	switch job.Kind {
	case models.TargetHome:
		if job.Page <= 1 || sp.pageTemplate == "" {
			return sp.HomeURL(), nil
		}
		ref, err := url.Parse(fmt.Sprintf(sp.pageTemplate, job.Page))
		if err != nil {
			return "", err
		}
		return sp.base.ResolveReference(ref).String(), nil
	case models.TargetAlbum:
		return job.AlbumURL, nil
	}
	return "", fmt.Errorf("未知的任务类型: %s", job.Kind)
}

// Marker 任务类型的结构标记,为空表示没有可靠标记
func (sp *SiteProfile) Marker(kind models.TargetKind) string {
	return sp.markers[kind]
}

// AllowedHosts 允许抓取的相册主机
func (sp *SiteProfile) AllowedHosts() []string {
	return sp.allowedHosts
}
