package crawlers

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/GalleryScraper/internal/models"
)

var (
	videoURLPattern = regexp.MustCompile(`(?i)\.mp4(\?|$)`)
	imageURLPattern = regexp.MustCompile(`(?i)\.(webp|avif|jpg|jpeg|png|gif|bmp|webm)(\?|$)`)
	cssURLPattern   = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)
)

// Strategy 一条选择器策略
// 按表中顺序尝试,第一个命中至少一个节点的策略生效
type Strategy struct {
	Name     string
	Selector string
}

// HomeStrategies 首页相册链接选择器
var HomeStrategies = []Strategy{
	{Name: "相册卡片", Selector: `a[data-zoom="false"][data-autofit="false"][data-preload="true"][data-download="true"][data-controls="false"][href^="/album/"]`},
	{Name: "相册相对链接", Selector: `a[href^="/album/"]`},
	{Name: "相册任意链接", Selector: `a[href*="/album/"]`},
}

// AlbumStrategies 相册页媒体选择器
var AlbumStrategies = []Strategy{
	{Name: "网格聚光灯", Selector: `.hotgrid .hotplay a.spotlight`},
	{Name: "聚光灯", Selector: `a.spotlight`},
	{Name: "媒体属性", Selector: `[data-media]`},
}

// recordParser 把一个节点解析为记录,返回false表示跳过
type recordParser func(node *goquery.Selection, base *url.URL) (models.ExtractedItem, bool)

// Extractor 页面内容提取器
type Extractor struct {
	home  []Strategy
	album []Strategy
}

// NewExtractor 使用默认策略表创建提取器
func NewExtractor() *Extractor {
	return &Extractor{home: HomeStrategies, album: AlbumStrategies}
}

// NewExtractorWithStrategies 使用自定义策略表创建提取器,空表沿用默认值
func NewExtractorWithStrategies(home, album []Strategy) *Extractor {
	e := NewExtractor()
	if len(home) > 0 {
		e.home = home
	}
	if len(album) > 0 {
		e.album = album
	}
	return e
}

// Extract 从已加载页面的HTML中提取记录
// 返回的记录未去重;没有任何策略命中时返回空切片
func (e *Extractor) Extract(kind models.TargetKind, html string, pageURL string) ([]models.ExtractedItem, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("页面URL无效: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	var (
		strategies []Strategy
		parse      recordParser
	)
	switch kind {
	case models.TargetHome:
		strategies, parse = e.home, parseAlbumSummary
	case models.TargetAlbum:
		strategies, parse = e.album, parseMediaItem
	default:
		return nil, fmt.Errorf("未知的页面类型: %s", kind)
	}

	items := make([]models.ExtractedItem, 0)
	for _, strategy := range strategies {
		nodes := doc.Find(strategy.Selector)
		if nodes.Length() == 0 {
			continue
		}
		nodes.Each(func(_ int, node *goquery.Selection) {
			if item, ok := parse(node, base); ok {
				items = append(items, item)
			}
		})
		break
	}
	return items, nil
}

// parseAlbumSummary 解析首页相册卡片
func parseAlbumSummary(node *goquery.Selection, base *url.URL) (models.ExtractedItem, bool) {
	href := absoluteURL(base, attr(node, "href"))
	if href == "" {
		return nil, false
	}

	img := node.Find("img.img-fluid").First()
	if img.Length() == 0 {
		img = node.Find("img").First()
	}

	return models.AlbumSummary{
		Href:         href,
		ThumbnailURL: absoluteURL(base, firstNonEmpty(attr(img, "data-src"), attr(img, "src"))),
		Title:        firstNonEmpty(attr(node, "data-title"), attr(node, "title"), attr(img, "alt")),
	}, true
}

// parseMediaItem 解析相册页媒体节点
// 视频判定: data-media=video,或data-src-mp4/href指向mp4
func parseMediaItem(node *goquery.Selection, base *url.URL) (models.ExtractedItem, bool) {
	href := attr(node, "href")
	srcMp4 := attr(node, "data-src-mp4")
	img := node.Find("img").First()
	title := firstNonEmpty(attr(node, "data-title"), attr(node, "title"), attr(img, "alt"))

	isVideo := strings.EqualFold(attr(node, "data-media"), "video") ||
		videoURLPattern.MatchString(srcMp4) ||
		videoURLPattern.MatchString(href)

	if isVideo {
		src := absoluteURL(base, firstNonEmpty(srcMp4, href))
		if src == "" {
			return nil, false
		}
		return models.MediaItem{
			Kind:      models.MediaVideo,
			SourceURL: src,
			PosterURL: absoluteURL(base, attr(node, "data-poster")),
			Title:     title,
		}, true
	}

	src := firstNonEmpty(
		attr(node, "data-src"),
		attr(img, "data-src"),
		attr(img, "src"),
		imageHref(href),
		backgroundImage(attr(node, "style")),
	)
	src = absoluteURL(base, src)
	if src == "" {
		return nil, false
	}
	return models.MediaItem{
		Kind:      models.MediaImage,
		SourceURL: src,
		Title:     title,
	}, true
}

// imageHref href指向图片文件时返回href
func imageHref(href string) string {
	if imageURLPattern.MatchString(href) {
		return href
	}
	return ""
}

// backgroundImage 从style中取background-image的url()
func backgroundImage(style string) string {
	if !strings.Contains(style, "background") {
		return ""
	}
	if m := cssURLPattern.FindStringSubmatch(style); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// absoluteURL 以页面地址补全相对链接,非http(s)链接返回空
func absoluteURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func attr(s *goquery.Selection, name string) string {
	if s == nil || s.Length() == 0 {
		return ""
	}
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
