package crawlers_test

import (
	"testing"

	"github.com/RecoveryAshes/GalleryScraper/internal/crawlers"
	"github.com/RecoveryAshes/GalleryScraper/internal/crawlers/crawlertest"
	"github.com/RecoveryAshes/GalleryScraper/internal/models"
)

func TestExtractor_HomeDedup(t *testing.T) {
	extractor := crawlers.NewExtractor()

	raw, err := extractor.Extract(models.TargetHome, crawlertest.HomeHTML, crawlertest.HomeURL)
	if err != nil {
		t.Fatalf("提取失败: %v", err)
	}
	if len(raw) != 5 {
		t.Fatalf("去重前期望5条, 得到 %d", len(raw))
	}

	items := crawlers.Dedup(raw)
	want := []models.AlbumSummary{
		{Href: "https://hotpic.one/album/aaa", ThumbnailURL: "https://cdn.hotpic.one/a.jpg", Title: "Album A"},
		{Href: "https://hotpic.one/album/bbb", ThumbnailURL: "https://hotpic.one/thumbs/b.jpg", Title: "Album B"},
		{Href: "https://hotpic.one/album/ccc", ThumbnailURL: "https://cdn.hotpic.one/c.jpg", Title: "Album C"},
		{Href: "https://hotpic.one/album/ddd", ThumbnailURL: "", Title: "Album D"},
	}
	if len(items) != len(want) {
		t.Fatalf("期望 %d 条, 得到 %d: %+v", len(want), len(items), items)
	}
	for i, w := range want {
		got, ok := items[i].(models.AlbumSummary)
		if !ok {
			t.Fatalf("第%d条类型错误: %T", i, items[i])
		}
		if got != w {
			t.Errorf("第%d条\n期望 %+v\n得到 %+v", i, w, got)
		}
	}
}

func TestExtractor_AlbumVideoFromHref(t *testing.T) {
	extractor := crawlers.NewExtractor()

	items, err := extractor.Extract(models.TargetAlbum, crawlertest.AlbumHTML, crawlertest.AlbumURL)
	if err != nil {
		t.Fatalf("提取失败: %v", err)
	}
	items = crawlers.Dedup(items)

	var images, videos []models.MediaItem
	for _, item := range items {
		media := item.(models.MediaItem)
		switch media.Kind {
		case models.MediaImage:
			images = append(images, media)
		case models.MediaVideo:
			videos = append(videos, media)
		}
	}

	if len(videos) != 1 {
		t.Fatalf("期望1个视频, 得到 %d", len(videos))
	}
	if videos[0].SourceURL != "https://cdn.hotpic.one/v/clip.mp4" {
		t.Errorf("视频应使用href作为源, 得到 %s", videos[0].SourceURL)
	}
	if videos[0].PosterURL != "https://cdn.hotpic.one/v/clip.jpg" {
		t.Errorf("视频封面错误: %s", videos[0].PosterURL)
	}

	wantImages := []string{
		"https://cdn.hotpic.one/1.webp",
		"https://cdn.hotpic.one/2.avif",
		"https://hotpic.one/media/3.png",
	}
	if len(images) != len(wantImages) {
		t.Fatalf("期望 %d 张图片, 得到 %d", len(wantImages), len(images))
	}
	for i, src := range wantImages {
		if images[i].SourceURL != src {
			t.Errorf("第%d张图片期望 %s, 得到 %s", i, src, images[i].SourceURL)
		}
	}
	if images[0].Title != "one" || images[1].Title != "two" {
		t.Errorf("标题提取错误: %q, %q", images[0].Title, images[1].Title)
	}
}

func TestExtractor_AlbumRules(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		wantKind models.MediaKind
		wantSrc  string
	}{
		{
			name:     "data-media标记视频",
			html:     `<div class="hotgrid"><div class="hotplay"><a class="spotlight" data-media="video" data-src-mp4="/v/a.mp4?token=1" href="#"></a></div></div>`,
			wantKind: models.MediaVideo,
			wantSrc:  "https://hotpic.one/v/a.mp4?token=1",
		},
		{
			name:     "data-src-mp4优先于href",
			html:     `<a class="spotlight" data-src-mp4="https://cdn/x.mp4" href="https://cdn/y.mp4"></a>`,
			wantKind: models.MediaVideo,
			wantSrc:  "https://cdn/x.mp4",
		},
		{
			name:     "背景图",
			html:     `<a class="spotlight" href="#" style="background-image: url('https://cdn/bg.jpg')"></a>`,
			wantKind: models.MediaImage,
			wantSrc:  "https://cdn/bg.jpg",
		},
		{
			name:     "内部img的src",
			html:     `<a class="spotlight" href="/album/x"><img src="/i/5.gif"></a>`,
			wantKind: models.MediaImage,
			wantSrc:  "https://hotpic.one/i/5.gif",
		},
	}

	extractor := crawlers.NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := extractor.Extract(models.TargetAlbum, tt.html, crawlertest.AlbumURL)
			if err != nil {
				t.Fatalf("提取失败: %v", err)
			}
			if len(items) != 1 {
				t.Fatalf("期望1条, 得到 %d", len(items))
			}
			media := items[0].(models.MediaItem)
			if media.Kind != tt.wantKind || media.SourceURL != tt.wantSrc {
				t.Errorf("期望 %s %s, 得到 %s %s", tt.wantKind, tt.wantSrc, media.Kind, media.SourceURL)
			}
		})
	}
}

func TestExtractor_NoSourceSkipped(t *testing.T) {
	html := `<a class="spotlight" href="#"></a><a class="spotlight" href="javascript:void(0)"></a>`
	items, err := crawlers.NewExtractor().Extract(models.TargetAlbum, html, crawlertest.AlbumURL)
	if err != nil {
		t.Fatalf("提取失败: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("没有源的节点应被跳过, 得到 %+v", items)
	}
}

func TestExtractor_StrategyFallback(t *testing.T) {
	html := `<ul><li><a href="https://hotpic.one/album/zzz" title="Z">Z</a></li></ul>`
	items, err := crawlers.NewExtractor().Extract(models.TargetHome, html, crawlertest.HomeURL)
	if err != nil {
		t.Fatalf("提取失败: %v", err)
	}
	if len(items) != 1 || items[0].Source() != "https://hotpic.one/album/zzz" {
		t.Errorf("应回退到 a[href*=\"/album/\"], 得到 %+v", items)
	}
}

func TestExtractor_UnknownKind(t *testing.T) {
	if _, err := crawlers.NewExtractor().Extract("other", "<html></html>", crawlertest.HomeURL); err == nil {
		t.Error("未知页面类型应返回错误")
	}
}
