package models

// ItemKind 提取记录的类别
type ItemKind string

const (
	ItemKindAlbum ItemKind = "album" // 首页相册摘要
	ItemKindImage ItemKind = "image" // 相册内图片
	ItemKindVideo ItemKind = "video" // 相册内视频
)

// ExtractedItem 提取函数产出的一条记录
// 只有两种形态: AlbumSummary 和 MediaItem, 产出后不可修改
type ExtractedItem interface {
	// ItemKind 返回记录类别,参与去重键
	ItemKind() ItemKind
	// Source 返回记录的源URL,参与去重键
	Source() string
}

// AlbumSummary 首页列表中的相册摘要
type AlbumSummary struct {
	Href         string `json:"href"`
	ThumbnailURL string `json:"thumb"`
	Title        string `json:"title"`
}

// ItemKind 实现ExtractedItem接口
func (a AlbumSummary) ItemKind() ItemKind { return ItemKindAlbum }

// Source 实现ExtractedItem接口
func (a AlbumSummary) Source() string { return a.Href }

// MediaKind 媒体类型
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaItem 相册页中的一个媒体项
type MediaItem struct {
	Kind      MediaKind `json:"kind"`
	SourceURL string    `json:"src"`
	PosterURL string    `json:"poster,omitempty"` // 仅视频
	Title     string    `json:"title"`
}

// ItemKind 实现ExtractedItem接口
func (m MediaItem) ItemKind() ItemKind {
	if m.Kind == MediaVideo {
		return ItemKindVideo
	}
	return ItemKindImage
}

// Source 实现ExtractedItem接口
func (m MediaItem) Source() string { return m.SourceURL }

// CountKinds 按类别统计记录数量
func CountKinds(items []ExtractedItem) map[ItemKind]int {
	counts := make(map[ItemKind]int, 3)
	for _, item := range items {
		counts[item.ItemKind()]++
	}
	return counts
}
