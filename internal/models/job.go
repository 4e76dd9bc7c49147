package models

import (
	"fmt"
	"time"
)

// TargetKind 抓取目标类型
type TargetKind string

const (
	TargetHome  TargetKind = "home"  // 首页相册列表
	TargetAlbum TargetKind = "album" // 相册详情页
)

// Job 一次抓取请求
// 请求到达时创建,结果(成功或失败)交付给调用方后即丢弃
type Job struct {
	ID       string     `json:"id"`
	Kind     TargetKind `json:"kind"`
	Page     int        `json:"page,omitempty"`      // 仅首页任务,从1开始
	AlbumURL string     `json:"album_url,omitempty"` // 仅相册任务,绝对URL
	Deadline time.Time  `json:"deadline"`            // 零值表示由调度器按默认时限补齐
}

// NewHomeJob 创建首页列表任务,page<1时按第1页处理
func NewHomeJob(page int) Job {
	if page < 1 {
		page = 1
	}
	return Job{
		ID:   generateID(),
		Kind: TargetHome,
		Page: page,
	}
}

// NewAlbumJob 创建相册详情任务
func NewAlbumJob(albumURL string) Job {
	return Job{
		ID:       generateID(),
		Kind:     TargetAlbum,
		AlbumURL: albumURL,
	}
}

// WithDeadline 返回设置了截止时间的副本
func (j Job) WithDeadline(deadline time.Time) Job {
	j.Deadline = deadline
	return j
}

// CacheKey 结果缓存键: (目标类型, 参数)
func (j Job) CacheKey() string {
	switch j.Kind {
	case TargetHome:
		return fmt.Sprintf("home:%d", j.Page)
	default:
		return "album:" + j.AlbumURL
	}
}

// Validate 检查任务参数
func (j Job) Validate() error {
	switch j.Kind {
	case TargetHome:
		if j.Page < 1 {
			return NewScrapeError(KindInvalidPage, fmt.Sprintf("页码必须大于0: %d", j.Page), nil)
		}
	case TargetAlbum:
		if j.AlbumURL == "" {
			return NewScrapeError(KindMissingURL, "缺少相册URL", nil)
		}
		if err := ValidateURL(j.AlbumURL); err != nil {
			return NewScrapeError(KindInvalidURL, err.Error(), err)
		}
	default:
		return fmt.Errorf("未知的任务类型: %s", j.Kind)
	}
	return nil
}

// String 用于日志输出
func (j Job) String() string {
	if j.Kind == TargetHome {
		return fmt.Sprintf("%s#%s(page=%d)", j.Kind, shortID(j.ID), j.Page)
	}
	return fmt.Sprintf("%s#%s(%s)", j.Kind, shortID(j.ID), j.AlbumURL)
}
