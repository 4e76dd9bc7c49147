package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/RecoveryAshes/GalleryScraper/internal/utils"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// saturatedRetries 批量模式下遇到POOL_SATURATED的重试次数
const saturatedRetries = 3

// BatchScraper 批量抓取相册
// 所有相册共用同一个调度器和标签页池,结果按完成顺序逐行写出JSONL
type BatchScraper struct {
	scheduler     *Scheduler
	workers       int
	continueOnErr bool
	progress      io.Writer
	retryDelay    time.Duration
}

// NewBatchScraper 创建批量抓取器,progress为nil时不显示进度条
func NewBatchScraper(scheduler *Scheduler, config BatchConfig, progress io.Writer) *BatchScraper {
	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	return &BatchScraper{
		scheduler:     scheduler,
		workers:       workers,
		continueOnErr: config.ContinueOnError,
		progress:      progress,
		retryDelay:    500 * time.Millisecond,
	}
}

// ScrapeBatch 批量抓取URL列表,每条结果写入out一行
func (bs *BatchScraper) ScrapeBatch(ctx context.Context, urls []string, out io.Writer) (*models.BatchReport, error) {
	utils.Infof("🚀 开始批量抓取: %d个URL, 并发数: %d", len(urls), bs.workers)

	report := &models.BatchReport{
		TotalURLs:   len(urls),
		StartTime:   time.Now(),
		ItemCounts:  make(map[models.ItemKind]int),
		ErrorCounts: make(map[models.ErrorKind]int),
	}

	progress := io.Discard
	if bs.progress != nil {
		progress = bs.progress
	}
	bar := utils.NewProgressBar(len(urls), "抓取相册", progress)

	var (
		mu      sync.Mutex
		records = make([]*models.BatchRecord, 0, len(urls))
		encoder = json.NewEncoder(out)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bs.workers)

	for _, target := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			record := bs.scrapeOne(gctx, target)

			mu.Lock()
			defer mu.Unlock()
			records = append(records, record)
			_ = bar.Add(1)
			if err := encoder.Encode(record); err != nil {
				return fmt.Errorf("写入结果失败: %w", err)
			}
			if !record.Success() && !bs.continueOnErr {
				utils.Warn("批量抓取中止 (continue_on_error=false)")
				return fmt.Errorf("抓取 %s 失败: %s", record.URL, record.Error)
			}
			return nil
		})
	}

	err := g.Wait()
	_ = bar.Finish()

	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime).Seconds()
	summarize(report, records)
	utils.PrintBatchSummary(report)

	return report, err
}

// scrapeOne 抓取单个相册,等待队列已满时稍后重试
func (bs *BatchScraper) scrapeOne(ctx context.Context, target string) *models.BatchRecord {
	record := &models.BatchRecord{URL: target}
	start := time.Now()

	var (
		items []models.ExtractedItem
		err   error
	)
	for attempt := 0; ; attempt++ {
		items, err = bs.scheduler.Submit(ctx, models.NewAlbumJob(target))
		if !errors.Is(err, models.ErrPoolSaturated) || attempt >= saturatedRetries {
			break
		}
		utils.Debugf("等待队列已满,%s 后重试: %s", bs.retryDelay, target)
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(bs.retryDelay):
			continue
		}
		break
	}

	record.Duration = time.Since(start).Seconds()
	record.ProcessedAt = time.Now()
	if err != nil {
		record.Error = models.KindOf(err)
		record.Message = err.Error()
		utils.Errorf("❌ 抓取失败 %s: %v", target, err)
		return record
	}
	record.Items = items
	record.Count = len(items)
	return record
}

// summarize 汇总统计
func summarize(report *models.BatchReport, records []*models.BatchRecord) {
	succeeded, failed := lo.FilterReject(records, func(r *models.BatchRecord, _ int) bool {
		return r.Success()
	})
	report.SuccessCount = len(succeeded)
	report.FailCount = len(failed)

	for _, r := range succeeded {
		for kind, n := range models.CountKinds(r.Items) {
			report.ItemCounts[kind] += n
		}
	}
	report.ErrorCounts = lo.CountValuesBy(failed, func(r *models.BatchRecord) models.ErrorKind {
		return r.Error
	})
	report.FailedURLs = lo.Map(failed, func(r *models.BatchRecord, _ int) models.FailedURL {
		return models.FailedURL{URL: r.URL, ErrorKind: r.Error, ErrorMsg: r.Message}
	})
}
