package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/GalleryScraper/internal/crawlers"
	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/ratelimit"
)

// ItemExtractor 从页面HTML提取记录
type ItemExtractor interface {
	Extract(kind models.TargetKind, html string, pageURL string) ([]models.ExtractedItem, error)
}

// SchedulerOptions 调度器依赖
type SchedulerOptions struct {
	Scrape    models.ScrapeConfig
	Site      *SiteProfile
	Headers   models.HeaderProvider // 为空时不附加额外头部
	Cache     *ResultCache          // 为空时不缓存
	Metrics   *Metrics              // 为空时不采集指标
	Extractor ItemExtractor         // 为空时使用默认策略表
}

// Outcome 一次任务的结果
type Outcome struct {
	Job     models.Job
	Items   []models.ExtractedItem
	Cached  bool
	Elapsed time.Duration
}

// Scheduler 任务调度器
// 每个任务: 查缓存 → 借标签页 → 导航 → 等待内容就绪 → 提取 → 去重 → 归还或销毁 → 写缓存
type Scheduler struct {
	pool      *crawlers.PagePool
	site      *SiteProfile
	extractor ItemExtractor
	cache     *ResultCache
	metrics   *Metrics
	limiter   ratelimit.Limiter
	policy    crawlers.NavigationPolicy
	config    models.ScrapeConfig
}

// NewScheduler 创建调度器
func NewScheduler(pool *crawlers.PagePool, opts SchedulerOptions) (*Scheduler, error) {
	if pool == nil {
		return nil, errors.New("标签页池不能为空")
	}
	if opts.Site == nil {
		return nil, errors.New("站点配置不能为空")
	}
	if err := opts.Scrape.Validate(); err != nil {
		return nil, err
	}

	policy := crawlers.NavigationPolicy{
		Timeout:            opts.Scrape.NavigationTimeout,
		BlockResourceTypes: opts.Scrape.BlockResources,
	}
	if opts.Headers != nil {
		headers, err := opts.Headers.GetHeaders()
		if err != nil {
			return nil, fmt.Errorf("请求头配置无效: %w", err)
		}
		policy.UserAgent, policy.Headers = splitUserAgent(headers)
	}

	extractor := opts.Extractor
	if extractor == nil {
		extractor = crawlers.NewExtractor()
	}

	limiter := ratelimit.NewUnlimited()
	if opts.Scrape.RatePerSecond > 0 {
		limiter = ratelimit.New(opts.Scrape.RatePerSecond)
	}

	return &Scheduler{
		pool:      pool,
		site:      opts.Site,
		extractor: extractor,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		limiter:   limiter,
		policy:    policy,
		config:    opts.Scrape,
	}, nil
}

// Submit 执行任务并返回去重后的记录
func (s *Scheduler) Submit(ctx context.Context, job models.Job) ([]models.ExtractedItem, error) {
	outcome, err := s.Run(ctx, job)
	if err != nil {
		return nil, err
	}
	return outcome.Items, nil
}

// Run 与Submit相同,额外返回是否命中缓存和耗时
func (s *Scheduler) Run(ctx context.Context, job models.Job) (Outcome, error) {
	start := time.Now()

	job, err := s.prepare(job)
	if err != nil {
		return Outcome{Job: job}, err
	}

	logger := jobLogger(ctx, job)
	key := job.CacheKey()

	if s.cache != nil {
		cached := s.cache.Lookup(key)
		s.metrics.ObserveCache(cached.IsPresent())
		if items, ok := cached.Get(); ok {
			logger.Debug().Int("count", len(items)).Msg("命中结果缓存")
			return Outcome{Job: job, Items: items, Cached: true, Elapsed: time.Since(start)}, nil
		}
	}

	items, err := s.execute(ctx, job, logger)
	elapsed := time.Since(start)
	s.metrics.ObserveJob(job.Kind, err, elapsed)
	if err != nil {
		logger.Warn().Err(err).Dur("elapsed", elapsed).Msg("任务失败")
		return Outcome{Job: job, Elapsed: elapsed}, err
	}

	if s.cache != nil {
		s.cache.Store(key, items)
	}
	logger.Info().Int("count", len(items)).Dur("elapsed", elapsed).Msg("任务完成")
	return Outcome{Job: job, Items: items, Elapsed: elapsed}, nil
}

// prepare 校验参数、规范化相册URL并补齐截止时间
func (s *Scheduler) prepare(job models.Job) (models.Job, error) {
	if job.Kind == models.TargetAlbum {
		job.AlbumURL = strings.TrimSpace(job.AlbumURL)
		if err := models.ValidateAlbumURL(job.AlbumURL, nil); err != nil {
			return job, err
		}
		job.AlbumURL = crawlers.NormalizeSourceURL(job.AlbumURL)
		if err := models.ValidateAlbumURL(job.AlbumURL, s.site.AllowedHosts()); err != nil {
			return job, err
		}
	}
	if err := job.Validate(); err != nil {
		return job, err
	}
	if job.Deadline.IsZero() {
		job.Deadline = time.Now().Add(s.config.JobDeadline)
	}
	return job, nil
}

// execute 借出标签页执行任务,保证每个借出恰好归还或销毁一次
func (s *Scheduler) execute(parent context.Context, job models.Job, logger *zerolog.Logger) ([]models.ExtractedItem, error) {
	deadlineCtx, cancelDeadline := context.WithDeadline(parent, job.Deadline)
	defer cancelDeadline()

	lease, err := s.pool.Acquire(deadlineCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, models.NewScrapeError(models.KindNavigationTimeout, "等待标签页超时", err)
		}
		return nil, err
	}

	// 浏览器断开时借出的Context被取消,把它合并进任务Context
	jobCtx, cancelJob := context.WithCancelCause(deadlineCtx)
	defer cancelJob(nil)
	stop := context.AfterFunc(lease.Context(), func() {
		cancelJob(context.Cause(lease.Context()))
	})
	defer stop()

	logger.Debug().Str("page", lease.Handle().ID()).Msg("已借出标签页")

	items, err := s.load(jobCtx, lease.Handle(), job)

	switch {
	case err == nil:
		s.pool.Release(lease)
		return items, nil

	case lease.Context().Err() != nil:
		s.pool.Discard(lease, "浏览器断开")
		cause := context.Cause(lease.Context())
		var se *models.ScrapeError
		if errors.As(cause, &se) {
			return nil, cause
		}
		return nil, models.NewScrapeError(models.KindBrowserDisconnected, "任务执行中浏览器断开", err)

	case errors.Is(deadlineCtx.Err(), context.DeadlineExceeded):
		s.pool.Discard(lease, "任务超时")
		return nil, models.NewScrapeError(models.KindNavigationTimeout,
			fmt.Sprintf("任务超过截止时间 %s", job.Deadline.Format(time.RFC3339)), err)

	case parent.Err() != nil:
		// 调用方放弃,导航可能仍在进行
		s.pool.Discard(lease, "任务取消")
		return nil, parent.Err()

	case errors.Is(err, models.ErrNavigationTimeout):
		s.pool.Discard(lease, "导航超时")
		return nil, err

	default:
		s.pool.Release(lease)
		return nil, err
	}
}

// load 导航、等待内容就绪、提取并去重
func (s *Scheduler) load(ctx context.Context, page crawlers.PageHandle, job models.Job) ([]models.ExtractedItem, error) {
	target, err := s.site.TargetURL(job)
	if err != nil {
		return nil, models.NewScrapeError(models.KindInvalidURL, err.Error(), err)
	}

	s.limiter.Take()
	if err := page.Navigate(ctx, target, s.policy); err != nil {
		return nil, classifyNavigation(ctx, err)
	}

	if err := s.waitContent(ctx, page, job.Kind); err != nil {
		return nil, err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, classifyNavigation(ctx, err)
	}

	pageURL := page.URL()
	if pageURL == "" || pageURL == "about:blank" {
		pageURL = target
	}
	items, err := s.extract(job.Kind, html, pageURL)
	if err != nil {
		return nil, err
	}
	return crawlers.Dedup(items), nil
}

// waitContent 等待结构标记出现
// 标记缺失时滚动到底部触发懒加载后再等一次,仍缺失返回NoContentFound
// 没有标记的页面类型改为固定等待
func (s *Scheduler) waitContent(ctx context.Context, page crawlers.PageHandle, kind models.TargetKind) error {
	marker := s.site.Marker(kind)
	if marker == "" {
		timer := time.NewTimer(s.config.FallbackWait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	found, err := page.WaitSelector(ctx, marker, s.config.MarkerTimeout)
	if err != nil {
		return classifyNavigation(ctx, err)
	}

	scrolled := false
	if !found {
		if err := s.scroll(ctx, page); err != nil {
			return err
		}
		scrolled = true
		found, err = page.WaitSelector(ctx, marker, s.config.MarkerTimeout)
		if err != nil {
			return classifyNavigation(ctx, err)
		}
		if !found {
			return models.NewScrapeError(models.KindNoContentFound,
				fmt.Sprintf("结构标记 %q 未出现", marker), nil)
		}
	}

	// 相册图片懒加载,提取前总是滚动一遍
	if kind == models.TargetAlbum && !scrolled {
		return s.scroll(ctx, page)
	}
	return nil
}

func (s *Scheduler) scroll(ctx context.Context, page crawlers.PageHandle) error {
	if err := page.ScrollToBottom(ctx, s.config.ScrollStep, s.config.MaxScrolls, s.config.ScrollDelay); err != nil {
		return classifyNavigation(ctx, err)
	}
	return nil
}

// extract 调用提取函数,panic和错误都归为InternalExtractionError
func (s *Scheduler) extract(kind models.TargetKind, html, pageURL string) (items []models.ExtractedItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = models.NewScrapeError(models.KindInternalExtraction, fmt.Sprintf("提取函数异常: %v", r), nil)
		}
	}()

	items, err = s.extractor.Extract(kind, html, pageURL)
	if err != nil {
		return nil, models.NewScrapeError(models.KindInternalExtraction, "提取失败", err)
	}
	return items, nil
}

// classifyNavigation 把引擎错误归类
// ctx已结束的错误原样返回,由execute根据原因决定归还还是销毁
func classifyNavigation(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.KindNavigationTimeout, "页面加载超时", err)
	}
	return models.NewScrapeError(models.KindNoContentFound, "页面加载失败", err)
}

// Stats 标签页池快照
func (s *Scheduler) Stats() models.PoolStats {
	return s.pool.Stats()
}

// CacheLen 缓存条目数
func (s *Scheduler) CacheLen() int {
	return s.cache.Len()
}

// jobLogger 优先使用请求上下文中的日志器(带request id)
func jobLogger(ctx context.Context, job models.Job) *zerolog.Logger {
	base := zerolog.Ctx(ctx)
	if base.GetLevel() == zerolog.Disabled {
		base = &log.Logger
	}
	logger := base.With().Str("job", job.String()).Logger()
	return &logger
}
